package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: 采样可用内存与CPU负载,计算下载并发上限与浏览器启动前的资源检查
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 最近一次采样的系统可用内存(字节)
	availableMemory uint64
	totalMemory     uint64
	cpuUsage        float64
	mu              sync.RWMutex

	// 缓存的CalculateMaxWorkers结果
	cachedMaxWorkers int
	lastCacheTime    time.Time
	cacheMu          sync.Mutex

	cancelFunc context.CancelFunc
	isRunning  bool
	runMu      sync.Mutex

	// 采样函数, 测试中替换
	sampleMemory func() (total, available uint64, err error)
	sampleCPU    func() (float64, error)
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 为系统保留的内存(字节)
	WorkerMemoryUsage   int64 // 单个下载worker的内存估算(字节)
	CPULoadThreshold    int   // CPU负载阈值(%), >=200 表示不检查
	MaxWorkersLimit     int   // 绝对上限
}

// DefaultResourceMonitorConfig 默认配置: 保留512MB, 每个worker按64MB估算
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 512 * 1024 * 1024,
		WorkerMemoryUsage:   64 * 1024 * 1024,
		CPULoadThreshold:    90,
		MaxWorkersLimit:     16,
	}
}

// MemoryStatus 内存状态
type MemoryStatus struct {
	TotalMemory     uint64  // 系统总内存(字节)
	AvailableMemory uint64  // 系统可用内存(字节)
	SafetyReserve   int64   // 保留内存(字节)
	CPUUsage        float64 // 最近一次CPU使用率(%)
	MemoryPressure  string  // normal, warning, critical
}

// NewResourceMonitor 创建资源监控器并立即采样一次
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	defaults := DefaultResourceMonitorConfig()
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = defaults.WorkerMemoryUsage
	}
	if config.MaxWorkersLimit <= 0 {
		config.MaxWorkersLimit = defaults.MaxWorkersLimit
	}
	if config.CPULoadThreshold <= 0 {
		config.CPULoadThreshold = defaults.CPULoadThreshold
	}

	rm := &ResourceMonitor{
		config:       config,
		sampleMemory: systemMemory,
		sampleCPU:    systemCPU,
	}
	rm.sample()

	log.Debug().Msgf("系统总内存: %.2f GB, 可用: %.2f GB",
		float64(rm.totalMemory)/(1<<30), float64(rm.availableMemory)/(1<<30))
	return rm
}

func systemMemory() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Total, vm.Available, nil
}

func systemCPU() (float64, error) {
	// 100毫秒采样, 所有核心平均值
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

func (rm *ResourceMonitor) sample() {
	total, available, err := rm.sampleMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,使用默认值")
		total, available = 4<<30, 2<<30
	}
	usage, err := rm.sampleCPU()
	if err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
		usage = 0
	}

	rm.mu.Lock()
	rm.totalMemory = total
	rm.availableMemory = available
	rm.cpuUsage = usage
	rm.mu.Unlock()
}

// StartMonitoring 启动后台周期采样, 重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.runMu.Lock()
	defer rm.runMu.Unlock()

	if rm.isRunning {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rm.sample()
			}
		}
	}()
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.runMu.Lock()
	defer rm.runMu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

// CalculateMaxWorkers 根据可用内存与CPU核数计算并发上限
// 结果缓存1秒, 至少为1
func (rm *ResourceMonitor) CalculateMaxWorkers() int {
	rm.cacheMu.Lock()
	defer rm.cacheMu.Unlock()
	if rm.cachedMaxWorkers > 0 && time.Since(rm.lastCacheTime) < time.Second {
		return rm.cachedMaxWorkers
	}

	rm.mu.RLock()
	available := int64(rm.availableMemory)
	cpuUsage := rm.cpuUsage
	rm.mu.RUnlock()

	byMemory := 1
	if surplus := available - rm.config.SafetyReserveMemory; surplus > 0 {
		byMemory = int(surplus / rm.config.WorkerMemoryUsage)
	}

	result := byMemory
	if n := runtime.NumCPU() * 2; n < result {
		result = n
	}
	if rm.config.MaxWorkersLimit < result {
		result = rm.config.MaxWorkersLimit
	}
	// CPU过载时减半
	if rm.config.CPULoadThreshold < 200 && cpuUsage > float64(rm.config.CPULoadThreshold) {
		result /= 2
	}
	if result < 1 {
		result = 1
	}

	rm.cachedMaxWorkers = result
	rm.lastCacheTime = time.Now()
	return result
}

// CapWorkers 将请求的并发数限制在资源允许的范围内
func (rm *ResourceMonitor) CapWorkers(requested int) int {
	if requested < 1 {
		requested = 1
	}
	if max := rm.CalculateMaxWorkers(); requested > max {
		log.Warn().Msgf("并发数 %d 超过资源上限, 调整为 %d", requested, max)
		return max
	}
	return requested
}

// CheckResourceAvailability 检查资源是否足以启动新的重负载任务 (如浏览器)
func (rm *ResourceMonitor) CheckResourceAvailability() (bool, string) {
	rm.mu.RLock()
	available := int64(rm.availableMemory)
	cpuUsage := rm.cpuUsage
	rm.mu.RUnlock()

	if available < rm.config.SafetyReserveMemory {
		return false, fmt.Sprintf("内存不足(当前可用%dMB)", available/(1024*1024))
	}
	if rm.config.CPULoadThreshold < 200 && cpuUsage > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
	}
	return true, ""
}

// GetMemoryStatus 当前资源状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	pressure := "normal"
	availableMB := rm.availableMemory / (1024 * 1024)
	switch {
	case availableMB < 300:
		pressure = "critical"
	case availableMB < 500:
		pressure = "warning"
	}

	return MemoryStatus{
		TotalMemory:     rm.totalMemory,
		AvailableMemory: rm.availableMemory,
		SafetyReserve:   rm.config.SafetyReserveMemory,
		CPUUsage:        rm.cpuUsage,
		MemoryPressure:  pressure,
	}
}
