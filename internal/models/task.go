package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消
)

// CrawlMode 页面获取方式
type CrawlMode string

const (
	ModeStatic  CrawlMode = "static"  // HTTP直接请求
	ModeDynamic CrawlMode = "dynamic" // 无头浏览器渲染
)

// ParseCrawlMode 解析爬取模式,空字符串视为static
func ParseCrawlMode(s string) (CrawlMode, error) {
	switch CrawlMode(s) {
	case "", ModeStatic:
		return ModeStatic, nil
	case ModeDynamic:
		return ModeDynamic, nil
	default:
		return "", fmt.Errorf("无效的爬取模式: %s (有效值: static, dynamic)", s)
	}
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	MaxPages       int       `mapstructure:"max_pages" json:"max_pages"`             // 每个分类最多抓取的列表页数, 0表示不限
	PageDelay      float64   `mapstructure:"page_delay" json:"page_delay"`           // 列表页间隔(秒)
	DetailDelay    float64   `mapstructure:"detail_delay" json:"detail_delay"`       // 详情页间隔(秒)
	Timeout        int       `mapstructure:"timeout" json:"timeout"`                 // 单次请求超时(秒)
	Mode           CrawlMode `mapstructure:"mode" json:"mode"`                       // static 或 dynamic
	WaitTime       int       `mapstructure:"wait_time" json:"wait_time"`             // 动态渲染后的等待时间(秒)
	Headless       bool      `mapstructure:"headless" json:"headless"`               // 无头浏览器
	InsecureTLS    bool      `mapstructure:"insecure_tls" json:"insecure_tls"`       // 跳过证书校验
	FetchDetails   bool      `mapstructure:"fetch_details" json:"fetch_details"`     // 是否抓取详情页
	SaveRawPages   bool      `mapstructure:"save_raw_pages" json:"save_raw_pages"`   // 保存原始列表页
	MaxContentLen  int       `mapstructure:"max_content_len" json:"max_content_len"` // 正文最大字符数, 0表示不限
	Categories     []string  `mapstructure:"categories" json:"categories,omitempty"` // 只抓取指定分类
	GZRSJSiteID    string    `mapstructure:"gzrsj_sid" json:"gzrsj_sid,omitempty"`   // 广州人社局接口sid
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.MaxPages < 0 || c.MaxPages > 1000 {
		return fmt.Errorf("最大页数必须在0-1000之间")
	}
	if c.PageDelay < 0 || c.PageDelay > 60 {
		return fmt.Errorf("列表页间隔必须在0-60秒之间")
	}
	if c.DetailDelay < 0 || c.DetailDelay > 60 {
		return fmt.Errorf("详情页间隔必须在0-60秒之间")
	}
	if c.Timeout < 1 || c.Timeout > 300 {
		return fmt.Errorf("请求超时必须在1-300秒之间")
	}
	if c.WaitTime < 0 || c.WaitTime > 60 {
		return fmt.Errorf("等待时间必须在0-60秒之间")
	}
	if c.MaxContentLen < 0 {
		return fmt.Errorf("正文最大字符数不能为负数")
	}
	if _, err := ParseCrawlMode(string(c.Mode)); err != nil {
		return err
	}
	return nil
}

// WantsCategory 判断是否需要抓取该分类
func (c *CrawlConfig) WantsCategory(name string) bool {
	if len(c.Categories) == 0 {
		return true
	}
	for _, cat := range c.Categories {
		if cat == name {
			return true
		}
	}
	return false
}

// CrawlTask 单站点爬取任务
type CrawlTask struct {
	ID          string     `json:"id"`
	Site        Site       `json:"site"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Config CrawlConfig `json:"config"`

	Status TaskStatus `json:"status"`
	Stats  CrawlStats `json:"stats"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// NewCrawlTask 创建新任务
func NewCrawlTask(site Site, config CrawlConfig) (*CrawlTask, error) {
	if _, err := ParseSite(string(site)); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &CrawlTask{
		ID:        generateID(),
		Site:      site,
		CreatedAt: time.Now(),
		Config:    config,
		Status:    TaskStatusPending,
	}, nil
}

// Start 标记任务开始
func (t *CrawlTask) Start() {
	now := time.Now()
	t.StartedAt = &now
	t.Status = TaskStatusRunning
}

// Complete 标记任务结束, err非空时状态为失败
func (t *CrawlTask) Complete(stats CrawlStats, err error) {
	now := time.Now()
	t.CompletedAt = &now
	t.Stats = stats
	if err != nil {
		t.Status = TaskStatusFailed
		t.ErrorMessage = err.Error()
		return
	}
	t.Status = TaskStatusCompleted
}

// ToJSON 序列化为JSON
func (t *CrawlTask) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// FromJSON 从JSON反序列化
func (t *CrawlTask) FromJSON(data []byte) error {
	return json.Unmarshal(data, t)
}

// BatchCrawlTask 多站点批量爬取任务
type BatchCrawlTask struct {
	ID          string     `json:"id"`
	Sites       []Site     `json:"sites"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Config          CrawlConfig `json:"config"`
	BatchDelay      int         `json:"batch_delay"`       // 站点之间延迟(秒)
	ContinueOnError bool        `json:"continue_on_error"` // 遇到错误继续

	Status TaskStatus `json:"status"`

	TotalSites      int `json:"total_sites"`
	SuccessfulSites int `json:"successful_sites"`
	FailedSites     int `json:"failed_sites"`
	TotalPolicies   int `json:"total_policies"`

	SubTasks []string `json:"sub_tasks"`
}

// NewBatchCrawlTask 创建批量任务
func NewBatchCrawlTask(sites []Site, config CrawlConfig) *BatchCrawlTask {
	return &BatchCrawlTask{
		ID:         generateID(),
		Sites:      sites,
		CreatedAt:  time.Now(),
		Config:     config,
		Status:     TaskStatusPending,
		TotalSites: len(sites),
		SubTasks:   make([]string, 0, len(sites)),
	}
}
