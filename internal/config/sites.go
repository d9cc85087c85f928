package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultSitesFile 默认站点配置文件路径
	DefaultSitesFile = "configs/sites.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed sites_template.yaml
var defaultSitesTemplate string

// SitesTemplate 返回内置的站点配置模板
func SitesTemplate() string {
	return defaultSitesTemplate
}

// SitesConfigLoader 站点配置加载器
// 负责加载、验证和解析每个站点的请求头与Cookie
type SitesConfigLoader struct {
	configPath string
}

// NewSitesConfigLoader 创建配置文件加载器
func NewSitesConfigLoader(configPath string) *SitesConfigLoader {
	if configPath == "" {
		configPath = DefaultSitesFile
	}
	return &SitesConfigLoader{
		configPath: configPath,
	}
}

// Path 配置文件路径
func (l *SitesConfigLoader) Path() string {
	return l.configPath
}

// EnsureConfigExists 确保配置文件存在,如不存在则自动生成模板
func (l *SitesConfigLoader) EnsureConfigExists() error {
	if _, err := os.Stat(l.configPath); os.IsNotExist(err) {
		dir := filepath.Dir(l.configPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
		}

		if err := os.WriteFile(l.configPath, []byte(defaultSitesTemplate), 0644); err != nil {
			return fmt.Errorf("无法生成配置文件 [%s]: %w", l.configPath, err)
		}
		utils.Infof("已生成站点配置模板: %s", l.configPath)
	}
	return nil
}

// ValidateFileSize 验证配置文件大小是否在限制内
func (l *SitesConfigLoader) ValidateFileSize() error {
	info, err := os.Stat(l.configPath)
	if err != nil {
		return fmt.Errorf("无法读取配置文件信息 [%s]: %w", l.configPath, err)
	}

	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: l.configPath,
			Cause: fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)",
				info.Size(), MaxConfigFileSize),
		}
	}

	return nil
}

// LoadConfig 加载站点配置
// 执行流程:
//  1. 确保配置文件存在 (不存在则从模板生成)
//  2. 验证文件大小
//  3. 使用Viper解析YAML并绑定到SitesConfig
//  4. 初始化空map
//
// viper会将键名转换为小写, 头部名称在使用时由http.Header规范化
func (l *SitesConfigLoader) LoadConfig() (*models.SitesConfig, error) {
	if err := l.EnsureConfigExists(); err != nil {
		return nil, err
	}

	if err := l.ValidateFileSize(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(l.configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// 文件被其他进程锁定时使用空配置
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("配置文件被锁定 [%s], 使用默认配置", l.configPath)
			return emptySitesConfig(), nil
		}

		return nil, &models.ConfigError{
			FilePath: l.configPath,
			Cause:    err,
		}
	}

	var config models.SitesConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{
			FilePath: l.configPath,
			Cause:    fmt.Errorf("配置绑定失败: %w", err),
		}
	}

	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	if config.Sites == nil {
		config.Sites = make(map[string]models.SiteHeaderConfig)
	}
	for name, site := range config.Sites {
		if _, err := models.ParseSite(name); err != nil {
			utils.Warnf("站点配置中存在未知站点 [%s], 已忽略", name)
			delete(config.Sites, name)
			continue
		}
		if site.Headers == nil {
			site.Headers = make(map[string]string)
			config.Sites[name] = site
		}
	}

	return &config, nil
}

func emptySitesConfig() *models.SitesConfig {
	return &models.SitesConfig{
		Headers: make(map[string]string),
		Sites:   make(map[string]models.SiteHeaderConfig),
	}
}
