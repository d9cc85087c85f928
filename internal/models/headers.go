package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// SiteHeaderConfig 单个站点的请求头与Cookie
type SiteHeaderConfig struct {
	// Headers 自定义HTTP头部 (键值对)
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	// Cookie 站点Cookie, 形如 "name=value; name2=value2"
	// 可被环境变量 POLICYCRAWL_<SITE>_COOKIE 覆盖
	Cookie string `mapstructure:"cookie" yaml:"cookie"`
}

// SitesConfig 表示sites.yaml配置文件的结构
type SitesConfig struct {
	// Headers 所有站点共用的头部
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	// Sites 按站点名称索引的配置
	Sites map[string]SiteHeaderConfig `mapstructure:"sites" yaml:"sites"`
}

// Site 返回指定站点的配置,不存在时返回空配置
func (c *SitesConfig) Site(site Site) SiteHeaderConfig {
	if c == nil || c.Sites == nil {
		return SiteHeaderConfig{Headers: map[string]string{}}
	}
	cfg, ok := c.Sites[string(site)]
	if !ok {
		return SiteHeaderConfig{Headers: map[string]string{}}
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return cfg
}

// CliHeaders 表示命令行传递的头部列表
// 每个字符串格式为 "Name: Value"
type CliHeaders []string

// Parse 将字符串列表解析为 http.Header
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, err := parseHeaderString(s)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// parseHeaderString 解析单个头部字符串 "Name: Value"
func parseHeaderString(s string) (name, value string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("格式错误: 缺少冒号分隔符,应为 'Name: Value'")
	}

	name = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])

	if name == "" {
		return "", "", fmt.Errorf("头部名称不能为空")
	}

	return name, value, nil
}

// HeaderProvider 定义HTTP头部提供者接口
type HeaderProvider interface {
	// GetHeaders 返回指定站点当前有效的HTTP请求头部
	// 优先级: 默认 < 公共配置 < 站点配置 < 环境变量Cookie < 命令行
	GetHeaders(site Site) (http.Header, error)
}

// ValidationError 头部验证错误
type ValidationError struct {
	// Field 出错的字段 ("name" 或 "value")
	Field string

	// HeaderName 头部名称
	HeaderName string

	// Reason 错误原因
	Reason string

	// Suggestion 修复建议 (可选)
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// ConfigError 配置文件错误
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误 (如viper.ConfigParseError)
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrNotFound 目标资源不存在 (HTTP 404), 不会被重试
var ErrNotFound = errors.New("资源不存在")

// ErrBodyTooLarge 响应体超过读取上限, 不保存截断的内容
var ErrBodyTooLarge = errors.New("响应体超过上限")

// FetchError 请求失败
// StatusCode 为0表示未收到响应 (网络错误)
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Cause      error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode > 0 && !errors.Is(e.Cause, ErrBodyTooLarge) {
		return fmt.Sprintf("请求失败 [%s]: HTTP %d (尝试 %d 次)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("请求失败 [%s]: %v (尝试 %d 次)", e.URL, e.Cause, e.Attempts)
}

// Unwrap 支持errors.Is(err, ErrNotFound)
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// ErrorType 用于报告的错误分类
func (e *FetchError) ErrorType() string {
	switch {
	case errors.Is(e.Cause, ErrNotFound):
		return "not_found"
	case errors.Is(e.Cause, ErrBodyTooLarge):
		return "too_large"
	case e.StatusCode >= 500:
		return "server_error"
	case e.StatusCode > 0:
		return "http_error"
	default:
		return "network_error"
	}
}
