package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

var datePattern = regexp.MustCompile(`(\d{4})\s*[-/.年]\s*(\d{1,2})\s*[-/.月]\s*(\d{1,2})`)

// NormalizeDate 将页面中的日期统一为 YYYY-MM-DD
// 无法识别时返回原文本
func NormalizeDate(s string) string {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}

// NewRunID 生成一次运行的唯一ID
func NewRunID() string {
	return generateID()
}
