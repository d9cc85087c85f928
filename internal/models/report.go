package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 爬取报告
type CrawlReport struct {
	TaskID string    `json:"task_id"`
	Site   Site      `json:"site"`
	Mode   CrawlMode `json:"mode"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	Stats CrawlStats `json:"stats"`

	// 失败的详情页
	Failed []FailedItem `json:"failed"`

	// 输出文件
	OutputDir   string   `json:"output_dir"`
	OutputFiles []string `json:"output_files"`

	Config CrawlConfig `json:"config"`
}

// DownloadReport 附件下载报告
type DownloadReport struct {
	TaskID    string        `json:"task_id"`
	Source    string        `json:"source"` // 输入的Excel文件
	OutputDir string        `json:"output_dir"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  float64       `json:"duration"`
	Workers   int           `json:"workers"`
	Stats     DownloadStats `json:"stats"`
	Files     []FileInfo    `json:"files"`
	Failed    []FailedItem  `json:"failed"`
}

// FileInfo 已保存的附件
type FileInfo struct {
	URL          string    `json:"url"`
	FilePath     string    `json:"file_path"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	Suspicious   bool      `json:"suspicious,omitempty"` // 疑似网页而非文件
	DownloadedAt time.Time `json:"downloaded_at"`
}

// FailedItem 失败的请求
type FailedItem struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"` // not_found, server_error, network_error, parse_error 等
	ErrorMsg  string `json:"error_msg"`
	Retries   int    `json:"retries"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CrawlReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// ToJSON 序列化为JSON
func (r *DownloadReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
