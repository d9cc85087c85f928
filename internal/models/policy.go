package models

import (
	"fmt"
	"strings"
	"time"
)

// Site 政策来源站点
type Site string

const (
	SiteNDRC   Site = "ndrc"   // 国家发展改革委
	SiteMOHRSS Site = "mohrss" // 人力资源和社会保障部
	SiteGZRSJ  Site = "gzrsj"  // 广州市人力资源和社会保障局
)

// AllSites 返回全部支持的站点,顺序即批量爬取顺序
func AllSites() []Site {
	return []Site{SiteNDRC, SiteMOHRSS, SiteGZRSJ}
}

// ParseSite 解析站点名称 (不区分大小写)
func ParseSite(name string) (Site, error) {
	s := Site(strings.ToLower(strings.TrimSpace(name)))
	for _, site := range AllSites() {
		if s == site {
			return site, nil
		}
	}
	return "", fmt.Errorf("不支持的站点: %s (有效值: ndrc, mohrss, gzrsj)", name)
}

// DisplayName 站点中文名称
func (s Site) DisplayName() string {
	switch s {
	case SiteNDRC:
		return "国家发展改革委"
	case SiteMOHRSS:
		return "人力资源和社会保障部"
	case SiteGZRSJ:
		return "广州市人力资源和社会保障局"
	default:
		return string(s)
	}
}

// EnvKey 站点在环境变量中的名称片段, 如 POLICYCRAWL_NDRC_COOKIE
func (s Site) EnvKey() string {
	return strings.ToUpper(string(s))
}

// PolicyRef 政策的标识字段,各工作表共用
type PolicyRef struct {
	Category    string `json:"category"`     // 政策分类
	Title       string `json:"title"`        // 政策标题
	DocNumber   string `json:"doc_number"`   // 文号
	PublishDate string `json:"publish_date"` // 发布日期
	URL         string `json:"url"`          // 政策链接
}

// Policy 列表页中的一条政策
type Policy struct {
	PolicyRef

	Page                int               `json:"page"`
	Publisher           string            `json:"publisher,omitempty"`
	Validity            string            `json:"validity,omitempty"` // 有效性 (人社部)
	HasInterpretation   bool              `json:"has_interpretation"`
	InterpretationCount int               `json:"interpretation_count"`
	BasicInfo           map[string]string `json:"basic_info,omitempty"` // 详情页基本信息表
}

// ContentRecord 政策正文
type ContentRecord struct {
	PolicyRef
	Content string `json:"content"`
}

// AttachmentRecord 一条政策中同一文件类型的附件
// Names 与 Links 按页面顺序一一对应
type AttachmentRecord struct {
	PolicyRef
	FileType string   `json:"file_type"`
	Names    []string `json:"names"`
	Links    []string `json:"links"`
}

// Interpretation 政策解读
type Interpretation struct {
	PolicyRef
	InterpretationTitle string `json:"interpretation_title"`
	InterpretationURL   string `json:"interpretation_url"`
}

// CrawlStats 单次爬取统计
type CrawlStats struct {
	Pages           int     `json:"pages"`            // 已抓取列表页数
	Policies        int     `json:"policies"`         // 政策条数
	Details         int     `json:"details"`          // 成功解析的详情页
	FailedDetails   int     `json:"failed_details"`   // 失败的详情页
	SkippedDetails  int     `json:"skipped_details"`  // 重复而跳过的详情页
	Attachments     int     `json:"attachments"`      // 附件链接数
	Interpretations int     `json:"interpretations"`  // 解读条数
	Duration        float64 `json:"duration"`         // 耗时(秒)
}

// CrawlResult 站点爬取结果
type CrawlResult struct {
	Site            Site               `json:"site"`
	RunID           string             `json:"run_id"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         time.Time          `json:"end_time"`
	Policies        []Policy           `json:"policies"`
	Contents        []ContentRecord    `json:"contents"`
	Attachments     []AttachmentRecord `json:"attachments"`
	Interpretations []Interpretation   `json:"interpretations"`
	Failed          []FailedItem       `json:"failed,omitempty"`
	Stats           CrawlStats         `json:"stats"`
}

// NewCrawlResult 创建空的爬取结果
func NewCrawlResult(site Site) *CrawlResult {
	return &CrawlResult{
		Site:            site,
		RunID:           generateID(),
		StartTime:       time.Now(),
		Policies:        make([]Policy, 0),
		Contents:        make([]ContentRecord, 0),
		Attachments:     make([]AttachmentRecord, 0),
		Interpretations: make([]Interpretation, 0),
	}
}

// Finish 记录结束时间并汇总统计
func (r *CrawlResult) Finish() {
	r.EndTime = time.Now()
	r.Stats.Duration = r.EndTime.Sub(r.StartTime).Seconds()
	r.Stats.Policies = len(r.Policies)
	r.Stats.Interpretations = len(r.Interpretations)
	attachments := 0
	for _, a := range r.Attachments {
		attachments += len(a.Links)
	}
	r.Stats.Attachments = attachments
}

// Merge 将另一个结果追加到当前结果 (批量爬取汇总)
func (r *CrawlResult) Merge(other *CrawlResult) {
	if other == nil {
		return
	}
	r.Policies = append(r.Policies, other.Policies...)
	r.Contents = append(r.Contents, other.Contents...)
	r.Attachments = append(r.Attachments, other.Attachments...)
	r.Interpretations = append(r.Interpretations, other.Interpretations...)
	r.Failed = append(r.Failed, other.Failed...)
	r.Stats.Pages += other.Stats.Pages
	r.Stats.Details += other.Stats.Details
	r.Stats.FailedDetails += other.Stats.FailedDetails
	r.Stats.SkippedDetails += other.Stats.SkippedDetails
}

// Attachment 待下载的附件
type Attachment struct {
	Category    string `json:"category"`
	PolicyTitle string `json:"policy_title"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	PolicyURL   string `json:"policy_url,omitempty"` // 下载时作为Referer
}

// DownloadStats 附件下载统计
type DownloadStats struct {
	Total   int   `json:"total"`
	Success int   `json:"success"`
	Failed  int   `json:"failed"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

// SuccessRate 成功率 (百分比)
func (s DownloadStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}
