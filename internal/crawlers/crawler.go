package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// Crawler 站点爬虫
type Crawler interface {
	Site() models.Site
	Crawl(ctx context.Context) (*models.CrawlResult, error)
}

// Options 爬虫依赖与配置
type Options struct {
	// Client 共享的HTTP客户端, 通常为 core.Fetcher.Client()
	Client *http.Client

	Config models.CrawlConfig

	// OutputDir 原始页面存档根目录
	OutputDir string

	// Renderer dynamic模式下的页面渲染器, 仅人社部使用
	Renderer PageRenderer

	// BaseURL 覆盖站点根地址
	BaseURL string

	// DetailURLs 直接抓取的详情页, 设置后跳过列表页 (人社部)
	DetailURLs []string
}

// New 按站点创建爬虫
func New(site models.Site, opts Options) (Crawler, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("未设置HTTP客户端")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "results"
	}
	if opts.Renderer != nil && site != models.SiteMOHRSS {
		utils.Warnf("站点 %s 不支持动态渲染, 使用静态请求", site)
		opts.Renderer = nil
	}
	if len(opts.DetailURLs) > 0 && site != models.SiteMOHRSS {
		utils.Warnf("站点 %s 不支持直接指定详情页, 已忽略 %d 个URL", site, len(opts.DetailURLs))
		opts.DetailURLs = nil
	}

	switch site {
	case models.SiteNDRC:
		return NewNDRCCrawler(opts), nil
	case models.SiteMOHRSS:
		return NewMOHRSSCrawler(opts), nil
	case models.SiteGZRSJ:
		return NewGZRSJCrawler(opts), nil
	default:
		return nil, fmt.Errorf("不支持的站点: %s", site)
	}
}

// Categories 站点分类的固定顺序, 输出时按此排序
func Categories(site models.Site) []string {
	switch site {
	case models.SiteNDRC:
		return NDRCCategories()
	case models.SiteMOHRSS:
		return []string{mohrssCategory}
	case models.SiteGZRSJ:
		return GZRSJCategories()
	}
	return nil
}

// baseCrawler 各站点共用的状态与流程
type baseCrawler struct {
	site   models.Site
	opts   Options
	queue  *URLQueue
	result *models.CrawlResult
	pages  *PageCollector
}

func newBaseCrawler(site models.Site, opts Options) baseCrawler {
	return baseCrawler{site: site, opts: opts}
}

// begin 为一次爬取重置状态
func (b *baseCrawler) begin(ctx context.Context, renderer PageRenderer, hosts ...string) {
	capacity := 1000
	if n := len(b.opts.DetailURLs); n > capacity {
		capacity = n
	}
	b.queue = NewURLQueue(capacity, hosts...)
	b.result = models.NewCrawlResult(b.site)
	b.pages = NewPageCollector(ctx, b.opts.Client, renderer)
}

// finish 汇总统计并输出日志
func (b *baseCrawler) finish() *models.CrawlResult {
	b.queue.Close()
	b.result.Finish()

	stats := b.result.Stats
	utils.Infof("✅ %s 爬取完成", b.site.DisplayName())
	utils.Infof("列表页: %d, 政策: %d, 详情页: %d (失败 %d, 重复跳过 %d)",
		stats.Pages, stats.Policies, stats.Details, stats.FailedDetails, stats.SkippedDetails)
	utils.Infof("附件: %d, 解读: %d, 耗时: %.2f秒", stats.Attachments, stats.Interpretations, stats.Duration)
	return b.result
}

// enqueue 详情页入队, 重复时计入跳过
func (b *baseCrawler) enqueue(item models.DetailItem) {
	if !b.opts.Config.FetchDetails {
		return
	}
	if err := b.queue.Push(item); err != nil {
		if errors.Is(err, ErrDuplicateURL) {
			b.result.Stats.SkippedDetails++
			utils.Debugf("详情页重复, 跳过: %s", item.URL)
			return
		}
		utils.Warnf("详情页入队失败 [%s]: %v", item.URL, err)
	}
}

// drainDetails 依次处理队列中的详情页, 失败记录后继续
func (b *baseCrawler) drainDetails(ctx context.Context, handle func(item models.DetailItem) error) error {
	first := true
	for {
		item, ok := b.queue.TryPop()
		if !ok {
			return nil
		}
		if !first {
			if err := sleepCtx(ctx, b.opts.Config.DetailDelay); err != nil {
				return err
			}
		}
		first = false

		if err := handle(item); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			b.recordFailure(item.URL, err)
			b.result.Stats.FailedDetails++
			continue
		}
		b.result.Stats.Details++
	}
}

// recordFailure 记录失败项
func (b *baseCrawler) recordFailure(rawURL string, err error) {
	utils.Warnf("抓取失败 [%s]: %v", rawURL, err)

	item := models.FailedItem{URL: rawURL, ErrorType: "parse_error", ErrorMsg: err.Error()}
	var fe *models.FetchError
	if errors.As(err, &fe) {
		item.ErrorType = fe.ErrorType()
		item.Retries = fe.Attempts
	}
	b.result.Failed = append(b.result.Failed, item)
}

// saveRawPage 保存原始列表页到 {output}/{dirs...}/page_{n}_{ts}.{ext}
func (b *baseCrawler) saveRawPage(page int, ext string, body []byte, dirs ...string) {
	if !b.opts.Config.SaveRawPages {
		return
	}
	parts := []string{b.opts.OutputDir}
	for _, d := range dirs {
		parts = append(parts, sanitizeDirName(d))
	}
	target := filepath.Join(parts...)
	if err := os.MkdirAll(target, 0755); err != nil {
		utils.Warnf("创建目录失败: %v", err)
		return
	}

	name := fmt.Sprintf("page_%d_%s.%s", page, time.Now().Format("20060102_150405"), ext)
	path := filepath.Join(target, name)
	if err := os.WriteFile(path, body, 0644); err != nil {
		utils.Warnf("保存页面失败: %v", err)
		return
	}
	utils.Debugf("已保存: %s", path)
}

// capContent 正文超过上限时截断
func (b *baseCrawler) capContent(content string) string {
	return utils.TruncateRunes(content, b.opts.Config.MaxContentLen)
}

// addAttachments 按文件类型分组追加附件记录
func (b *baseCrawler) addAttachments(ref models.PolicyRef, names, links []string) {
	b.result.Attachments = append(b.result.Attachments, groupAttachments(ref, names, links)...)
}

func (b *baseCrawler) baseURL(def string) string {
	if b.opts.BaseURL != "" {
		return strings.TrimRight(b.opts.BaseURL, "/")
	}
	return def
}

// attachmentGroups 附件分组顺序
var attachmentGroups = []string{"PDF", "OFD", "Word", "Excel", "其他"}

// attachmentGroup 按链接后缀判断附件分组
func attachmentGroup(link string) string {
	path := strings.ToLower(link)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	switch {
	case strings.HasSuffix(path, ".pdf"):
		return "PDF"
	case strings.HasSuffix(path, ".ofd"):
		return "OFD"
	case strings.HasSuffix(path, ".doc"), strings.HasSuffix(path, ".docx"):
		return "Word"
	case strings.HasSuffix(path, ".xls"), strings.HasSuffix(path, ".xlsx"):
		return "Excel"
	default:
		return "其他"
	}
}

// groupAttachments 同一政策的附件按类型分组, 每组一条记录
// 名称或链接为空的项被忽略
func groupAttachments(ref models.PolicyRef, names, links []string) []models.AttachmentRecord {
	groups := make(map[string]*models.AttachmentRecord)
	for i, link := range links {
		if i >= len(names) || names[i] == "" || link == "" {
			continue
		}
		g := attachmentGroup(link)
		rec, ok := groups[g]
		if !ok {
			rec = &models.AttachmentRecord{PolicyRef: ref, FileType: g}
			groups[g] = rec
		}
		rec.Names = append(rec.Names, names[i])
		rec.Links = append(rec.Links, link)
	}

	records := make([]models.AttachmentRecord, 0, len(groups))
	for _, g := range attachmentGroups {
		if rec, ok := groups[g]; ok {
			records = append(records, *rec)
		}
	}
	return records
}

// sanitizeDirName 目录名中的非法字符替换为下划线
func sanitizeDirName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "未分类"
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
}

// sleepCtx 等待指定秒数, ctx取消时提前返回
func sleepCtx(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
