package attachments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/RecoveryAshes/govpolicy/internal/core"
	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/sheet"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

const (
	// IndexFileName 下载目录中的索引文件
	IndexFileName = "附件索引.txt"

	maxFilenameRunes = 200

	// 小于该字节数的HTML响应多为错误页或跳转页
	suspiciousHTMLSize = 10000

	unknownCategory = "未知分类"
)

// ErrNoLinkColumn 工作簿中找不到附件链接列
var ErrNoLinkColumn = errors.New("找不到附件链接列")

// Fetcher 下载附件的请求接口, 由 *core.Fetcher 实现
type Fetcher interface {
	GetBytes(ctx context.Context, rawURL, referer string) (*core.Response, error)
}

// WorkerLimiter 按系统资源限制并发数, 由 *crawlers.ResourceMonitor 实现
type WorkerLimiter interface {
	CapWorkers(requested int) int
}

// Options 下载配置
type Options struct {
	OutputDir string
	Workers   int

	// Delay 每个worker两次下载之间的间隔
	Delay time.Duration

	Limiter  WorkerLimiter
	Progress bool
}

// Downloader 附件下载器
type Downloader struct {
	fetcher Fetcher
	opts    Options

	mu     sync.Mutex
	stats  models.DownloadStats
	files  []models.FileInfo
	failed []models.FailedItem
}

// NewDownloader 创建下载器
func NewDownloader(fetcher Fetcher, opts Options) *Downloader {
	if opts.OutputDir == "" {
		opts.OutputDir = "downloads"
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Downloader{fetcher: fetcher, opts: opts}
}

// Source 从工作簿读取的待下载附件
type Source struct {
	Path         string
	Sheet        string
	Items        []models.Attachment
	MissingLinks int // 没有链接而跳过的行
}

// LoadAttachments 读取工作簿中的附件列表
//
// 使用第一个包含附件或链接列的工作表; 链接列优先取 "附件链接",
// 其次取不属于政策本身的 "链接" 列。未拆分的单元格含多个链接时逐个拆开。
func LoadAttachments(path string) (*Source, error) {
	tables, err := sheet.ReadAll(path)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("工作簿中没有工作表: %s", path)
	}

	t := tables[0]
	for _, candidate := range tables {
		if findColumn(candidate.Header, func(h string) bool {
			return strings.Contains(h, "附件") || strings.Contains(h, "链接")
		}) != "" {
			t = candidate
			break
		}
	}

	linkCol := findColumn(t.Header, func(h string) bool { return strings.Contains(h, sheet.ColAttachmentLinks) })
	if linkCol == "" {
		linkCol = findColumn(t.Header, func(h string) bool {
			return strings.Contains(h, "链接") && !strings.Contains(h, "政策")
		})
	}
	if linkCol == "" {
		return nil, fmt.Errorf("%w: 工作表 %s", ErrNoLinkColumn, t.Name)
	}
	nameCol := findColumn(t.Header, func(h string) bool { return strings.Contains(h, sheet.ColAttachmentNames) })
	titleCol := findColumn(t.Header, func(h string) bool { return strings.Contains(h, sheet.ColTitle) })
	categoryCol := findColumn(t.Header, func(h string) bool { return strings.Contains(h, sheet.ColCategory) })
	policyURLCol := findColumn(t.Header, func(h string) bool { return h == sheet.ColURL })

	utils.Infof("使用工作表: %s, 共 %d 行", t.Name, len(t.Rows))
	utils.Debugf("链接列: %s, 名称列: %s, 标题列: %s, 分类列: %s", linkCol, nameCol, titleCol, categoryCol)

	src := &Source{Path: path, Sheet: t.Name}
	for i, row := range t.Rows {
		link := row[linkCol]
		if link == "" {
			utils.Warnf("跳过无链接的附件 (行 %d)", i+2)
			src.MissingLinks++
			continue
		}

		base := models.Attachment{
			Category:    valueOr(row[categoryCol], unknownCategory),
			PolicyTitle: valueOr(row[titleCol], fmt.Sprintf("政策_%d", i)),
			PolicyURL:   row[policyURLCol],
		}
		for _, it := range expandCell(row[nameCol], link) {
			a := base
			a.Name = it.Name
			a.URL = it.Link
			src.Items = append(src.Items, a)
		}
	}
	return src, nil
}

// expandCell 一个单元格可能包含多个链接
func expandCell(name, link string) []Item {
	links := ExtractLinks(link)
	switch {
	case len(links) == 1:
		return []Item{{Name: name, Link: links[0]}}
	case len(links) > 1 && name != "":
		return Split(name, link)
	case len(links) > 1:
		items := make([]Item, len(links))
		for i, l := range links {
			items[i] = Item{Link: l}
		}
		return items
	}
	return []Item{{Name: name, Link: link}}
}

func findColumn(header []string, match func(string) bool) string {
	for _, h := range header {
		if h != "" && match(h) {
			return h
		}
	}
	return ""
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type downloadTask struct {
	item models.Attachment
	path string
}

// DownloadWorkbook 读取工作簿并下载全部附件
func (d *Downloader) DownloadWorkbook(ctx context.Context, path string) (*models.DownloadReport, error) {
	src, err := LoadAttachments(path)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.stats.Skipped += src.MissingLinks
	d.mu.Unlock()

	report, err := d.Download(ctx, src.Items)
	if report != nil {
		report.Source = path
	}
	return report, err
}

// Download 并发下载附件到 {OutputDir}/{政策分类}/
// 已存在的文件跳过; ctx取消时返回已完成部分的报告和ctx错误
func (d *Downloader) Download(ctx context.Context, items []models.Attachment) (*models.DownloadReport, error) {
	start := time.Now()
	tasks := d.plan(items)

	workers := d.opts.Workers
	if d.opts.Limiter != nil {
		workers = d.opts.Limiter.CapWorkers(workers)
	}
	workers = max(1, min(workers, len(tasks)))

	utils.Infof("📥 开始下载附件: %d 个文件, 并发 %d", len(tasks), workers)
	utils.Infof("保存目录: %s", d.opts.OutputDir)

	var bar interface{ Add(int) error }
	if d.opts.Progress && len(tasks) > 0 {
		pb := utils.NewProgressBar(len(tasks), "下载附件")
		defer pb.Finish()
		bar = pb
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d.fetch(gctx, t)
			if bar != nil {
				_ = bar.Add(1)
			}
			return sleepCtx(gctx, d.opts.Delay)
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	d.mu.Lock()
	report := &models.DownloadReport{
		TaskID:    models.NewRunID(),
		OutputDir: d.opts.OutputDir,
		StartTime: start,
		EndTime:   time.Now(),
		Workers:   workers,
		Stats:     d.stats,
		Files:     append([]models.FileInfo(nil), d.files...),
		Failed:    append([]models.FailedItem(nil), d.failed...),
	}
	d.mu.Unlock()
	report.Duration = report.EndTime.Sub(start).Seconds()

	logStats(report)
	if err != nil {
		return report, fmt.Errorf("下载中断: %w", err)
	}
	return report, nil
}

// plan 计算每个附件的保存路径
// 同一次下载中不同URL得到相同文件名时追加编号, 相同URL只下载一次
func (d *Downloader) plan(items []models.Attachment) []downloadTask {
	planned := make(map[string]string, len(items))
	tasks := make([]downloadTask, 0, len(items))

	for _, it := range items {
		dir := filepath.Join(d.opts.OutputDir, valueOr(CleanFilename(it.Category), unknownCategory))
		name := Filename(it.Name, it.URL)
		p := filepath.Join(dir, name)

		if u, ok := planned[p]; ok {
			if u == it.URL {
				utils.Debugf("重复附件, 跳过: %s", it.URL)
				d.stats.Total++
				d.stats.Skipped++
				continue
			}
			ext := filepath.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			for i := 1; ; i++ {
				p = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
				if _, taken := planned[p]; !taken {
					break
				}
			}
		}
		planned[p] = it.URL
		tasks = append(tasks, downloadTask{item: it, path: p})
	}
	return tasks
}

// fetch 下载单个附件
func (d *Downloader) fetch(ctx context.Context, t downloadTask) {
	name := filepath.Base(t.path)

	if _, err := os.Stat(t.path); err == nil {
		utils.Infof("文件已存在, 跳过: %s", name)
		d.mu.Lock()
		d.stats.Total++
		d.stats.Skipped++
		d.mu.Unlock()
		return
	}

	utils.Debugf("正在下载: %s <- %s", name, t.item.URL)
	resp, err := d.fetcher.GetBytes(ctx, t.item.URL, t.item.PolicyURL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.fail(t.item.URL, err)
		return
	}

	mime := mimetype.Detect(resp.Body)
	suspicious := mime.Is("text/html") && len(resp.Body) < suspiciousHTMLSize
	if suspicious {
		utils.Warnf("可能是网页而不是文件: %s (%d bytes)", name, len(resp.Body))
	}

	if err := writeFile(t.path, resp.Body); err != nil {
		d.fail(t.item.URL, err)
		return
	}

	utils.Infof("下载成功: %s (%d bytes)", name, len(resp.Body))
	d.mu.Lock()
	d.stats.Total++
	d.stats.Success++
	d.stats.Bytes += int64(len(resp.Body))
	d.files = append(d.files, models.FileInfo{
		URL:          t.item.URL,
		FilePath:     t.path,
		Size:         int64(len(resp.Body)),
		MimeType:     mime.String(),
		Suspicious:   suspicious,
		DownloadedAt: time.Now(),
	})
	d.mu.Unlock()
}

func (d *Downloader) fail(rawURL string, err error) {
	utils.Errorf("下载失败 [%s]: %v", rawURL, err)

	item := models.FailedItem{URL: rawURL, ErrorType: "io_error", ErrorMsg: err.Error()}
	var fe *models.FetchError
	if errors.As(err, &fe) {
		item.ErrorType = fe.ErrorType()
		item.Retries = fe.Attempts
	}

	d.mu.Lock()
	d.stats.Total++
	d.stats.Failed++
	d.failed = append(d.failed, item)
	d.mu.Unlock()
}

// writeFile 先写临时文件再改名, 中断时不留下半个文件
func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	tmp := p + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("保存文件失败: %w", err)
	}
	return nil
}

var illegalChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
	"\r", " ", "\n", " ", "\t", " ",
)

// CleanFilename 替换文件名中的非法字符, 超过200个字符时截断主体保留扩展名
func CleanFilename(name string) string {
	name = strings.TrimSpace(illegalChars.Replace(name))
	if name == "." || name == ".." {
		return "_"
	}

	runes := []rune(name)
	if len(runes) <= maxFilenameRunes {
		return name
	}
	ext := []rune(filepath.Ext(name))
	if len(ext) >= maxFilenameRunes {
		return string(runes[:maxFilenameRunes])
	}
	return string(runes[:maxFilenameRunes-len(ext)]) + string(ext)
}

// Filename 由附件名称和链接生成文件名
//
// 名称没有已知扩展名时从链接补全 (无法判断时为 .pdf);
// 没有名称时使用链接中的文件名, 都没有时为 attachment_{时间戳}.pdf。
func Filename(name, link string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		if _, known := extTypes[strings.ToLower(filepath.Ext(name))]; !known {
			name += guessExtension(link)
		}
		return CleanFilename(name)
	}

	if u, err := url.Parse(link); err == nil {
		if base := path.Base(u.Path); strings.Contains(base, ".") && base != "." {
			return CleanFilename(base)
		}
	}
	return fmt.Sprintf("attachment_%d.pdf", time.Now().Unix())
}

func guessExtension(link string) string {
	if ext := Extension(link); ext != "" {
		return ext
	}
	lower := strings.ToLower(link)
	switch {
	case strings.Contains(lower, "pdf"):
		return ".pdf"
	case strings.Contains(lower, "doc"):
		return ".doc"
	case strings.Contains(lower, "xls"):
		return ".xls"
	}
	return ".pdf"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func logStats(r *models.DownloadReport) {
	s := r.Stats
	utils.Info("📊 附件下载统计")
	utils.Infof("总附件数: %d", s.Total)
	utils.Infof("下载成功: %d", s.Success)
	utils.Infof("下载失败: %d", s.Failed)
	utils.Infof("跳过文件: %d", s.Skipped)
	if s.Total > 0 {
		utils.Infof("成功率: %.1f%%", s.SuccessRate())
	}
	utils.Infof("总大小: %.2f MB, 耗时: %.1f秒", float64(s.Bytes)/(1024*1024), r.Duration)
	if abs, err := filepath.Abs(r.OutputDir); err == nil {
		utils.Infof("文件保存目录: %s", abs)
	}
}
