package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/govpolicy/internal/crawlers"
	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// RunOptions 单次爬取的附加参数
type RunOptions struct {
	// DetailURLs 直接抓取的详情页 (人社部)
	DetailURLs []string

	// BaseURL 覆盖站点根地址
	BaseURL string
}

// RunOutput 单站点爬取的产出
type RunOutput struct {
	Task     *models.CrawlTask
	Result   *models.CrawlResult
	Files    []string
	Report   string
	Duration time.Duration
}

// Runner 站点爬取协调器
// 执行流程:
//  1. 为站点创建Fetcher (头部、重试、解压)
//  2. dynamic模式下启动渲染器与资源监控
//  3. 执行站点爬虫
//  4. 写出工作簿与JSON
//  5. 生成爬取报告
type Runner struct {
	config  *Config
	headers models.HeaderProvider
}

// NewRunner 创建协调器
func NewRunner(config *Config, headers models.HeaderProvider) *Runner {
	return &Runner{config: config, headers: headers}
}

// Run 爬取单个站点
// 爬取中途出错时仍会写出已获得的数据, 并返回错误
func (r *Runner) Run(ctx context.Context, site models.Site, opts RunOptions) (*RunOutput, error) {
	start := time.Now()
	cfg := r.config.Crawl

	task, err := models.NewCrawlTask(site, cfg)
	if err != nil {
		return nil, err
	}
	task.Start()

	utils.Infof("🚀 开始爬取任务: %s", site.DisplayName())
	utils.Infof("任务ID: %s, 模式: %s", task.ID, cfg.Mode)
	utils.Infof("输出目录: %s", r.config.Output.BaseDir)

	if err := os.MkdirAll(r.config.Output.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	fetcher := NewFetcherFromConfig(r.config, site, r.headers)
	crawlOpts := crawlers.Options{
		Client:     fetcher.Client(),
		Config:     cfg,
		OutputDir:  r.config.Output.BaseDir,
		BaseURL:    opts.BaseURL,
		DetailURLs: opts.DetailURLs,
	}

	if cfg.Mode == models.ModeDynamic && site == models.SiteMOHRSS {
		monitor := crawlers.NewResourceMonitor(crawlers.DefaultResourceMonitorConfig())
		monitor.StartMonitoring(10 * time.Second)
		defer monitor.StopMonitoring()

		renderer := crawlers.NewRenderer(crawlers.RendererConfig{
			Headless:    cfg.Headless,
			WaitTime:    time.Duration(cfg.WaitTime) * time.Second,
			Timeout:     time.Duration(cfg.Timeout) * time.Second,
			Headers:     r.headers,
			Site:        site,
			Monitor:     monitor,
			MaxRestarts: 3,
		})
		defer func() {
			if err := renderer.Close(); err != nil {
				utils.Warnf("关闭浏览器失败: %v", err)
			}
		}()
		crawlOpts.Renderer = renderer
		utils.Info("🌐 使用无头浏览器渲染页面")
	}

	crawler, err := crawlers.New(site, crawlOpts)
	if err != nil {
		task.Complete(models.CrawlStats{}, err)
		return nil, err
	}

	result, crawlErr := crawler.Crawl(ctx)
	out := &RunOutput{Task: task, Result: result}
	if result == nil {
		task.Complete(models.CrawlStats{}, crawlErr)
		return out, fmt.Errorf("爬取失败: %w", crawlErr)
	}
	task.Complete(result.Stats, crawlErr)

	files, err := r.writeOutputs(result)
	out.Files = files
	if err != nil {
		utils.Errorf("写出结果失败: %v", err)
		if crawlErr == nil {
			crawlErr = err
		}
	}

	reporter := utils.NewReporter(r.config.Output.BaseDir)
	if path, err := reporter.GenerateCrawlReport(result, cfg.Mode, files, cfg); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	} else {
		out.Report = path
	}

	out.Duration = time.Since(start)
	utils.Infof("✅ 爬取任务结束: %s, 政策 %d 条, 耗时 %.2f秒", site.DisplayName(), result.Stats.Policies, out.Duration.Seconds())

	if crawlErr != nil {
		return out, fmt.Errorf("爬取中断: %w", crawlErr)
	}
	return out, nil
}

// writeOutputs 写出 {site}_policies_{时间}.xlsx 与同名JSON
func (r *Runner) writeOutputs(result *models.CrawlResult) ([]string, error) {
	stamp := result.StartTime.Format("20060102_150405")
	base := filepath.Join(r.config.Output.BaseDir, fmt.Sprintf("%s_policies_%s", result.Site, stamp))

	var files []string
	xlsxPath := base + ".xlsx"
	if err := WriteCrawlWorkbook(xlsxPath, result, crawlers.Categories(result.Site)); err != nil {
		return files, err
	}
	files = append(files, xlsxPath)

	if r.config.Output.WriteJSON {
		jsonPath := base + ".json"
		if err := WriteCrawlJSON(jsonPath, result); err != nil {
			return files, err
		}
		files = append(files, jsonPath)
	}
	return files, nil
}
