package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/govpolicy/internal/core"
	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// 爬取参数
var (
	crawlFlags = core.NoOverrides()

	urlFile string
	baseURL string

	// 批量处理参数
	batchDelay      int
	continueOnError bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [ndrc|mohrss|gzrsj|all]...",
	Short: "爬取政策网站",
	Long: `爬取一个或多个政策网站, 输出 {站点}_policies_{时间}.xlsx 与JSON。

多个站点按顺序爬取, 站点之间等待 --batch-delay 秒。
人社部可通过 --url-file 直接指定详情页URL列表, 跳过列表页。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sites, err := ParseSites(args)
		if err != nil {
			return err
		}
		if err := ValidateCrawlFlags(crawlFlags, batchDelay); err != nil {
			return err
		}
		if err := appConfig.MergeCLIFlags(crawlFlags); err != nil {
			return fmt.Errorf("参数无效: %w", err)
		}

		headerManager, err := newHeaderManager()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		runner := core.NewRunner(appConfig, headerManager)

		if len(sites) == 1 {
			opts := core.RunOptions{BaseURL: baseURL}
			if urlFile != "" {
				if sites[0] != models.SiteMOHRSS {
					return fmt.Errorf("--url-file 仅支持 mohrss")
				}
				urls, err := utils.ReadURLsFromFile(urlFile)
				if err != nil {
					return fmt.Errorf("读取URL文件失败: %w", err)
				}
				opts.DetailURLs = urls
			}

			out, err := runner.Run(ctx, sites[0], opts)
			if out != nil && out.Result != nil {
				printCrawlStats(out)
			}
			if err != nil {
				return err
			}
			utils.Info("✨ 爬取任务完成!")
			return nil
		}

		if urlFile != "" || baseURL != "" {
			utils.Warn("批量爬取时忽略 --url-file 与 --base-url")
		}

		batch := core.NewBatchCrawler(runner, time.Duration(batchDelay)*time.Second, continueOnError)
		if _, err := batch.CrawlBatch(ctx, sites, appConfig.Crawl); err != nil {
			return fmt.Errorf("批量爬取失败: %w", err)
		}

		utils.Info("✨ 批量爬取任务完成!")
		return nil
	},
}

func printCrawlStats(out *core.RunOutput) {
	stats := out.Result.Stats
	fmt.Println("\n==================================================")
	fmt.Printf("📊 爬取统计: %s\n", out.Result.Site.DisplayName())
	fmt.Println("==================================================")
	fmt.Printf("✅ 列表页数: %d\n", stats.Pages)
	fmt.Printf("✅ 政策条数: %d\n", stats.Policies)
	fmt.Printf("✅ 详情页: %d (失败 %d, 重复跳过 %d)\n", stats.Details, stats.FailedDetails, stats.SkippedDetails)
	fmt.Printf("📎 附件链接: %d\n", stats.Attachments)
	fmt.Printf("📖 政策解读: %d\n", stats.Interpretations)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", out.Duration.Seconds())
	for _, f := range out.Files {
		fmt.Printf("📁 %s\n", f)
	}
	if out.Report != "" {
		fmt.Printf("📝 报告: %s\n", out.Report)
	}
	fmt.Println("==================================================")
}

func init() {
	f := crawlCmd.Flags()
	f.IntVar(&crawlFlags.MaxPages, "max-pages", -1, "每个分类最多抓取的列表页数 (0表示不限)")
	f.Float64Var(&crawlFlags.PageDelay, "page-delay", -1, "列表页间隔(秒)")
	f.Float64Var(&crawlFlags.DetailDelay, "detail-delay", -1, "详情页间隔(秒)")
	f.IntVar(&crawlFlags.Timeout, "timeout", -1, "请求超时(秒)")
	f.StringVarP(&crawlFlags.Mode, "mode", "m", "", "爬取模式 (static|dynamic)")
	f.IntVar(&crawlFlags.Retries, "retries", -1, "请求最大尝试次数")
	f.StringVarP(&crawlFlags.OutputDir, "output", "o", "", "输出目录")
	f.StringSliceVar(&crawlFlags.Categories, "category", nil, "只爬取指定分类,可多次指定")
	f.BoolVar(&crawlFlags.InsecureTLS, "insecure", false, "跳过TLS证书校验")
	f.BoolVar(&crawlFlags.SaveRaw, "save-raw", false, "保存原始列表页")
	f.BoolVar(&crawlFlags.SkipDetails, "skip-details", false, "只抓取列表, 不请求详情页")

	f.StringVarP(&urlFile, "url-file", "f", "", "详情页URL列表文件 (仅mohrss)")
	f.StringVar(&baseURL, "base-url", "", "覆盖站点根地址 (镜像或测试环境)")

	f.IntVar(&batchDelay, "batch-delay", 3, "站点之间延迟(秒)")
	f.BoolVar(&continueOnError, "continue-on-error", true, "某个站点失败后继续爬取其他站点")
}
