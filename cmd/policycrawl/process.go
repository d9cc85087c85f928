package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/govpolicy/internal/attachments"
	"github.com/RecoveryAshes/govpolicy/internal/core"
	"github.com/RecoveryAshes/govpolicy/internal/crawlers"
	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

var (
	inputFile  string
	outputFile string

	segmentFlags = core.NoOverrides()

	downloadFlags = core.NoOverrides()
	downloadDir   string
	downloadSite  string
	noProgress    bool
	indexTitle    string
)

// derivedPath 在输入文件名后追加后缀, 如 a.xlsx → a_正文分段.xlsx
func derivedPath(input, suffix string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_" + suffix + ".xlsx"
}

var splitContentCmd = &cobra.Command{
	Use:   "split-content",
	Short: "政策正文分段",
	Long: `读取 "政策正文" 工作表, 按章节、条款等结构将正文切分为不超过指定长度的段落,
每段一行写入 "政策正文_分段" 工作表。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateInputFile(inputFile); err != nil {
			return err
		}
		if err := appConfig.MergeCLIFlags(segmentFlags); err != nil {
			return fmt.Errorf("参数无效: %w", err)
		}

		out := outputFile
		if out == "" {
			out = derivedPath(inputFile, "正文分段")
		}

		stats, err := core.SplitContentWorkbook(inputFile, out, appConfig.Segmenter())
		if err != nil {
			return fmt.Errorf("正文分段失败: %w", err)
		}
		utils.Infof("✨ 分段完成: %d 条政策, %d 个段落", stats.Policies, stats.Segments)
		return nil
	},
}

var splitAttachmentsCmd = &cobra.Command{
	Use:   "split-attachments",
	Short: "政策附件拆解",
	Long: `读取 "政策附件" 工作表, 将合并在一个单元格中的多个附件拆为一行一个,
并识别文件类型, 写入 "政策附件_拆解" 工作表。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateInputFile(inputFile); err != nil {
			return err
		}

		out := outputFile
		if out == "" {
			out = derivedPath(inputFile, "附件拆解")
		}

		stats, err := attachments.SplitAttachmentWorkbook(inputFile, out)
		if err != nil {
			return fmt.Errorf("附件拆解失败: %w", err)
		}
		utils.Infof("✨ 拆解完成: %d 条政策, %d 行", stats.Policies, stats.Rows)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "批量下载附件",
	Long: `从Excel文件读取附件链接, 按政策分类下载到输出目录, 并生成附件索引与下载报告。

并发数受系统内存与CPU负载限制; --site 指定时使用该站点的请求头与Cookie。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateInputFile(inputFile); err != nil {
			return err
		}
		if err := appConfig.MergeCLIFlags(downloadFlags); err != nil {
			return fmt.Errorf("参数无效: %w", err)
		}

		var site models.Site
		if downloadSite != "" {
			s, err := models.ParseSite(downloadSite)
			if err != nil {
				return err
			}
			site = s
		}

		outDir := downloadDir
		if outDir == "" {
			outDir = appConfig.Download.OutputDir
		}

		headerManager, err := newHeaderManager()
		if err != nil {
			return err
		}

		fetcher := core.NewFetcher(core.FetcherOptions{
			Site:        site,
			Headers:     headerManager,
			Retry:       appConfig.RetryPolicy(),
			Timeout:     time.Duration(appConfig.Download.Timeout) * time.Second,
			InsecureTLS: appConfig.Crawl.InsecureTLS,
		})

		monitor := crawlers.NewResourceMonitor(crawlers.DefaultResourceMonitorConfig())
		monitor.StartMonitoring(5 * time.Second)
		defer monitor.StopMonitoring()
		if ok, msg := monitor.CheckResourceAvailability(); !ok {
			utils.Warnf("⚠️  %s", msg)
		}

		downloader := attachments.NewDownloader(fetcher, attachments.Options{
			OutputDir: outDir,
			Workers:   appConfig.Download.Workers,
			Delay:     time.Duration(appConfig.Download.Delay * float64(time.Second)),
			Limiter:   monitor,
			Progress:  !noProgress,
		})

		ctx, stop := signalContext()
		defer stop()

		report, downloadErr := downloader.DownloadWorkbook(ctx, inputFile)
		if report == nil {
			return fmt.Errorf("下载失败: %w", downloadErr)
		}

		if path, err := attachments.WriteIndex(outDir, indexTitle); err != nil {
			utils.Warnf("生成附件索引失败: %v", err)
		} else {
			utils.Infof("📑 附件索引: %s", path)
		}

		reporter := utils.NewReporter(outDir)
		if path, err := reporter.GenerateDownloadReport(report); err != nil {
			utils.Warnf("生成下载报告失败: %v", err)
		} else {
			utils.Infof("📝 下载报告: %s", path)
		}

		if downloadErr != nil {
			return downloadErr
		}
		utils.Info("✨ 下载任务完成!")
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{splitContentCmd, splitAttachmentsCmd, downloadCmd} {
		cmd.Flags().StringVarP(&inputFile, "input", "i", "", "输入Excel文件 (必需)")
		_ = cmd.MarkFlagRequired("input")
	}
	for _, cmd := range []*cobra.Command{splitContentCmd, splitAttachmentsCmd} {
		cmd.Flags().StringVarP(&outputFile, "output", "o", "", "输出Excel文件 (默认在输入文件名后追加后缀)")
	}

	splitContentCmd.Flags().IntVar(&segmentFlags.MaxChars, "max-chars", -1, "每段最大字符数")
	splitContentCmd.Flags().StringVar(&segmentFlags.Strategy, "strategy", "", "分段策略 (strict|simple)")

	downloadCmd.Flags().StringVarP(&downloadDir, "output", "o", "", "下载目录")
	downloadCmd.Flags().IntVarP(&downloadFlags.Workers, "workers", "w", -1, "并发下载数")
	downloadCmd.Flags().IntVar(&downloadFlags.Retries, "retries", -1, "每个文件最大尝试次数")
	downloadCmd.Flags().BoolVar(&downloadFlags.InsecureTLS, "insecure", false, "跳过TLS证书校验")
	downloadCmd.Flags().StringVar(&downloadSite, "site", "", "使用该站点的请求头与Cookie (ndrc|mohrss|gzrsj)")
	downloadCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")
	downloadCmd.Flags().StringVar(&indexTitle, "index-title", "", "附件索引标题")
}
