package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/govpolicy/internal/core"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 全局参数
var (
	configFile string
	verbose    bool
	logLevel   string
	headers    []string // 自定义HTTP请求头

	// appConfig 在PersistentPreRunE中加载
	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "policycrawl",
	Short: "政策网站爬取与整理工具",
	Long: `policycrawl - 政策网站爬取与整理工具集

支持的站点:
  • ndrc    国家发展改革委 政策发布
  • mohrss  人力资源和社会保障部 政策法规
  • gzrsj   广州市人力资源和社会保障局 政府信息公开

功能:
  • 爬取政策列表、正文、附件与解读, 输出Excel/JSON
  • 正文按章节、条款智能分段
  • 附件拆解为一行一个附件并识别文件类型
  • 按分类批量下载附件

示例:
  policycrawl crawl ndrc --max-pages 5
  policycrawl crawl all --continue-on-error
  policycrawl split-content -i results/ndrc_policies.xlsx
  policycrawl split-attachments -i results/ndrc_policies.xlsx
  policycrawl download -i results/ndrc_policies_附件拆解.xlsx -o downloads
  policycrawl validate-config --probe

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := config.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		} else if verbose {
			logConfig.Level = "debug"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = config
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("policycrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// signalContext Ctrl+C 取消正在进行的任务, 已获取的数据仍会写出
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			utils.Warnf("收到中断信号: %v, 正在保存已获取的数据...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// newHeaderManager 创建并加载站点头部配置
func newHeaderManager() (*core.HeaderManager, error) {
	hm, err := core.NewHeaderManager(appConfig.SitesFile, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := hm.LoadConfig(); err != nil {
		return nil, fmt.Errorf("加载站点配置失败: %w", err)
	}
	return hm, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(splitContentCmd)
	rootCmd.AddCommand(splitAttachmentsCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
