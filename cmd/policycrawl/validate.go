package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/govpolicy/internal/core"
	"github.com/RecoveryAshes/govpolicy/internal/crawlers"
	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// siteHomes 各站点首页, 用于 --probe
var siteHomes = map[models.Site]string{
	models.SiteNDRC:   crawlers.NDRCBaseURL + "/",
	models.SiteMOHRSS: crawlers.MOHRSSBaseURL + "/",
	models.SiteGZRSJ:  crawlers.GZRSJBaseURL + "/",
}

// ParseSites 解析站点参数, "all" 表示全部站点, 重复的站点只保留一次
func ParseSites(args []string) ([]models.Site, error) {
	var sites []models.Site
	seen := make(map[models.Site]bool)
	for _, arg := range args {
		if strings.EqualFold(strings.TrimSpace(arg), "all") {
			for _, s := range models.AllSites() {
				if !seen[s] {
					seen[s] = true
					sites = append(sites, s)
				}
			}
			continue
		}
		s, err := models.ParseSite(arg)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			sites = append(sites, s)
		}
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("未指定站点")
	}
	return sites, nil
}

// ValidateCrawlFlags 验证爬取命令的标志, 未设置的值(负数)跳过
func ValidateCrawlFlags(o core.CLIOverrides, batchDelay int) error {
	if o.MaxPages > 1000 {
		return fmt.Errorf("最大页数必须在0-1000之间,当前值: %d", o.MaxPages)
	}
	if o.PageDelay > 60 || o.DetailDelay > 60 {
		return fmt.Errorf("请求间隔必须在0-60秒之间")
	}
	if o.Timeout == 0 || o.Timeout > 300 {
		return fmt.Errorf("请求超时必须在1-300秒之间,当前值: %d", o.Timeout)
	}
	if o.Retries == 0 || o.Retries > 10 {
		return fmt.Errorf("重试次数必须在1-10之间,当前值: %d", o.Retries)
	}
	if o.Mode != "" {
		if _, err := models.ParseCrawlMode(o.Mode); err != nil {
			return err
		}
	}
	if batchDelay < 0 || batchDelay > 600 {
		return fmt.Errorf("站点间延迟必须在0-600秒之间,当前值: %d", batchDelay)
	}
	return nil
}

// ValidateInputFile 验证输入文件存在且为xlsx
func ValidateInputFile(path string) error {
	if path == "" {
		return fmt.Errorf("输入文件路径不能为空")
	}
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return fmt.Errorf("仅支持 .xlsx 文件: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("无法读取输入文件: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("输入路径是目录: %s", path)
	}
	return nil
}

var (
	validateSites []string
	probe         bool
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "验证配置文件与站点请求头",
	Long: `加载 config.yaml 与 sites.yaml, 验证每个站点合并后的HTTP头部并脱敏输出。
使用 --probe 请求站点首页, 检查Cookie与网络是否可用。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sites := models.AllSites()
		if len(validateSites) > 0 {
			parsed, err := ParseSites(validateSites)
			if err != nil {
				return err
			}
			sites = parsed
		}

		utils.Info("🔍 验证配置...")
		headerManager, err := newHeaderManager()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		failed := 0
		for _, site := range sites {
			if err := headerManager.Validate(site); err != nil {
				utils.Errorf("❌ %s: %v", site.DisplayName(), err)
				failed++
				continue
			}

			safe := headerManager.GetSafeHeaders(site)
			names := make([]string, 0, len(safe))
			for name := range safe {
				names = append(names, name)
			}
			sort.Strings(names)

			utils.Infof("✅ %s: %d 个HTTP头部", site.DisplayName(), len(safe))
			for _, name := range names {
				utils.Infof("  %s: %s", name, safe[name])
			}
			if _, ok := safe["Cookie"]; !ok {
				utils.Debugf("  未配置Cookie, 可通过 sites.yaml 或环境变量 %s 设置", core.CookieEnvVar(site))
			}

			if !probe {
				continue
			}
			fetcher := core.NewFetcherFromConfig(appConfig, site, headerManager)
			resp, err := fetcher.Get(ctx, siteHomes[site], "")
			if err != nil {
				utils.Errorf("❌ 访问 %s 失败: %v", siteHomes[site], err)
				failed++
				continue
			}
			utils.Infof("🌐 %s 可访问 (HTTP %d, %d 字节)", siteHomes[site], resp.StatusCode, len(resp.Body))
		}

		if failed > 0 {
			return fmt.Errorf("%d 个站点验证失败", failed)
		}
		utils.Info("✅ 配置验证通过!")
		return nil
	},
}

func init() {
	validateConfigCmd.Flags().StringSliceVar(&validateSites, "site", nil, "只验证指定站点 (ndrc|mohrss|gzrsj|all)")
	validateConfigCmd.Flags().BoolVar(&probe, "probe", false, "请求站点首页检查连通性")
}
