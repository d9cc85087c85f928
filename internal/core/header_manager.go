package core

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/RecoveryAshes/govpolicy/internal/config"
	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// CookieEnvVar 站点Cookie环境变量名, 如 POLICYCRAWL_MOHRSS_COOKIE
func CookieEnvVar(site models.Site) string {
	return fmt.Sprintf("%s_%s_COOKIE", EnvPrefix, site.EnvKey())
}

// HeaderManager 管理每个站点的HTTP请求头部
// 实现 models.HeaderProvider 接口
type HeaderManager struct {
	mu sync.Mutex

	// defaults 系统默认头部
	defaults http.Header

	// common sites.yaml中的公共头部
	common http.Header

	// sites sites.yaml中的站点头部 (含Cookie)
	sites map[models.Site]http.Header

	// cli 从命令行参数解析的头部, 对所有站点生效
	cli http.Header

	// lookupEnv 读取环境变量, 测试中可替换
	lookupEnv func(string) (string, bool)

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.SitesConfigLoader

	loaded bool
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - sitesFile: 站点配置文件路径 (如为空则使用默认路径)
//   - cliHeaders: 命令行传递的头部字符串列表
func NewHeaderManager(sitesFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:     getDefaultHeaders(),
		common:       make(http.Header),
		sites:        make(map[models.Site]http.Header),
		lookupEnv:    os.LookupEnv,
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewSitesConfigLoader(sitesFile),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	} else {
		hm.cli = make(http.Header)
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
// Accept-Encoding 由Fetcher自行解压
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"zh-CN,zh;q=0.9"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 加载站点配置文件, 已加载则跳过
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.loaded {
		return nil
	}

	sitesConfig, err := hm.configLoader.LoadConfig()
	if err != nil {
		utils.Errorf("加载站点配置失败: %v", err)
		return err
	}

	for name, value := range sitesConfig.Headers {
		hm.common.Set(name, value)
	}

	for _, site := range models.AllSites() {
		siteConfig := sitesConfig.Site(site)
		headers := make(http.Header)
		for name, value := range siteConfig.Headers {
			headers.Set(name, value)
		}
		if cookie := strings.TrimSpace(siteConfig.Cookie); cookie != "" {
			headers.Set("Cookie", cookie)
		}
		hm.sites[site] = headers
	}

	hm.loaded = true
	utils.Debugf("已加载站点配置: %s", hm.configLoader.Path())
	return nil
}

// envHeaders 环境变量中的站点Cookie
func (hm *HeaderManager) envHeaders(site models.Site) http.Header {
	headers := make(http.Header)
	if cookie, ok := hm.lookupEnv(CookieEnvVar(site)); ok && strings.TrimSpace(cookie) != "" {
		headers.Set("Cookie", strings.TrimSpace(cookie))
	}
	return headers
}

// Validate 验证指定站点的全部头部
// 验证顺序: 默认 → 公共 → 站点 → 环境变量 → 命令行
func (hm *HeaderManager) Validate(site models.Site) error {
	layers := []struct {
		name    string
		headers http.Header
	}{
		{"默认头部", hm.defaults},
		{"公共配置头部", hm.common},
		{"站点配置头部", hm.sites[site]},
		{"环境变量Cookie", hm.envHeaders(site)},
		{"命令行头部", hm.cli},
	}

	for _, layer := range layers {
		if err := hm.validator.Validate(layer.headers); err != nil {
			utils.Errorf("%s验证失败 [%s]: %v", layer.name, site, err)
			return err
		}
	}

	utils.Debugf("站点 %s 的HTTP头部验证通过", site)
	return nil
}

// GetMergedHeaders 按优先级合并头部
// default < common < site < env < cli
func (hm *HeaderManager) GetMergedHeaders(site models.Site) http.Header {
	result := make(http.Header)

	for _, layer := range []http.Header{
		hm.defaults,
		hm.common,
		hm.sites[site],
		hm.envHeaders(site),
		hm.cli,
	} {
		for name, values := range layer {
			result[name] = values
		}
	}

	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders(site models.Site) map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders(site))
}

// GetHeaders 实现 models.HeaderProvider 接口
func (hm *HeaderManager) GetHeaders(site models.Site) (http.Header, error) {
	if err := hm.LoadConfig(); err != nil {
		return nil, err
	}

	if err := hm.Validate(site); err != nil {
		return nil, err
	}

	return hm.GetMergedHeaders(site), nil
}
