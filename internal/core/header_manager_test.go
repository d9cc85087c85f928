package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/govpolicy/internal/models"
)

func writeSitesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入站点配置失败: %v", err)
	}
	return path
}

func newTestHeaderManager(t *testing.T, sitesContent string, cli []string, env map[string]string) *HeaderManager {
	t.Helper()
	hm, err := NewHeaderManager(writeSitesFile(t, sitesContent), cli)
	if err != nil {
		t.Fatalf("创建HeaderManager失败: %v", err)
	}
	hm.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return hm
}

const testSitesYAML = `headers:
  Accept-Language: "zh-CN"
sites:
  ndrc:
    headers:
      Referer: "https://www.ndrc.gov.cn/"
      User-Agent: "NDRC-Bot/1.0"
    cookie: "from=config"
  mohrss:
    headers:
      Referer: "https://www.mohrss.gov.cn/"
`

func TestHeaderManager_GetMergedHeaders(t *testing.T) {
	t.Run("按优先级合并", func(t *testing.T) {
		hm := newTestHeaderManager(t, testSitesYAML, []string{"X-Trace: cli"}, nil)
		headers, err := hm.GetHeaders(models.SiteNDRC)
		if err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}

		if headers.Get("User-Agent") != "NDRC-Bot/1.0" {
			t.Errorf("站点配置应覆盖默认User-Agent, 得到 %q", headers.Get("User-Agent"))
		}
		if headers.Get("Accept-Language") != "zh-CN" {
			t.Errorf("公共配置应覆盖默认值, 得到 %q", headers.Get("Accept-Language"))
		}
		if headers.Get("Cookie") != "from=config" {
			t.Errorf("Cookie = %q", headers.Get("Cookie"))
		}
		if headers.Get("X-Trace") != "cli" {
			t.Error("命令行头部应生效")
		}
	})

	t.Run("站点之间互不影响", func(t *testing.T) {
		hm := newTestHeaderManager(t, testSitesYAML, nil, nil)
		headers, err := hm.GetHeaders(models.SiteMOHRSS)
		if err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}
		if headers.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("mohrss应使用默认User-Agent, 得到 %q", headers.Get("User-Agent"))
		}
		if headers.Get("Cookie") != "" {
			t.Errorf("mohrss不应携带ndrc的Cookie: %q", headers.Get("Cookie"))
		}
	})

	t.Run("环境变量Cookie覆盖配置文件", func(t *testing.T) {
		env := map[string]string{"POLICYCRAWL_NDRC_COOKIE": "from=env"}
		hm := newTestHeaderManager(t, testSitesYAML, nil, env)
		headers, err := hm.GetHeaders(models.SiteNDRC)
		if err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}
		if headers.Get("Cookie") != "from=env" {
			t.Errorf("Cookie = %q", headers.Get("Cookie"))
		}
	})

	t.Run("命令行Cookie优先级最高", func(t *testing.T) {
		env := map[string]string{"POLICYCRAWL_NDRC_COOKIE": "from=env"}
		hm := newTestHeaderManager(t, testSitesYAML, []string{"Cookie: from=cli"}, env)
		headers, err := hm.GetHeaders(models.SiteNDRC)
		if err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}
		if headers.Get("Cookie") != "from=cli" {
			t.Errorf("Cookie = %q", headers.Get("Cookie"))
		}
	})
}

func TestHeaderManager_GetSafeHeaders(t *testing.T) {
	hm := newTestHeaderManager(t, testSitesYAML, nil, nil)
	if err := hm.LoadConfig(); err != nil {
		t.Fatalf("LoadConfig失败: %v", err)
	}

	safe := hm.GetSafeHeaders(models.SiteNDRC)
	if safe["Cookie"] != "from=***" {
		t.Errorf("Cookie应被脱敏, 得到 %q", safe["Cookie"])
	}
	if safe["Referer"] != "https://www.ndrc.gov.cn/" {
		t.Errorf("Referer不应被脱敏, 得到 %q", safe["Referer"])
	}
}

func TestHeaderManager_GetHeaders(t *testing.T) {
	t.Run("非法命令行参数返回错误", func(t *testing.T) {
		if _, err := NewHeaderManager(writeSitesFile(t, "headers:"), []string{"InvalidFormat"}); err == nil {
			t.Error("期望返回错误, 但成功了")
		}
	})

	t.Run("禁止头部返回验证错误", func(t *testing.T) {
		hm := newTestHeaderManager(t, "headers:", []string{"Host: example.com"}, nil)
		if _, err := hm.GetHeaders(models.SiteGZRSJ); err == nil {
			t.Error("期望返回验证错误, 但成功了")
		}
	})

	t.Run("非法环境变量Cookie返回验证错误", func(t *testing.T) {
		env := map[string]string{"POLICYCRAWL_GZRSJ_COOKIE": "no-equals-sign"}
		hm := newTestHeaderManager(t, "headers:", nil, env)
		if _, err := hm.GetHeaders(models.SiteGZRSJ); err == nil {
			t.Error("期望返回验证错误, 但成功了")
		}
	})
}

func TestCookieEnvVar(t *testing.T) {
	if got := CookieEnvVar(models.SiteMOHRSS); got != "POLICYCRAWL_MOHRSS_COOKIE" {
		t.Errorf("CookieEnvVar = %s", got)
	}
}
