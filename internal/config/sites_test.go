package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/govpolicy/internal/models"
)

func TestSitesConfigLoader_LoadConfig(t *testing.T) {
	t.Run("首次运行自动生成配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "configs", "sites.yaml")
		loader := NewSitesConfigLoader(configPath)

		cfg, err := loader.LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}

		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Fatal("配置文件应该被自动生成")
		}

		for _, site := range models.AllSites() {
			if _, ok := cfg.Sites[string(site)]; !ok {
				t.Errorf("模板中应包含站点 %s", site)
			}
		}
		if cfg.Site(models.SiteNDRC).Headers["referer"] != "https://www.ndrc.gov.cn/" {
			t.Errorf("模板中的Referer错误: %v", cfg.Site(models.SiteNDRC).Headers)
		}
	})

	t.Run("加载已存在的配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "sites.yaml")
		content := `headers:
  User-Agent: "Test Bot/1.0"
sites:
  mohrss:
    headers:
      X-Custom: "test value"
    cookie: "JSESSIONID=abc"
  unknown:
    cookie: "x=1"
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("写入测试配置失败: %v", err)
		}

		cfg, err := NewSitesConfigLoader(configPath).LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}

		// viper会将键名转换为小写
		if cfg.Headers["user-agent"] != "Test Bot/1.0" {
			t.Errorf("期望 user-agent='Test Bot/1.0', 实际='%s'", cfg.Headers["user-agent"])
		}
		mohrss := cfg.Site(models.SiteMOHRSS)
		if mohrss.Headers["x-custom"] != "test value" || mohrss.Cookie != "JSESSIONID=abc" {
			t.Errorf("mohrss配置错误: %+v", mohrss)
		}
		if _, ok := cfg.Sites["unknown"]; ok {
			t.Error("未知站点应被忽略")
		}
	})

	t.Run("YAML格式错误返回错误", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "sites.yaml")
		bad := "headers:\n  User-Agent: \"Test Bot\n  X-Custom: missing quote\n"
		if err := os.WriteFile(configPath, []byte(bad), 0644); err != nil {
			t.Fatalf("写入错误配置失败: %v", err)
		}

		_, err := NewSitesConfigLoader(configPath).LoadConfig()
		if err == nil {
			t.Fatal("期望返回错误,但成功了")
		}
		if !strings.Contains(err.Error(), "配置文件错误") {
			t.Errorf("期望ConfigError, 得到: %v", err)
		}
	})

	t.Run("空配置文件处理", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "sites.yaml")
		if err := os.WriteFile(configPath, []byte("headers:"), 0644); err != nil {
			t.Fatalf("写入空配置失败: %v", err)
		}

		cfg, err := NewSitesConfigLoader(configPath).LoadConfig()
		if err != nil {
			t.Fatalf("加载空配置失败: %v", err)
		}
		if cfg.Headers == nil || cfg.Sites == nil {
			t.Fatal("map应该被初始化为空map")
		}
	})

	t.Run("配置文件大小验证", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "sites.yaml")
		large := make([]byte, MaxConfigFileSize+1)
		if err := os.WriteFile(configPath, large, 0644); err != nil {
			t.Fatalf("写入大配置失败: %v", err)
		}

		if _, err := NewSitesConfigLoader(configPath).LoadConfig(); err == nil {
			t.Fatal("期望超大配置文件被拒绝,但成功了")
		}
	})
}

func TestNewSitesConfigLoader_DefaultPath(t *testing.T) {
	if got := NewSitesConfigLoader("").Path(); got != DefaultSitesFile {
		t.Errorf("默认路径 = %s, want %s", got, DefaultSitesFile)
	}
}
