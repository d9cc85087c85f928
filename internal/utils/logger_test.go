package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogConfig(dir, level string) LogConfig {
	return LogConfig{
		Level:      level,
		LogDir:     dir,
		Name:       "test_crawler",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   false,
		NoColor:    true,
	}
}

func TestInitLogger(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "logs")

	if err := InitLogger(testLogConfig(tempDir, "debug")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Errorf("日志目录未创建: %s", tempDir)
	}

	Info("测试信息日志")
	Warn("测试警告日志")
	Debug("测试调试日志")

	time.Sleep(100 * time.Millisecond)

	mainLogPath := filepath.Join(tempDir, "test_crawler.log")
	if _, err := os.Stat(mainLogPath); os.IsNotExist(err) {
		t.Errorf("主日志文件未创建: %s", mainLogPath)
	}
}

func TestErrorLogOnlyReceivesErrors(t *testing.T) {
	tempDir := t.TempDir()
	config := testLogConfig(tempDir, "info")

	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Warn("这条警告不应出现在错误日志中")
	Errorf("抓取详情页失败: %s", "https://www.ndrc.gov.cn/xxgk/zcfb/tz/")

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(config.ErrorLogFilePath())
	if err != nil {
		t.Fatalf("读取错误日志失败: %v", err)
	}
	if strings.Contains(string(content), "这条警告") {
		t.Error("错误日志中不应包含warn级别日志")
	}
	if !strings.Contains(string(content), "抓取详情页失败") {
		t.Error("错误日志中应包含error级别日志")
	}
}

func TestLogLevels(t *testing.T) {
	tempDir := t.TempDir()
	config := testLogConfig(tempDir, "info")

	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Infof("格式化信息日志: %s", "测试")
	Warnf("格式化警告日志: %d", 123)
	Debugf("调试日志 - 级别为info时不应写入: %v", true)

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(config.LogFilePath())
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if len(content) == 0 {
		t.Error("日志文件为空")
	}
	if strings.Contains(string(content), "级别为info时不应写入") {
		t.Error("debug日志不应在info级别下写入")
	}
}

func TestWith(t *testing.T) {
	config := testLogConfig(t.TempDir(), "debug")
	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	log := With("fetcher")
	log.Debug().Str("site", "ndrc").Msg("组件日志")

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(config.LogFilePath())
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	for _, want := range []string{`"component":"fetcher"`, `"site":"ndrc"`, "组件日志"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("日志缺少 %s:\n%s", want, content)
		}
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != "info" {
		t.Errorf("默认日志级别错误: 期望 'info', 得到 '%s'", config.Level)
	}
	if config.LogDir != "logs" {
		t.Errorf("默认日志目录错误: 期望 'logs', 得到 '%s'", config.LogDir)
	}
	if config.LogFilePath() != filepath.Join("logs", "policy_crawler.log") {
		t.Errorf("默认日志文件路径错误: %s", config.LogFilePath())
	}
	if config.MaxBackups != 3 || config.MaxAge != 28 || config.MaxSize != 10 {
		t.Errorf("默认轮转参数错误: %+v", config)
	}
	if !config.Compress {
		t.Error("默认应该启用压缩")
	}
}

func TestLogConfig_EmptyNameFallsBack(t *testing.T) {
	config := LogConfig{LogDir: "logs"}
	if got := config.ErrorLogFilePath(); got != filepath.Join("logs", "policy_crawler_error.log") {
		t.Errorf("空名称应回退为默认名称, 得到 %s", got)
	}
}
