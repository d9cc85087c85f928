package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/govpolicy/internal/models"
	"github.com/RecoveryAshes/govpolicy/internal/segmenter"
	"github.com/RecoveryAshes/govpolicy/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 如 POLICYCRAWL_CRAWL_MAX_PAGES
const EnvPrefix = "POLICYCRAWL"

// Config 应用程序配置
type Config struct {
	Crawl     models.CrawlConfig `mapstructure:"crawl"`
	Retry     RetryConfig        `mapstructure:"retry"`
	Segment   SegmentConfig      `mapstructure:"segment"`
	Download  DownloadConfig     `mapstructure:"download"`
	Logging   LoggingConfig      `mapstructure:"logging"`
	Output    OutputConfig       `mapstructure:"output"`
	SitesFile string             `mapstructure:"sites_file"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Name     string         `mapstructure:"name"`
	NoColor  bool           `mapstructure:"no_color"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// RetryConfig 请求重试配置
type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	Delay       float64 `mapstructure:"delay"` // 秒
}

// SegmentConfig 正文分段配置
type SegmentConfig struct {
	MaxChars int    `mapstructure:"max_chars"`
	Strategy string `mapstructure:"strategy"`
}

// DownloadConfig 附件下载配置
type DownloadConfig struct {
	Workers   int     `mapstructure:"workers"`
	OutputDir string  `mapstructure:"output_dir"`
	Delay     float64 `mapstructure:"delay"`   // 每个worker两次下载之间的间隔(秒)
	Timeout   int     `mapstructure:"timeout"` // 单个文件超时(秒)
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	WriteJSON bool   `mapstructure:"write_json"`
}

// LoadConfig 加载配置文件
// 未指定路径时依次搜索 ./configs, . 与 ~/.policycrawl
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".policycrawl"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}

	if err := config.Validate(); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: err}
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 爬取配置默认值
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.page_delay", 1.0)
	v.SetDefault("crawl.detail_delay", 0.5)
	v.SetDefault("crawl.timeout", 30)
	v.SetDefault("crawl.mode", string(models.ModeStatic))
	v.SetDefault("crawl.wait_time", 3)
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.insecure_tls", false)
	v.SetDefault("crawl.fetch_details", true)
	v.SetDefault("crawl.save_raw_pages", false)
	v.SetDefault("crawl.max_content_len", 15000)
	v.SetDefault("crawl.gzrsj_sid", "200025")

	// 重试配置默认值
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", 2.0)

	// 分段配置默认值
	v.SetDefault("segment.max_chars", segmenter.DefaultMaxChars)
	v.SetDefault("segment.strategy", string(segmenter.StrategyStrict))

	// 下载配置默认值
	v.SetDefault("download.workers", 4)
	v.SetDefault("download.output_dir", "downloads")
	v.SetDefault("download.delay", 0.5)
	v.SetDefault("download.timeout", 30)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.name", utils.DefaultLogName)
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出配置默认值
	v.SetDefault("output.base_dir", "results")
	v.SetDefault("output.write_json", true)

	v.SetDefault("sites_file", "configs/sites.yaml")
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		return fmt.Errorf("重试次数必须在1-10之间")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("重试间隔不能为负数")
	}
	if c.Segment.MaxChars < 1 {
		return fmt.Errorf("每段最大字符数必须大于0")
	}
	if _, err := segmenter.ParseStrategy(c.Segment.Strategy); err != nil {
		return err
	}
	if c.Download.Workers < 1 || c.Download.Workers > 32 {
		return fmt.Errorf("下载并发数必须在1-32之间")
	}
	return nil
}

// LogConfig 转换为日志器配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		Name:       c.Logging.Name,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
		NoColor:    c.Logging.NoColor,
	}
}

// RetryPolicy 由配置生成重试策略
func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		Delay:       time.Duration(c.Retry.Delay * float64(time.Second)),
	}
}

// Segmenter 由配置生成分段器
func (c *Config) Segmenter() *segmenter.Segmenter {
	strategy, err := segmenter.ParseStrategy(c.Segment.Strategy)
	if err != nil {
		strategy = segmenter.StrategyStrict
	}
	return segmenter.New(c.Segment.MaxChars, strategy)
}

// CLIOverrides 命令行参数, 负数或空值表示未设置
type CLIOverrides struct {
	MaxPages    int
	PageDelay   float64
	DetailDelay float64
	Timeout     int
	Mode        string
	Retries     int
	MaxChars    int
	Strategy    string
	Workers     int
	OutputDir   string
	Categories  []string
	InsecureTLS bool
	SaveRaw     bool
	SkipDetails bool
}

// NoOverrides 返回全部未设置的命令行参数
func NoOverrides() CLIOverrides {
	return CLIOverrides{
		MaxPages:    -1,
		PageDelay:   -1,
		DetailDelay: -1,
		Timeout:     -1,
		Retries:     -1,
		MaxChars:    -1,
		Workers:     -1,
	}
}

// MergeCLIFlags 合并命令行参数到配置, 命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(o CLIOverrides) error {
	if o.MaxPages >= 0 {
		c.Crawl.MaxPages = o.MaxPages
	}
	if o.PageDelay >= 0 {
		c.Crawl.PageDelay = o.PageDelay
	}
	if o.DetailDelay >= 0 {
		c.Crawl.DetailDelay = o.DetailDelay
	}
	if o.Timeout > 0 {
		c.Crawl.Timeout = o.Timeout
	}
	if o.Mode != "" {
		mode, err := models.ParseCrawlMode(o.Mode)
		if err != nil {
			return err
		}
		c.Crawl.Mode = mode
	}
	if o.Retries > 0 {
		c.Retry.MaxAttempts = o.Retries
	}
	if o.MaxChars > 0 {
		c.Segment.MaxChars = o.MaxChars
	}
	if o.Strategy != "" {
		c.Segment.Strategy = o.Strategy
	}
	if o.Workers > 0 {
		c.Download.Workers = o.Workers
	}
	if o.OutputDir != "" {
		c.Output.BaseDir = o.OutputDir
	}
	if len(o.Categories) > 0 {
		c.Crawl.Categories = o.Categories
	}
	if o.InsecureTLS {
		c.Crawl.InsecureTLS = true
	}
	if o.SaveRaw {
		c.Crawl.SaveRawPages = true
	}
	if o.SkipDetails {
		c.Crawl.FetchDetails = false
	}
	return c.Validate()
}
