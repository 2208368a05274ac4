package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/harvest"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// 浏览器模式
const (
	ModeDynamic = "dynamic"
	ModeStatic  = "static"
)

// EnvPrefix 环境变量前缀, 如 DEEPSTACK_HARVEST_NAVIGATION_TIMEOUT
const EnvPrefix = "DEEPSTACK"

// Config 应用程序配置
type Config struct {
	Browser    BrowserConfig     `mapstructure:"browser"`
	Harvest    HarvestConfig     `mapstructure:"harvest"`
	Batch      BatchConfig       `mapstructure:"batch"`
	Signatures SignaturesConfig  `mapstructure:"signatures"`
	Output     OutputConfig      `mapstructure:"output"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Resource   ResourceConfig    `mapstructure:"resource"`
	Server     ServerConfig      `mapstructure:"server"`
	Crosscheck CrosscheckConfig  `mapstructure:"crosscheck"`
	Headers    map[string]string `mapstructure:"headers"`

	// 实际加载的配置文件, 未找到时为空
	File string `mapstructure:"-"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Mode         string `mapstructure:"mode"`
	Headless     bool   `mapstructure:"headless"`
	Stealth      bool   `mapstructure:"stealth"`
	Bin          string `mapstructure:"bin"`
	NoSandbox    bool   `mapstructure:"no_sandbox"`
	Proxy        string `mapstructure:"proxy"`
	UserAgent    string `mapstructure:"user_agent"`
	WindowWidth  int    `mapstructure:"window_width"`
	WindowHeight int    `mapstructure:"window_height"`
	Locale       string `mapstructure:"locale"`
	Timezone     string `mapstructure:"timezone"`
}

// HarvestConfig 单页采集配置,每个等待点独立超时
type HarvestConfig struct {
	NavigationTimeout        time.Duration `mapstructure:"navigation_timeout"`
	SettleTime               time.Duration `mapstructure:"settle_time"`
	EvaluationTimeout        time.Duration `mapstructure:"evaluation_timeout"`
	ChallengeRecheckInterval time.Duration `mapstructure:"challenge_recheck_interval"`
	ChallengeMaxRechecks     int           `mapstructure:"challenge_max_rechecks"`
	IframeMaxDepth           int           `mapstructure:"iframe_max_depth"`
	MaxFrames                int           `mapstructure:"max_frames"`
}

// BatchConfig 批量分析配置
type BatchConfig struct {
	PacingMin time.Duration `mapstructure:"pacing_min"`
	PacingMax time.Duration `mapstructure:"pacing_max"`
}

// SignaturesConfig 签名表配置
type SignaturesConfig struct {
	File      string `mapstructure:"file"`       // 为空时使用内置签名表
	FontsFile string `mapstructure:"fonts_file"` // 为空时使用内置字体服务表
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Markdown bool   `mapstructure:"markdown"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// ResourceConfig 资源预检阈值
type ResourceConfig struct {
	MinFreeMemoryMB  int     `mapstructure:"min_free_memory_mb"`
	CPULoadThreshold float64 `mapstructure:"cpu_load_threshold"`
}

// ServerConfig 任务API配置
type ServerConfig struct {
	Addr          string          `mapstructure:"addr"`
	Mode          string          `mapstructure:"mode"` // gin模式: debug, release, test
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
	MaxURLsPerJob int             `mapstructure:"max_urls_per_job"`
	JobTTL        time.Duration   `mapstructure:"job_ttl"`
}

// RateLimitConfig 每个客户端IP的令牌桶
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// CrosscheckConfig wappalyzer交叉校验
type CrosscheckConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig 加载配置文件
// configPath为空时按 ./configs, ., $XDG_CONFIG_HOME/deepstack, ~/.deepstack 搜索config.yaml
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "deepstack"))
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".deepstack"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			path := configPath
			if path == "" {
				path = v.ConfigFileUsed()
			}
			return nil, &models.ConfigError{FilePath: path, Cause: err}
		}
		utils.Debugf("未找到配置文件,使用默认配置")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("配置绑定失败: %w", err)}
	}
	config.File = v.ConfigFileUsed()
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("browser.mode", ModeDynamic)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/New_York")

	v.SetDefault("harvest.navigation_timeout", "90s")
	v.SetDefault("harvest.settle_time", "2s")
	v.SetDefault("harvest.evaluation_timeout", "5s")
	v.SetDefault("harvest.challenge_recheck_interval", "5s")
	v.SetDefault("harvest.challenge_max_rechecks", 3)
	v.SetDefault("harvest.iframe_max_depth", 2)
	v.SetDefault("harvest.max_frames", 20)

	v.SetDefault("batch.pacing_min", "2s")
	v.SetDefault("batch.pacing_max", "5s")

	v.SetDefault("signatures.file", "")
	v.SetDefault("signatures.fonts_file", "")

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.markdown", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("resource.min_free_memory_mb", 512)
	v.SetDefault("resource.cpu_load_threshold", 90)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.rate_limit.rps", 1)
	v.SetDefault("server.rate_limit.burst", 5)
	v.SetDefault("server.max_urls_per_job", 100)
	v.SetDefault("server.job_ttl", "1h")

	v.SetDefault("crosscheck.enabled", true)
}

// Validate 检查配置组合是否合法
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Browser.Mode {
	case ModeDynamic, ModeStatic:
	default:
		add("browser.mode 必须为 %s 或 %s, 得到 %q", ModeDynamic, ModeStatic, c.Browser.Mode)
	}

	if c.Harvest.NavigationTimeout <= 0 {
		add("harvest.navigation_timeout 必须大于0")
	}
	if c.Harvest.EvaluationTimeout <= 0 {
		add("harvest.evaluation_timeout 必须大于0")
	}
	if c.Harvest.SettleTime < 0 {
		add("harvest.settle_time 不能为负数")
	}
	if c.Harvest.ChallengeRecheckInterval <= 0 {
		add("harvest.challenge_recheck_interval 必须大于0")
	}
	if c.Harvest.ChallengeMaxRechecks < 0 {
		add("harvest.challenge_max_rechecks 不能为负数")
	}
	if c.Harvest.IframeMaxDepth < 0 || c.Harvest.MaxFrames < 0 {
		add("harvest.iframe_max_depth 和 harvest.max_frames 不能为负数")
	}

	if c.Batch.PacingMin < 0 || c.Batch.PacingMax < 0 {
		add("batch.pacing_min/pacing_max 不能为负数")
	}
	if c.Batch.PacingMin > c.Batch.PacingMax {
		add("batch.pacing_min(%s) 不能大于 batch.pacing_max(%s)", c.Batch.PacingMin, c.Batch.PacingMax)
	}

	if c.Server.MaxURLsPerJob <= 0 {
		add("server.max_urls_per_job 必须大于0")
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		add("server.rate_limit 不能为负数")
	}

	if len(problems) > 0 {
		return &models.ConfigError{
			FilePath: c.File,
			Cause:    errors.New(strings.Join(problems, "; ")),
		}
	}
	return nil
}

// HarvestOptions 转换为采集参数
func (c *Config) HarvestOptions() harvest.Options {
	opts := harvest.DefaultOptions()
	opts.NavigationTimeout = c.Harvest.NavigationTimeout
	opts.SettleTime = c.Harvest.SettleTime
	opts.EvaluationTimeout = c.Harvest.EvaluationTimeout
	opts.ChallengeRecheckInterval = c.Harvest.ChallengeRecheckInterval
	opts.ChallengeMaxRechecks = c.Harvest.ChallengeMaxRechecks
	opts.IframeMaxDepth = c.Harvest.IframeMaxDepth
	opts.MaxFrames = c.Harvest.MaxFrames
	return opts
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// CLIFlags 命令行覆盖项, 零值表示未设置
type CLIFlags struct {
	Mode       string
	Headless   *bool
	PacingMin  time.Duration
	PacingMax  time.Duration
	Signatures string
	OutputDir  string
	Markdown   *bool
	LogLevel   string
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先于配置文件
func (c *Config) MergeCLIFlags(f CLIFlags) {
	if f.Mode != "" {
		c.Browser.Mode = f.Mode
	}
	if f.Headless != nil {
		c.Browser.Headless = *f.Headless
	}
	if f.PacingMin > 0 {
		c.Batch.PacingMin = f.PacingMin
	}
	if f.PacingMax > 0 {
		c.Batch.PacingMax = f.PacingMax
	}
	if f.Signatures != "" {
		c.Signatures.File = f.Signatures
	}
	if f.OutputDir != "" {
		c.Output.Dir = f.OutputDir
	}
	if f.Markdown != nil {
		c.Output.Markdown = *f.Markdown
	}
	if f.LogLevel != "" {
		c.Logging.Level = f.LogLevel
	}
}
