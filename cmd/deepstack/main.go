package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/core"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 未指定-u/-f时尝试读取的默认URL列表
const defaultURLFile = "urls_to_analyze.txt"

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 浏览器和签名表
	mode           string
	headless       bool
	signaturesFile string

	// 分析参数
	targetURL string
	urlFile   string
	outputDir string
	pacingMin time.Duration
	pacingMax time.Duration
	markdown  bool
)

// 由PersistentPreRunE加载, 已合并命令行参数
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "deepstack",
	Short: "网页MarTech技术栈与转化信号采集工具",
	Long: `DeepStack - 网页营销技术栈与转化信号采集工具

逐个访问目标页面, 采集脚本、网络请求、dataLayer、iframe表单和全局对象,
按签名表识别以下五类信号:
  • marketing_technology  营销/分析技术
  • cookie_consent        Cookie同意管理平台
  • competitive_posture   功能开关/A-B测试
  • conversion_events     转化事件
  • cdn_domains           CDN域名

使用示例:
  # 分析单个URL, 结果写入 output/deepstack-example.com.json
  deepstack -u https://example.com

  # 批量分析, 间隔3-8秒, 同时生成Markdown摘要
  deepstack -f urls.txt --pacing-min 3s --pacing-max 8s --markdown

  # 不启动浏览器的静态模式
  deepstack -u https://example.com -m static

  # 自定义请求头
  deepstack -u https://example.com -H "Cookie: consent=1"

  # 启动任务API
  deepstack serve --addr :8080

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		config.MergeCLIFlags(cliFlags(cmd))

		logConfig := config.LogConfig()
		if verbose && logLevel == "" {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}
		if config.File != "" {
			utils.Debugf("使用配置文件: %s", config.File)
		}

		appConfig = config
		return nil
	},
	RunE: runAnalyze,
}

// cliFlags 收集显式设置的命令行参数
func cliFlags(cmd *cobra.Command) core.CLIFlags {
	f := core.CLIFlags{
		Mode:       mode,
		Signatures: signaturesFile,
		LogLevel:   logLevel,
		OutputDir:  outputDir,
		PacingMin:  pacingMin,
		PacingMax:  pacingMax,
	}
	if cmd.Flags().Changed("headless") {
		f.Headless = &headless
	}
	if cmd.Flags().Changed("markdown") {
		f.Markdown = &markdown
	}
	return f
}

func newHeaderManager() (*core.HeaderManager, error) {
	hm, err := core.NewHeaderManager(appConfig.Browser.UserAgent, appConfig.Headers, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	return hm, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if validateConfig {
		return runValidateConfig()
	}

	urls, err := resolveTargets(targetURL, urlFile)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return cmd.Help()
	}

	if err := ValidateFlags(appConfig); err != nil {
		return err
	}

	headerManager, err := newHeaderManager()
	if err != nil {
		return err
	}

	engine, err := core.NewEngine(appConfig, headerManager)
	if err != nil {
		return fmt.Errorf("初始化分析引擎失败: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			utils.Warnf("关闭浏览器失败: %v", err)
		}
	}()

	ctx := cmd.Context()
	started := time.Now()
	utils.Infof("🚀 开始分析 %d 个URL (模式: %s)", len(urls), appConfig.Browser.Mode)

	bar := utils.NewProgressBar(len(urls), "分析中")
	records := engine.Orchestrator(core.WithObserver(func(index, total int, rec *models.AnalysisRecord) {
		_ = bar.Add(1)
	})).Run(ctx, urls)
	_ = bar.Finish()

	outPath := utils.OutputFilename(appConfig.Output.Dir, urls)
	env := models.NewBatchEnvelope(Version, started, records)
	if err := utils.WriteBatchJSON(outPath, env); err != nil {
		return err
	}
	utils.Infof("✅ 结果已保存: %s", outPath)

	if appConfig.Output.Markdown {
		mdPath := strings.TrimSuffix(outPath, ".json") + ".md"
		if err := utils.WriteMarkdownFile(mdPath, records); err != nil {
			return err
		}
		utils.Infof("✅ 摘要已保存: %s", mdPath)
	}

	fmt.Println()
	utils.PrintSummary(os.Stdout, records)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("分析被中断, 已保存部分结果: %w", err)
	}
	utils.Infof("✨ 分析完成! 耗时 %s", time.Since(started).Round(time.Second))
	return nil
}

// resolveTargets 确定待分析的URL列表
// -u优先于-f; 都未指定时读取当前目录的urls_to_analyze.txt, 也不存在则返回nil
func resolveTargets(target, file string) ([]string, error) {
	if target != "" {
		u := models.NormalizeURL(target)
		if err := models.ValidateURL(u); err != nil {
			return nil, fmt.Errorf("无效的目标URL: %w", err)
		}
		return []string{u}, nil
	}

	if file == "" {
		if !utils.FileExists(defaultURLFile) {
			return nil, nil
		}
		utils.Infof("使用默认URL列表: %s", defaultURLFile)
		file = defaultURLFile
	}

	urls, err := utils.ReadURLsFromFile(file)
	if err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}
	return urls, nil
}

func runValidateConfig() error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	catalog, err := signatures.Load(appConfig.Signatures.File)
	if err != nil {
		return fmt.Errorf("签名表验证失败: %w", err)
	}
	fonts, err := signatures.LoadFontServices(appConfig.Signatures.FontsFile)
	if err != nil {
		return fmt.Errorf("字体服务表验证失败: %w", err)
	}

	headerManager, err := newHeaderManager()
	if err != nil {
		return err
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	safeHeaders := headerManager.SafeHeaders()
	utils.Info("✅ 配置验证通过!")
	if appConfig.File != "" {
		utils.Infof("配置文件: %s", appConfig.File)
	}
	utils.Infof("签名表: %d个工具, 字体服务表: %d个服务", catalog.Len(), fonts.Len())
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for _, h := range safeHeaders {
		utils.Infof("  %s", h)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("DeepStack %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件和签名表")

	// 浏览器和签名表
	rootCmd.PersistentFlags().StringVarP(&mode, "mode", "m", "", "浏览器模式 (dynamic|static)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().StringVar(&signaturesFile, "signatures", "", "签名表YAML文件, 为空时使用内置签名表")

	// 分析参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "目标URL")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "URL列表文件 (默认 "+defaultURLFile+")")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录 (默认 output)")
	rootCmd.Flags().DurationVar(&pacingMin, "pacing-min", 0, "URL之间的最小间隔, 如 2s")
	rootCmd.Flags().DurationVar(&pacingMax, "pacing-max", 0, "URL之间的最大间隔, 如 5s")
	rootCmd.Flags().BoolVar(&markdown, "markdown", false, "同时生成Markdown摘要")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(signaturesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
