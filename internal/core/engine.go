package core

import (
	"fmt"
	"net/http"

	"github.com/RecoveryAshes/DeepStack/internal/harvest"
	"github.com/RecoveryAshes/DeepStack/internal/matcher"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
)

// Engine 由配置装配出的运行时: 签名表、浏览器能力和分析流水线
type Engine struct {
	Config   *Config
	Catalog  *signatures.Catalog
	Headers  models.HeaderProvider
	Analyzer *Analyzer

	browser harvest.Browser
	hooks   []harvest.Option
}

// EngineOption Engine选项
type EngineOption func(*Engine)

// WithBrowser 使用外部提供的浏览器能力,不再按配置启动
func WithBrowser(b harvest.Browser) EngineOption {
	return func(e *Engine) { e.browser = b }
}

// WithHarvestOptions 追加采集器选项
func WithHarvestOptions(opts ...harvest.Option) EngineOption {
	return func(e *Engine) { e.hooks = append(e.hooks, opts...) }
}

// NewEngine 加载签名表并启动浏览器
// headers 通常是 *HeaderManager
func NewEngine(cfg *Config, headers models.HeaderProvider, opts ...EngineOption) (*Engine, error) {
	e := &Engine{Config: cfg, Headers: headers}
	for _, o := range opts {
		o(e)
	}

	catalog, err := signatures.Load(cfg.Signatures.File)
	if err != nil {
		return nil, err
	}
	e.Catalog = catalog
	utils.Infof("已加载签名表: %d个工具", catalog.Len())

	hdrs, err := headers.GetHeaders()
	if err != nil {
		return nil, err
	}

	if e.browser == nil {
		b, err := launchBrowser(cfg, hdrs.Get("User-Agent"), hdrs)
		if err != nil {
			return nil, err
		}
		e.browser = b
	}

	var cross *matcher.CrossChecker
	if cfg.Crosscheck.Enabled {
		if cross, err = matcher.NewCrossChecker(); err != nil {
			utils.Warnf("交叉校验已禁用: %v", err)
			cross = nil
		}
	}

	fonts, err := signatures.LoadFontServices(cfg.Signatures.FontsFile)
	if err != nil {
		return nil, err
	}

	h := harvest.NewHarvester(e.browser, cfg.HarvestOptions(), e.hooks...)
	e.Analyzer = NewAnalyzer(h, catalog, cross, WithFontServices(fonts))
	return e, nil
}

func launchBrowser(cfg *Config, userAgent string, headers http.Header) (harvest.Browser, error) {
	switch cfg.Browser.Mode {
	case ModeStatic:
		utils.Infof("使用静态模式 (Colly), 页面脚本不会执行")
		return harvest.NewStaticBrowser(harvest.StaticOptions{
			UserAgent: userAgent,
			Headers:   headers,
			Timeout:   cfg.Harvest.NavigationTimeout,
		}), nil

	case ModeDynamic:
		harvest.NewResourceMonitor(harvest.ResourceConfig{
			MinFreeMemoryMB:  cfg.Resource.MinFreeMemoryMB,
			CPULoadThreshold: cfg.Resource.CPULoadThreshold,
		}).Check()

		b, err := harvest.LaunchRod(harvest.RodOptions{
			Bin:          cfg.Browser.Bin,
			Headless:     cfg.Browser.Headless,
			Stealth:      cfg.Browser.Stealth,
			NoSandbox:    cfg.Browser.NoSandbox,
			Proxy:        cfg.Browser.Proxy,
			UserAgent:    userAgent,
			WindowWidth:  cfg.Browser.WindowWidth,
			WindowHeight: cfg.Browser.WindowHeight,
			Locale:       cfg.Browser.Locale,
			Timezone:     cfg.Browser.Timezone,
			Headers:      headers,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("无效的浏览器模式: %s", cfg.Browser.Mode)
}

// Orchestrator 创建批量编排器
func (e *Engine) Orchestrator(opts ...BatchOption) *BatchOrchestrator {
	return NewBatchOrchestrator(e.Analyzer, NewPacer(e.Config.Batch.PacingMin, e.Config.Batch.PacingMax), opts...)
}

// Close 关闭浏览器
func (e *Engine) Close() error {
	if e.browser == nil {
		return nil
	}
	return e.browser.Close()
}
