package core

import (
	"context"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/evidence"
	"github.com/RecoveryAshes/DeepStack/internal/harvest"
	"github.com/RecoveryAshes/DeepStack/internal/matcher"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
)

// Analyzer 单个URL的完整流水线: 采集 → 构建证据包 → 匹配 → 组装
// 实现 Pipeline 接口
type Analyzer struct {
	harvester *harvest.Harvester
	catalog   *signatures.Catalog
	cross     *matcher.CrossChecker // 为nil时不做交叉校验
	fonts     *signatures.FontTable // 为nil时不识别字体服务
}

// AnalyzerOption Analyzer选项
type AnalyzerOption func(*Analyzer)

// WithFontServices 按字体服务表识别网络请求中的字体
func WithFontServices(fonts *signatures.FontTable) AnalyzerOption {
	return func(a *Analyzer) { a.fonts = fonts }
}

// NewAnalyzer 创建分析流水线
func NewAnalyzer(h *harvest.Harvester, catalog *signatures.Catalog, cross *matcher.CrossChecker, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{harvester: h, catalog: catalog, cross: cross}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Catalog 当前使用的签名表
func (a *Analyzer) Catalog() *signatures.Catalog {
	return a.catalog
}

// Analyze 分析单个URL, 总是返回记录
func (a *Analyzer) Analyze(ctx context.Context, url string) *models.AnalysisRecord {
	started := time.Now()
	in := AssembleInput{URL: url, StartedAt: started, Catalog: a.catalog}

	if err := models.ValidateURL(url); err != nil {
		in.HarvestErr = models.NewAnalysisError(models.ErrNavigationFailed, "URL校验失败", err)
		return Assemble(in)
	}

	art, err := a.harvester.Harvest(ctx, url)
	in.Artifacts, in.HarvestErr = art, err
	if err != nil {
		return Assemble(in)
	}

	bundle, err := evidence.Build(art)
	in.Bundle, in.BuildErr = bundle, err
	if err != nil {
		return Assemble(in)
	}

	in.Detections = matcher.Match(bundle, a.catalog)
	if a.cross != nil {
		in.Crosscheck = a.cross.Check(bundle)
	}
	in.Typography = matcher.Typography(bundle.ObservedRequestURLs, a.fonts)
	utils.Debugf("匹配完成 [%s]: %d条检测结果, %d个脚本, %d个请求",
		url, len(in.Detections), len(bundle.ScriptSources), len(bundle.ObservedRequestURLs))

	return Assemble(in)
}
