package core

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
)

// Pipeline 单个URL的分析流水线
type Pipeline interface {
	Analyze(ctx context.Context, url string) *models.AnalysisRecord
}

// PipelineFunc 函数形式的Pipeline
type PipelineFunc func(ctx context.Context, url string) *models.AnalysisRecord

// Analyze 实现Pipeline
func (f PipelineFunc) Analyze(ctx context.Context, url string) *models.AnalysisRecord {
	return f(ctx, url)
}

// Observer 每个URL完成后回调, index从0开始
type Observer func(index, total int, rec *models.AnalysisRecord)

// Pacer 两次访问之间的随机等待
type Pacer struct {
	Min, Max time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer 创建随机间隔, 间隔在[min, max]中均匀分布
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		min, max = max, min
	}
	return &Pacer{
		Min:   min,
		Max:   max,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepContext,
	}
}

// Delay 抽取一个间隔
func (p *Pacer) Delay() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Min + time.Duration(p.rng.Int63n(int64(p.Max-p.Min)+1))
}

// Wait 等待一个随机间隔, ctx取消时提前返回
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	utils.Debugf("等待 %.1f 秒后处理下一个URL...", d.Seconds())
	return p.sleep(ctx, d)
}

// BatchOption BatchOrchestrator选项
type BatchOption func(*BatchOrchestrator)

// WithObserver 设置进度回调
func WithObserver(o Observer) BatchOption {
	return func(bo *BatchOrchestrator) { bo.observer = o }
}

// BatchOrchestrator 顺序执行批量分析
// 一次只处理一个URL,结果顺序与输入一致,单个URL的失败不影响其他URL
type BatchOrchestrator struct {
	pipeline Pipeline
	pacer    *Pacer
	observer Observer
}

// NewBatchOrchestrator 创建批量编排器, pacer为nil时不等待
func NewBatchOrchestrator(pipeline Pipeline, pacer *Pacer, opts ...BatchOption) *BatchOrchestrator {
	bo := &BatchOrchestrator{pipeline: pipeline, pacer: pacer}
	for _, o := range opts {
		o(bo)
	}
	return bo
}

// Run 批量分析URL列表, 返回的记录数总是等于len(urls)
func (bo *BatchOrchestrator) Run(ctx context.Context, urls []string) []*models.AnalysisRecord {
	total := len(urls)
	records := make([]*models.AnalysisRecord, 0, total)
	utils.Infof("🚀 开始批量分析: %d个URL", total)

	for i, u := range urls {
		if ctx.Err() != nil {
			records = append(records, bo.cancelRemaining(urls[i:], i, total)...)
			break
		}

		utils.Infof("[%d/%d] 分析: %s", i+1, total, u)
		rec := bo.analyzeOne(ctx, u)
		records = append(records, rec)
		bo.report(i, total, rec)
		logOutcome(rec)

		// 最后一个URL之后不等待
		if i < total-1 && bo.pacer != nil {
			if err := bo.pacer.Wait(ctx); err != nil {
				records = append(records, bo.cancelRemaining(urls[i+1:], i+1, total)...)
				break
			}
		}
	}
	return records
}

// analyzeOne 单个URL的隔离边界, panic转为InternalError
func (bo *BatchOrchestrator) analyzeOne(ctx context.Context, u string) (rec *models.AnalysisRecord) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("分析 %s 时发生panic: %v\n%s", u, r, debug.Stack())
			rec = models.NewFailedRecord(u, models.ErrInternal, fmt.Sprintf("内部错误: %v", r))
		}
	}()

	rec = bo.pipeline.Analyze(ctx, u)
	if rec == nil {
		rec = models.NewFailedRecord(u, models.ErrInternal, "流水线未返回结果")
	}
	return rec
}

func (bo *BatchOrchestrator) cancelRemaining(rest []string, offset, total int) []*models.AnalysisRecord {
	utils.Warnf("批量分析已取消, 剩余%d个URL未处理", len(rest))
	out := make([]*models.AnalysisRecord, 0, len(rest))
	for j, u := range rest {
		rec := models.NewFailedRecord(u, models.ErrInternal, "batch cancelled")
		out = append(out, rec)
		bo.report(offset+j, total, rec)
	}
	return out
}

func (bo *BatchOrchestrator) report(index, total int, rec *models.AnalysisRecord) {
	if bo.observer != nil {
		bo.observer(index, total, rec)
	}
}

func logOutcome(rec *models.AnalysisRecord) {
	switch rec.Status {
	case models.StatusSuccess:
		utils.Infof("✅ %s: %d条检测结果 (%.1fs)", rec.URL, len(rec.Detections), rec.Duration.Seconds())
	case models.StatusPartialSuccess:
		utils.Warnf("⚠️  %s: %d条检测结果, 部分证据降级 (%.1fs)", rec.URL, len(rec.Detections), rec.Duration.Seconds())
	default:
		utils.Errorf("❌ %s: [%s] %s", rec.URL, rec.ErrorKind, rec.ErrorMessage)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
