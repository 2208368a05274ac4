package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/models"
)

// scriptedPipeline 按URL返回预设结果,记录调用顺序
type scriptedPipeline struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]models.ErrorKind
	panic map[string]bool
}

func (p *scriptedPipeline) Analyze(ctx context.Context, url string) *models.AnalysisRecord {
	p.mu.Lock()
	p.calls = append(p.calls, url)
	p.mu.Unlock()

	if p.panic[url] {
		panic("boom: " + url)
	}
	if kind, ok := p.fail[url]; ok {
		return models.NewFailedRecord(url, kind, "scripted failure")
	}
	return &models.AnalysisRecord{URL: url, Status: models.StatusSuccess, Detections: []models.Detection{}}
}

// recordingPacer 记录等待次数,不真正睡眠
func recordingPacer(waits *int, events *[]string) *Pacer {
	p := NewPacer(2*time.Second, 5*time.Second)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		if d < 2*time.Second || d > 5*time.Second {
			return fmt.Errorf("间隔 %s 超出范围", d)
		}
		*waits++
		if events != nil {
			*events = append(*events, "wait")
		}
		return ctx.Err()
	}
	return p
}

func TestBatch_OrderAndIsolation(t *testing.T) {
	urls := []string{"https://a.test/", "https://b.test/", "https://c.test/", "https://d.test/"}
	p := &scriptedPipeline{
		fail:  map[string]models.ErrorKind{"https://b.test/": models.ErrNavigationTimeout},
		panic: map[string]bool{"https://c.test/": true},
	}
	var waits int
	records := NewBatchOrchestrator(p, recordingPacer(&waits, nil)).Run(context.Background(), urls)

	if len(records) != len(urls) {
		t.Fatalf("记录数 期望 %d, 得到 %d", len(urls), len(records))
	}
	tests := []struct {
		name   string
		status models.Status
		kind   models.ErrorKind
	}{
		{"正常", models.StatusSuccess, ""},
		{"导航超时", models.StatusFailed, models.ErrNavigationTimeout},
		{"panic", models.StatusFailed, models.ErrInternal},
		{"panic之后继续", models.StatusSuccess, ""},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := records[i]
			if rec.URL != urls[i] {
				t.Errorf("第%d条URL 期望 %s, 得到 %s", i, urls[i], rec.URL)
			}
			if rec.Status != tt.status || rec.ErrorKind != tt.kind {
				t.Errorf("期望 %s/%s, 得到 %s/%s", tt.status, tt.kind, rec.Status, rec.ErrorKind)
			}
			if rec.Status == models.StatusFailed && len(rec.Detections) != 0 {
				t.Error("失败记录不应包含检测结果")
			}
		})
	}
	if waits != len(urls)-1 {
		t.Errorf("等待次数 期望 %d, 得到 %d", len(urls)-1, waits)
	}
}

func TestBatch_PacingBetweenVisitsOnly(t *testing.T) {
	var events []string
	var waits int
	p := PipelineFunc(func(ctx context.Context, url string) *models.AnalysisRecord {
		events = append(events, "visit")
		return &models.AnalysisRecord{URL: url, Status: models.StatusSuccess}
	})

	tests := []struct {
		name string
		urls []string
		want []string
	}{
		{"单个URL不等待", []string{"https://a.test/"}, []string{"visit"}},
		{"三个URL", []string{"https://a.test/", "https://b.test/", "https://c.test/"},
			[]string{"visit", "wait", "visit", "wait", "visit"}},
		{"空列表", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, waits = nil, 0
			NewBatchOrchestrator(p, recordingPacer(&waits, &events)).Run(context.Background(), tt.urls)
			if fmt.Sprint(events) != fmt.Sprint(tt.want) {
				t.Errorf("期望 %v, 得到 %v", tt.want, events)
			}
		})
	}
}

func TestBatch_Cancelled(t *testing.T) {
	urls := []string{"https://a.test/", "https://b.test/", "https://c.test/"}
	ctx, cancel := context.WithCancel(context.Background())

	p := PipelineFunc(func(_ context.Context, url string) *models.AnalysisRecord {
		cancel()
		return &models.AnalysisRecord{URL: url, Status: models.StatusSuccess}
	})
	pacer := NewPacer(time.Second, time.Second)
	var observed []int
	records := NewBatchOrchestrator(p, pacer, WithObserver(func(i, total int, rec *models.AnalysisRecord) {
		observed = append(observed, i)
		if total != len(urls) {
			t.Errorf("total 期望 %d, 得到 %d", len(urls), total)
		}
	})).Run(ctx, urls)

	if len(records) != len(urls) {
		t.Fatalf("取消后记录数仍应为 %d, 得到 %d", len(urls), len(records))
	}
	if records[0].Status != models.StatusSuccess {
		t.Errorf("第一个URL应正常完成, 得到 %s", records[0].Status)
	}
	for _, rec := range records[1:] {
		if rec.Status != models.StatusFailed || rec.ErrorKind != models.ErrInternal || rec.ErrorMessage != "batch cancelled" {
			t.Errorf("剩余URL应标记为取消: %+v", rec)
		}
	}
	if fmt.Sprint(observed) != "[0 1 2]" {
		t.Errorf("回调顺序 期望 [0 1 2], 得到 %v", observed)
	}
}

func TestBatch_NilRecord(t *testing.T) {
	p := PipelineFunc(func(context.Context, string) *models.AnalysisRecord { return nil })
	records := NewBatchOrchestrator(p, nil).Run(context.Background(), []string{"https://a.test/"})
	if records[0].Status != models.StatusFailed || records[0].ErrorKind != models.ErrInternal {
		t.Errorf("nil记录应转为InternalError, 得到 %+v", records[0])
	}
}

func TestPacer_Delay(t *testing.T) {
	tests := []struct {
		name     string
		min, max time.Duration
	}{
		{"区间", 2 * time.Second, 5 * time.Second},
		{"固定值", time.Second, time.Second},
		{"颠倒的区间", 5 * time.Second, 2 * time.Second},
		{"零", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacer(tt.min, tt.max)
			lo, hi := tt.min, tt.max
			if hi < lo {
				lo, hi = hi, lo
			}
			for i := 0; i < 200; i++ {
				if d := p.Delay(); d < lo || d > hi {
					t.Fatalf("间隔 %s 超出 [%s, %s]", d, lo, hi)
				}
			}
		})
	}
}

func TestPacer_WaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewPacer(time.Hour, time.Hour).Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("期望 context.Canceled, 得到 %v", err)
	}
}
