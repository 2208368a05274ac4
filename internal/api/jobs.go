package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/core"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
)

// ErrQueueFull 等待队列已满
var ErrQueueFull = errors.New("任务队列已满")

// ErrQueueClosed 服务正在关闭
var ErrQueueClosed = errors.New("任务队列已关闭")

// BatchFunc 执行一批URL的分析,observer在每个URL完成后调用
type BatchFunc func(ctx context.Context, urls []string, observer core.Observer) []*models.AnalysisRecord

// QueueOptions 任务队列参数
type QueueOptions struct {
	Version  string
	TTL      time.Duration // 已结束任务的保留时间
	Capacity int           // 等待中任务的上限
}

// JobQueue 单worker任务队列
// 同一时间只执行一个批次,和命令行模式一样逐个访问URL
type JobQueue struct {
	run  BatchFunc
	opts QueueOptions

	mu      sync.RWMutex
	jobs    map[string]*models.Job
	closed  bool
	pending chan *models.Job

	now func() time.Time
}

// NewJobQueue 创建任务队列
func NewJobQueue(run BatchFunc, opts QueueOptions) *JobQueue {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 64
	}
	return &JobQueue{
		run:     run,
		opts:    opts,
		jobs:    make(map[string]*models.Job),
		pending: make(chan *models.Job, opts.Capacity),
		now:     time.Now,
	}
}

// Submit 提交任务
func (q *JobQueue) Submit(urls []string) (*models.Job, error) {
	job := models.NewJob(urls)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	select {
	case q.pending <- job:
	default:
		return nil, ErrQueueFull
	}
	q.jobs[job.ID] = job

	utils.Infof("任务已提交: %s (%d个URL)", job.ID, len(urls))
	return job, nil
}

// Get 查找任务
func (q *JobQueue) Get(id string) (*models.Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	return job, ok
}

// Len 当前保存的任务数
func (q *JobQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.jobs)
}

// Pending 等待执行的任务数
func (q *JobQueue) Pending() int {
	return len(q.pending)
}

// Run worker主循环, ctx取消后返回nil
// 正在执行的批次把剩余URL记为取消, 排队中的任务标记为失败
func (q *JobQueue) Run(ctx context.Context) error {
	sweep := time.NewTicker(evictInterval(q.opts.TTL))
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			q.shutdown()
			return nil
		case <-sweep.C:
			if n := q.evict(); n > 0 {
				utils.Debugf("清理过期任务: %d个", n)
			}
		case job := <-q.pending:
			q.execute(ctx, job)
		}
	}
}

func (q *JobQueue) execute(ctx context.Context, job *models.Job) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("任务执行异常 [%s]: %v", job.ID, r)
			job.Fail(fmt.Errorf("任务执行异常: %v", r))
		}
	}()

	job.Start()
	started := q.now()
	utils.Infof("开始执行任务: %s", job.ID)

	records := q.run(ctx, job.URLs, func(index, total int, _ *models.AnalysisRecord) {
		job.Advance(index + 1)
	})

	job.Complete(models.NewBatchEnvelope(q.opts.Version, started, records))
	utils.Infof("任务完成: %s (耗时 %s)", job.ID, q.now().Sub(started).Round(time.Millisecond))
}

func (q *JobQueue) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	for {
		select {
		case job := <-q.pending:
			job.Fail(ErrQueueClosed)
		default:
			return
		}
	}
}

// evict 删除结束超过TTL的任务,排队和执行中的任务保留
func (q *JobQueue) evict() int {
	cutoff := q.now().Add(-q.opts.TTL)

	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, job := range q.jobs {
		snap := job.Snapshot()
		if snap.Status != models.JobCompleted && snap.Status != models.JobError {
			continue
		}
		if snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			n++
		}
	}
	return n
}

func evictInterval(ttl time.Duration) time.Duration {
	d := ttl / 12
	if d < time.Second {
		d = time.Second
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}
