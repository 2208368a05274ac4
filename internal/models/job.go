package models

import (
	"sync"
	"time"
)

// JobStatus 分析任务状态
type JobStatus string

const (
	JobPending   JobStatus = "pending"   // 排队中
	JobRunning   JobStatus = "running"   // 执行中
	JobCompleted JobStatus = "completed" // 已完成
	JobError     JobStatus = "error"     // 失败
)

// JobType 任务类型
type JobType string

const (
	JobSingle JobType = "single"
	JobBatch  JobType = "batch"
)

// Job 一次通过API提交的分析任务
// 只有任务worker写入,HTTP处理器通过Snapshot读取
type Job struct {
	mu sync.RWMutex

	ID          string
	URLs        []string
	Type        JobType
	status      JobStatus
	done        int
	result      *BatchEnvelope
	err         string
	CreatedAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
}

// JobSnapshot 任务状态快照
type JobSnapshot struct {
	JobID       string     `json:"job_id"`
	URLs        []string   `json:"urls"`
	JobType     JobType    `json:"job_type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Completed   int        `json:"completed"`
	Total       int        `json:"total"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// NewJob 创建待执行任务
func NewJob(urls []string) *Job {
	jt := JobSingle
	if len(urls) > 1 {
		jt = JobBatch
	}
	return &Job{
		ID:        generateID(),
		URLs:      urls,
		Type:      jt,
		status:    JobPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Start 标记任务开始执行
func (j *Job) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now().UTC()
	j.status = JobRunning
	j.startedAt = &now
}

// Advance 记录已完成的URL数量
func (j *Job) Advance(done int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done = done
}

// Complete 标记任务完成
func (j *Job) Complete(result *BatchEnvelope) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now().UTC()
	j.status = JobCompleted
	j.result = result
	j.done = len(j.URLs)
	j.completedAt = &now
}

// Fail 标记任务失败
func (j *Job) Fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now().UTC()
	j.status = JobError
	j.err = err.Error()
	j.completedAt = &now
}

// Result 返回任务结果,未完成时ok为false
func (j *Job) Result() (*BatchEnvelope, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result, j.status == JobCompleted
}

// Snapshot 返回任务状态快照
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	progress := 0
	if total := len(j.URLs); total > 0 {
		progress = j.done * 100 / total
	}
	return JobSnapshot{
		JobID:       j.ID,
		URLs:        j.URLs,
		JobType:     j.Type,
		Status:      j.status,
		Progress:    progress,
		Completed:   j.done,
		Total:       len(j.URLs),
		Error:       j.err,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
}
