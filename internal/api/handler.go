package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
	"github.com/gin-gonic/gin"
)

// AnalyzeRequest 提交任务的请求体, 三个字段取第一个非空的
type AnalyzeRequest struct {
	URL         string `json:"url"`
	URLs        string `json:"urls"`
	FileContent string `json:"file_content"`
}

// AnalyzeResponse 任务已受理
type AnalyzeResponse struct {
	JobID     string           `json:"job_id"`
	Status    models.JobStatus `json:"status"`
	URLsCount int              `json:"urls_count"`
	JobType   models.JobType   `json:"job_type"`
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Jobs        int    `json:"jobs"`
	PendingJobs int    `json:"pending_jobs"`
	Signatures  int    `json:"signatures"`
}

// SignatureInfo 签名表中的一个工具
type SignatureInfo struct {
	Category     models.Category `json:"category"`
	ToolName     string          `json:"tool_name"`
	TagManager   bool            `json:"tag_manager"`
	PatternCount int             `json:"pattern_count"`
}

// parseTargets 解析请求中的URL, 规则与批量输入文件一致
func (r AnalyzeRequest) parseTargets() ([]string, error) {
	var urls []string
	switch {
	case r.URL != "":
		if u := models.NormalizeURL(r.URL); u != "" {
			urls = []string{u}
		}
	case r.URLs != "":
		urls = models.ParseURLList(r.URLs)
	default:
		urls = models.ParseURLList(r.FileContent)
	}

	if len(urls) == 0 {
		return nil, errors.New("没有提供URL")
	}
	for _, u := range urls {
		if err := models.ValidateURL(u); err != nil {
			return nil, fmt.Errorf("%s: %w", u, err)
		}
	}
	return urls, nil
}

// Analyze POST /api/v1/analyze
func Analyze(queue *JobQueue, maxURLs int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(ErrCodeInvalidInput, "请求体不是合法JSON: "+err.Error()))
			return
		}

		urls, err := req.parseTargets()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(ErrCodeInvalidInput, err.Error()))
			return
		}
		if maxURLs > 0 && len(urls) > maxURLs {
			c.JSON(http.StatusBadRequest, errorBody(ErrCodeTooManyURLs, fmt.Sprintf("每个任务最多%d个URL, 提交了%d个", maxURLs, len(urls))))
			return
		}

		job, err := queue.Submit(urls)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, errorBody(ErrCodeQueueFull, err.Error()))
			return
		}

		snap := job.Snapshot()
		c.JSON(http.StatusAccepted, AnalyzeResponse{
			JobID:     snap.JobID,
			Status:    snap.Status,
			URLsCount: snap.Total,
			JobType:   snap.JobType,
		})
	}
}

// GetJob GET /api/v1/jobs/:id
func GetJob(queue *JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := queue.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, errorBody(ErrCodeJobNotFound, "任务不存在或已过期"))
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// GetResult GET /api/v1/jobs/:id/result
// 任务完成前返回409
func GetResult(queue *JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := queue.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, errorBody(ErrCodeJobNotFound, "任务不存在或已过期"))
			return
		}

		if env, done := job.Result(); done {
			c.JSON(http.StatusOK, env)
			return
		}

		snap := job.Snapshot()
		if snap.Status == models.JobError {
			c.JSON(http.StatusInternalServerError, errorBody(ErrCodeJobFailed, snap.Error))
			return
		}
		c.JSON(http.StatusConflict, errorBody(ErrCodeNotCompleted, fmt.Sprintf("任务尚未完成 (%s, %d%%)", snap.Status, snap.Progress)))
	}
}

// Health GET /api/v1/health
func Health(queue *JobQueue, catalog *signatures.Catalog, version string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:      "ok",
			Version:     version,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			Jobs:        queue.Len(),
			PendingJobs: queue.Pending(),
			Signatures:  catalog.Len(),
		})
	}
}

// Signatures GET /api/v1/signatures
func Signatures(catalog *signatures.Catalog) gin.HandlerFunc {
	list := ListSignatures(catalog)
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"signatures": list, "total": len(list)})
	}
}

// ListSignatures 按类别顺序和工具名列出签名表
func ListSignatures(catalog *signatures.Catalog) []SignatureInfo {
	out := []SignatureInfo{}
	for _, cat := range models.AllCategories() {
		for _, e := range catalog.Entries(cat) {
			out = append(out, SignatureInfo{
				Category:     e.Category,
				ToolName:     e.ToolName,
				TagManager:   e.TagManager,
				PatternCount: len(e.Rules),
			})
		}
	}
	return out
}
