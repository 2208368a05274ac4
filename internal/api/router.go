// Package api 提供分析任务的HTTP接口
//
// 路由:
//
//	POST /api/v1/analyze          提交任务
//	GET  /api/v1/jobs/:id         任务状态
//	GET  /api/v1/jobs/:id/result  任务结果(完成前409)
//	GET  /api/v1/health           健康检查
//	GET  /api/v1/signatures       当前签名表
//
// 健康检查不受限流影响
package api

import (
	"net/http"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/api/middleware"
	"github.com/RecoveryAshes/DeepStack/internal/core"
	"github.com/RecoveryAshes/DeepStack/internal/signatures"
	"github.com/gin-gonic/gin"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Queue     *JobQueue
	Catalog   *signatures.Catalog
	Server    core.ServerConfig
	Version   string
	StartTime time.Time
}

// NewRouter 创建gin引擎并注册路由
func NewRouter(d RouterDeps) *gin.Engine {
	if d.Server.Mode != "" {
		gin.SetMode(d.Server.Mode)
	}
	if d.StartTime.IsZero() {
		d.StartTime = time.Now()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", Health(d.Queue, d.Catalog, d.Version, d.StartTime))

	limited := v1.Group("")
	limited.Use(middleware.RateLimit(d.Server.RateLimit.RPS, d.Server.RateLimit.Burst, func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody(ErrCodeRateLimited, "请求过于频繁, 请稍后再试"))
	}))

	limited.POST("/analyze", Analyze(d.Queue, d.Server.MaxURLsPerJob))
	limited.GET("/jobs/:id", GetJob(d.Queue))
	limited.GET("/jobs/:id/result", GetResult(d.Queue))
	limited.GET("/signatures", Signatures(d.Catalog))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "接口不存在"))
	})
	return r
}
