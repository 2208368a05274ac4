package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/api"
	"github.com/RecoveryAshes/DeepStack/internal/core"
	"github.com/RecoveryAshes/DeepStack/internal/models"
	"github.com/RecoveryAshes/DeepStack/internal/utils"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动分析任务API",
	Long: `启动HTTP任务API, 任务按提交顺序逐个执行

  POST /api/v1/analyze          {"url": "..."} 或 {"urls": "每行一个"} 或 {"file_content": "..."}
  GET  /api/v1/jobs/:id         任务状态和进度
  GET  /api/v1/jobs/:id/result  任务结果
  GET  /api/v1/health
  GET  /api/v1/signatures`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			appConfig.Server.Addr = serveAddr
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

		queue := api.NewJobQueue(func(ctx context.Context, urls []string, observer core.Observer) []*models.AnalysisRecord {
			return engine.Orchestrator(core.WithObserver(observer)).Run(ctx, urls)
		}, api.QueueOptions{
			Version: Version,
			TTL:     appConfig.Server.JobTTL,
		})

		router := api.NewRouter(api.RouterDeps{
			Queue:     queue,
			Catalog:   engine.Catalog,
			Server:    appConfig.Server,
			Version:   Version,
			StartTime: time.Now(),
		})

		ln, err := net.Listen("tcp", appConfig.Server.Addr)
		if err != nil {
			return fmt.Errorf("监听 %s 失败: %w", appConfig.Server.Addr, err)
		}
		return api.Serve(cmd.Context(), ln, router, queue)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址 (默认 :8080)")
}
