package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/utils"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Serve 运行HTTP服务和任务worker, ctx取消后优雅关闭
// 任一方返回错误时另一方随之停止
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, queue *JobQueue) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Run(gctx)
	})

	g.Go(func() error {
		utils.Infof("任务API已启动: http://%s/api/v1", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务异常: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("HTTP服务强制关闭: %w", err)
		}
		utils.Infof("任务API已关闭")
		return nil
	})

	return g.Wait()
}
