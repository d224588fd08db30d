package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"coinvault.com/pkg/common"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/middleware"
	"coinvault.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Check 依赖探活，返回 nil 表示可用
type Check func(ctx context.Context) error

// NewRouter 运维端口：/healthz /readyz /metrics
func NewRouter(service string, checks map[string]Check) *gin.Engine {
	r := gin.New()
	p := ginprom.NewPrometheus("coinvault")
	p.Use(r)
	r.Use(
		otelgin.Middleware(service),
		middleware.ReqId(),
		middleware.Recover(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		common.Success(c, gin.H{"service": service})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn(ctx, "readiness check failed", zap.String("dependency", name), zap.Error(err))
				common.Fail(c, xerr.Wrap(err, xerr.Unavailable, name+" unavailable"))
				return
			}
		}
		common.Success(c, gin.H{"service": service})
	})
	return r
}

func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        h,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

// Run 阻塞到 ctx 结束，然后优雅关闭
func Run(ctx context.Context, s *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "ops http listening", zap.String("addr", s.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
