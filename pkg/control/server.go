// Package control 检测循环的本地控制接口
//
// HTTP API 基于 gin，状态变化通过 WebSocket 推送，另提供 gRPC 健康检查。
// autotap ctl 通过 Client 调用这些接口。
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/app"
	"github.com/zoeyai/autotap/pkg/auto"
	"github.com/zoeyai/autotap/pkg/loop"
	"github.com/zoeyai/autotap/pkg/vision"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

// Service Server 依赖的控制操作，由 app.Controller 实现
type Service interface {
	Start() error
	Stop()
	SetTarget(ctx context.Context, p auto.Point) error
	Status() app.View
	Probe(ctx context.Context) (*loop.ProbeResult, error)
	Subscribe(l loop.Listener) (cancel func())
}

// TargetRequest PUT /api/v1/target 的请求体
type TargetRequest struct {
	X *int `json:"x" binding:"required,min=0"`
	Y *int `json:"y" binding:"required,min=0"`
}

// ProbeView 单次检测的结果
type ProbeView struct {
	Decision string `json:"decision"`
	Text     string `json:"text"`
	Failure  string `json:"failure,omitempty"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	// Region 识别区域的 PNG data URI
	Region string `json:"region,omitempty"`
}

// Server 控制接口服务
type Server struct {
	svc    Service
	engine *gin.Engine
	events *hub
}

// NewServer 创建控制接口，metrics 为空时不注册 /metrics
func NewServer(svc Service, metrics http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		svc:    svc,
		engine: gin.New(),
		events: newHub(svc),
	}
	s.engine.Use(gin.Recovery(), accessLog())

	s.engine.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	api := s.engine.Group("/api/v1")
	api.POST("/start", s.start)
	api.POST("/stop", s.stop)
	api.PUT("/target", s.setTarget)
	api.GET("/status", s.status)
	api.POST("/probe", s.probe)
	api.GET("/events", s.events.serve)
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
	return s
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve 在 lis 上提供服务，ctx 结束时优雅关闭
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	logger.Info("控制接口已启动: http://%s", lis.Addr())

	select {
	case err := <-errCh:
		s.events.close()
		return err
	case <-ctx.Done():
	}

	s.events.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭控制接口失败: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe 监听 addr 并提供服务
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// errorStatus 错误对应的 HTTP 状态码
func errorStatus(err error) int {
	switch {
	case errors.Is(err, loop.ErrTargetUnset):
		return http.StatusPreconditionFailed
	case errors.Is(err, loop.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, loop.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error(), "data": s.svc.Status()})
}

func (s *Server) start(c *gin.Context) {
	if err := s.svc.Start(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.svc.Status()})
}

func (s *Server) stop(c *gin.Context) {
	s.svc.Stop()
	c.JSON(http.StatusOK, gin.H{"data": s.svc.Status()})
}

func (s *Server) setTarget(c *gin.Context) {
	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.SetTarget(c.Request.Context(), auto.Pt(*req.X, *req.Y)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.svc.Status()})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.svc.Status()})
}

func (s *Server) probe(c *gin.Context) {
	res, err := s.svc.Probe(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	view := ProbeView{
		Decision: res.Decision.String(),
		Text:     res.Text,
		Width:    res.Width,
		Height:   res.Height,
	}
	if res.Failure != ocr.ReasonNone {
		view.Failure = res.Failure.String()
	}
	if c.Query("image") != "false" && res.Region != nil {
		uri, err := vision.ImageToBase64(res.Region, "png", 0)
		if err != nil {
			logger.Warn("编码识别区域失败: %v", err)
		}
		view.Region = uri
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}
