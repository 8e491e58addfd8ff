package control

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/loop"
)

// HealthService gRPC 健康检查中检测循环的服务名，运行中为 SERVING
const HealthService = "autotap.loop"

// Health 把检测循环状态同步到 gRPC 健康检查
type Health struct {
	server *health.Server
	cancel func()
}

// NewHealth 创建健康检查服务并订阅状态变化
func NewHealth(svc Service) *Health {
	h := &Health{server: health.NewServer()}
	h.set(svc.Status().State == loop.Running.String())
	h.cancel = svc.Subscribe(loop.ListenerFuncs{OnStatus: func(s loop.Status) {
		h.set(s.State == loop.Running)
	}})
	return h
}

func (h *Health) set(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(HealthService, status)
}

// Check 查询服务状态
func (h *Health) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Register 注册到 gRPC 服务
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Serve 在 lis 上提供 gRPC 健康检查，ctx 结束时关闭
func (h *Health) Serve(ctx context.Context, lis net.Listener) error {
	s := grpc.NewServer()
	h.Register(s)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(lis)
	}()
	logger.Info("gRPC 健康检查已启动: %s", lis.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	h.Shutdown()
	s.GracefulStop()
	if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ListenAndServe 监听 addr 并提供 gRPC 健康检查
func (h *Health) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", addr, err)
	}
	return h.Serve(ctx, lis)
}

// Shutdown 取消订阅，所有服务置为 NOT_SERVING
func (h *Health) Shutdown() {
	h.cancel()
	h.server.Shutdown()
}
