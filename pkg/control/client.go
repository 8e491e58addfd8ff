package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zoeyai/autotap/pkg/app"
)

// APIError 控制接口返回的错误
type APIError struct {
	StatusCode int
	Message    string
	// View 出错时服务端附带的状态
	View *app.View
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error"`
}

// Client 控制接口客户端
type Client struct {
	base string
	http *resty.Client
}

// NewClient 创建客户端，base 可以是 host:port 或完整 URL
func NewClient(base string) *Client {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimSuffix(base, "/")
	return &Client{
		base: base,
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(30 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

// Base 控制接口地址
func (c *Client) Base() string {
	return c.base
}

func do[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var (
		ok   envelope[T]
		fail envelope[*app.View]
	)
	req := c.http.R().
		SetContext(ctx).
		SetResult(&ok).
		SetError(&fail)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return ok.Data, fmt.Errorf("请求 %s 失败: %w", path, err)
	}
	if resp.IsError() {
		msg := fail.Error
		if msg == "" {
			msg = resp.Status()
		}
		return ok.Data, &APIError{StatusCode: resp.StatusCode(), Message: msg, View: fail.Data}
	}
	return ok.Data, nil
}

// Start 启动检测循环
func (c *Client) Start(ctx context.Context) (app.View, error) {
	return do[app.View](ctx, c, resty.MethodPost, "/api/v1/start", nil)
}

// Stop 停止检测循环
func (c *Client) Stop(ctx context.Context) (app.View, error) {
	return do[app.View](ctx, c, resty.MethodPost, "/api/v1/stop", nil)
}

// Status 查询状态
func (c *Client) Status(ctx context.Context) (app.View, error) {
	return do[app.View](ctx, c, resty.MethodGet, "/api/v1/status", nil)
}

// SetTarget 设置点击位置
func (c *Client) SetTarget(ctx context.Context, x, y int) (app.View, error) {
	return do[app.View](ctx, c, resty.MethodPut, "/api/v1/target", TargetRequest{X: &x, Y: &y})
}

// Probe 执行一次检测，withImage 为 false 时不返回识别区域图像
func (c *Client) Probe(ctx context.Context, withImage bool) (ProbeView, error) {
	path := "/api/v1/probe"
	if !withImage {
		path += "?image=false"
	}
	return do[ProbeView](ctx, c, resty.MethodPost, path, nil)
}

// Ping 检查服务是否可用
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/ping")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: resp.Status()}
	}
	return nil
}

// Watch 订阅事件流
func (c *Client) Watch(ctx context.Context, withTicks bool, fn func(Event) bool) error {
	return Watch(ctx, c.base, withTicks, fn)
}
