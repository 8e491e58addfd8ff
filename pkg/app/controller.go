// Package app 把设置、截图、识别、点击和调度器组装成一个可控制的服务
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/auto"
	"github.com/zoeyai/autotap/pkg/capture"
	"github.com/zoeyai/autotap/pkg/config"
	"github.com/zoeyai/autotap/pkg/loop"
	"github.com/zoeyai/autotap/pkg/metrics"
	"github.com/zoeyai/autotap/pkg/plugin"
	"github.com/zoeyai/autotap/pkg/shell"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

// 状态文字
const (
	TextRunning      = "运行中"
	TextStopped      = "已停止"
	TextTargetSet    = "位置已设置"
	TextCompleted    = "检测到进行中，已停止"
	TextNeedTarget   = "请先选择点击位置"
	TextUnauthorized = "通道未授权"
	TextIdle         = "就绪"
)

// Options 创建 Controller 的参数，为空的字段按设置构建
type Options struct {
	Manager *config.Manager
	Plugin  *plugin.OCRPlugin
	// Device 特权通道，为空时按 Settings.Device 创建
	Device shell.Device
	// Engine 识别引擎，为空时加载 go-ocr 模型
	Engine ocr.Engine
	// Tapper 点击方式，为空时通过通道执行 input tap
	Tapper auto.Tapper
	// Metrics 为空时创建新的 Collector
	Metrics *metrics.Collector
}

// Controller 检测循环的控制入口
type Controller struct {
	manager    *config.Manager
	device     shell.Device
	provider   *capture.Provider
	classifier *ocr.Classifier
	engine     ocr.Engine
	sched      *loop.Scheduler
	metrics    *metrics.Collector
	unsubs     []func()

	mu     sync.RWMutex
	text   string
	lastAt time.Time
}

// View 对外展示的状态
type View struct {
	State  string     `json:"state"`
	Text   string     `json:"text"`
	RunID  string     `json:"runId,omitempty"`
	Target auto.Point `json:"target"`
	Stats  loop.Stats `json:"stats"`
	Since  time.Time  `json:"since"`
}

// NewDevice 按设置创建特权通道
func NewDevice(s config.DeviceSettings) shell.Device {
	if s.Backend == "adb" {
		return shell.NewADB(s.ADBPath, s.Serial)
	}
	l := shell.NewLocal()
	l.RequireProcess = s.RequireProcess
	return l
}

// New 创建 Controller
func New(opts Options) (*Controller, error) {
	manager := opts.Manager
	if manager == nil {
		manager = config.NewManager()
	}
	settings, err := manager.Load()
	if err != nil {
		logger.Warn("加载设置失败，使用默认设置: %v", err)
	}

	dev := opts.Device
	if dev == nil {
		dev = NewDevice(settings.Device)
	}

	engine := opts.Engine
	if engine == nil {
		cfg := plugin.ResolveOCRConfig(opts.Plugin, ocr.Config{
			OnnxRuntimeLibPath: settings.OCR.OnnxRuntimeLibPath,
			DetModelPath:       settings.OCR.DetModelPath,
			RecModelPath:       settings.OCR.RecModelPath,
			DictPath:           settings.OCR.DictPath,
		})
		rec, err := ocr.NewTextRecognizer(cfg)
		if err != nil {
			return nil, fmt.Errorf("加载 OCR 模型失败: %w", err)
		}
		engine = rec
	}

	tapper := opts.Tapper
	if tapper == nil {
		tapper = auto.NewShellTapper(dev)
	}

	collector := opts.Metrics
	if collector == nil {
		collector = metrics.New()
	}

	provider := capture.NewProvider(dev, capture.WithPath(settings.ScreenshotPath))
	classifier := ocr.NewClassifier(engine,
		ocr.WithTimeout(settings.RunConfig().OCRTimeout),
		ocr.WithFrameReuse(settings.OCR.ReuseDistance))

	c := &Controller{
		manager:    manager,
		device:     dev,
		provider:   provider,
		classifier: classifier,
		engine:     engine,
		metrics:    collector,
		text:       TextIdle,
		lastAt:     time.Now(),
		sched: loop.New(loop.Deps{
			Capturer:   provider,
			Recognizer: classifier,
			Tapper:     tapper,
			Authorizer: authorizers(dev, tapper),
		}),
	}
	if settings.HasTarget() {
		_ = c.sched.SetTarget(auto.Pt(settings.TargetX, settings.TargetY))
	}
	c.unsubs = append(c.unsubs,
		c.sched.Subscribe(loop.ListenerFuncs{OnStatus: c.statusChanged}),
		c.sched.Subscribe(collector))
	return c, nil
}

// chain 依次检查多个授权
type chain []shell.Authorizer

func (c chain) Authorized(ctx context.Context) error {
	for _, a := range c {
		if err := a.Authorized(ctx); err != nil {
			return err
		}
	}
	return nil
}

// authorizers 通道授权，点击方式需要权限时一并检查
func authorizers(dev shell.Device, tapper auto.Tapper) shell.Authorizer {
	if a, ok := tapper.(shell.Authorizer); ok {
		return chain{dev, a}
	}
	return dev
}

// statusText 状态通知对应的文字，不改变文字时返回空
func statusText(s loop.Status) string {
	switch s.Event {
	case loop.EventStarted:
		return TextRunning
	case loop.EventStopped:
		if s.Reason == loop.StopCompleted {
			return TextCompleted
		}
		return TextStopped
	case loop.EventTargetSet:
		return TextTargetSet
	case loop.EventRejected:
		switch {
		case errors.Is(s.Err, loop.ErrTargetUnset):
			return TextNeedTarget
		case errors.Is(s.Err, loop.ErrUnauthorized):
			return TextUnauthorized
		}
	}
	return ""
}

func (c *Controller) statusChanged(s loop.Status) {
	text := statusText(s)
	if text == "" {
		return
	}
	c.mu.Lock()
	c.text = text
	c.lastAt = s.Time
	c.mu.Unlock()
}

// Start 读取当前设置生成快照并启动循环
func (c *Controller) Start() error {
	settings, err := c.manager.Load()
	if err != nil {
		logger.Warn("加载设置失败，使用默认设置: %v", err)
	}
	return c.sched.Start(settings.RunConfig())
}

// Stop 停止循环并等待退出
func (c *Controller) Stop() {
	c.sched.Stop()
}

// SetTarget 设置并保存点击位置，超出屏幕范围只警告
func (c *Controller) SetTarget(ctx context.Context, p auto.Point) error {
	if !p.Valid() {
		return fmt.Errorf("无效的点击位置 %s", p)
	}
	prev := c.sched.Target()
	if err := c.sched.SetTarget(p); err != nil {
		return err
	}
	if _, err := c.manager.Update(func(s *config.Settings) {
		s.TargetX, s.TargetY = p.X, p.Y
	}); err != nil {
		// 保存失败时恢复原来的位置
		if rerr := c.sched.SetTarget(prev); rerr != nil {
			logger.Warn("恢复点击位置失败: %v", rerr)
		}
		return fmt.Errorf("保存点击位置失败: %w", err)
	}

	w, h, err := c.ScreenSize(ctx)
	if err == nil && !p.Within(w, h) {
		logger.Warn("点击位置 %s 超出屏幕范围 %dx%d", p, w, h)
	}
	return nil
}

// ScreenSize 查询屏幕尺寸，失败时返回默认尺寸和错误
func (c *Controller) ScreenSize(ctx context.Context) (width, height int, err error) {
	return shell.ScreenSize(ctx, c.device)
}

// Probe 空闲时执行一次检测，不点击
func (c *Controller) Probe(ctx context.Context) (*loop.ProbeResult, error) {
	settings, err := c.manager.Load()
	if err != nil {
		logger.Warn("加载设置失败，使用默认设置: %v", err)
	}
	return c.sched.Probe(ctx, settings.RunConfig())
}

// Status 当前状态
func (c *Controller) Status() View {
	c.mu.RLock()
	text, since := c.text, c.lastAt
	c.mu.RUnlock()

	return View{
		State:  c.sched.State().String(),
		Text:   text,
		RunID:  c.sched.RunID(),
		Target: c.sched.Target(),
		Stats:  c.sched.Stats(),
		Since:  since,
	}
}

// Running 循环是否在运行
func (c *Controller) Running() bool {
	return c.sched.State() == loop.Running
}

// Subscribe 注册状态和检测结果通知
func (c *Controller) Subscribe(l loop.Listener) (cancel func()) {
	return c.sched.Subscribe(l)
}

// Flush 等待已发出的通知投递完
func (c *Controller) Flush() {
	c.sched.Flush()
}

// Settings 当前保存的设置
func (c *Controller) Settings() (*config.Settings, error) {
	return c.manager.Load()
}

// Metrics 指标收集器
func (c *Controller) Metrics() *metrics.Collector {
	return c.metrics
}

// Close 停止循环并释放识别引擎
func (c *Controller) Close() error {
	c.sched.Close()
	for _, unsub := range c.unsubs {
		unsub()
	}

	// 超时返回后引擎可能还在运行
	ctx, cancel := context.WithTimeout(context.Background(), c.classifier.Timeout())
	defer cancel()
	if err := c.classifier.Wait(ctx); err != nil {
		logger.Warn("等待识别结束超时，不释放引擎: %v", err)
		return nil
	}
	if closer, ok := c.engine.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
