// Package capture 通过特权通道获取屏幕截图
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/shell"
)

// ErrCaptureFailed 截图失败（命令失败、文件不存在、解码失败或图像为空）
var ErrCaptureFailed = errors.New("截图失败")

// Strategy 截图方式
type Strategy int

const (
	// StrategyFile 截图保存到设备存储后再读取
	StrategyFile Strategy = 0
	// StrategyPipe 直接读取 screencap 的标准输出
	StrategyPipe Strategy = 1
)

func (s Strategy) String() string {
	switch s {
	case StrategyFile:
		return "file"
	case StrategyPipe:
		return "pipe"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// DefaultPath 文件方式截图的默认路径
const DefaultPath = "/sdcard/tmp/screenshot.png"

// Device 截图需要的通道能力
type Device interface {
	shell.Channel
	shell.Spawner
	shell.Storage
}

// Provider 截图提供者
type Provider struct {
	dev     Device
	path    string
	tracker *Tracker
}

// Option Provider 选项
type Option func(*Provider)

// WithPath 设置文件方式的截图路径
func WithPath(p string) Option {
	return func(pr *Provider) {
		if p != "" {
			pr.path = p
		}
	}
}

// WithTracker 使用外部的计数器
func WithTracker(t *Tracker) Option {
	return func(pr *Provider) {
		if t != nil {
			pr.tracker = t
		}
	}
}

// NewProvider 创建截图提供者
func NewProvider(dev Device, opts ...Option) *Provider {
	p := &Provider{
		dev:     dev,
		path:    DefaultPath,
		tracker: &Tracker{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path 文件方式的截图路径
func (p *Provider) Path() string {
	return p.path
}

// Tracker 返回存活对象计数器
func (p *Provider) Tracker() *Tracker {
	return p.tracker
}

// Capture 按指定方式截图，失败时返回的错误包装 ErrCaptureFailed，不重试
func (p *Provider) Capture(ctx context.Context, strategy Strategy) (*Capture, error) {
	start := time.Now()

	var (
		img image.Image
		err error
	)
	switch strategy {
	case StrategyFile:
		img, err = p.captureFile(ctx)
	case StrategyPipe:
		img, err = p.capturePipe(ctx)
	default:
		err = fmt.Errorf("未知的截图方式 %d", int(strategy))
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		logger.LogEvent("SHOT", false, elapsed, fmt.Sprintf("%s: %v", strategy, err))
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	b := img.Bounds()
	logger.Debug("截图完成 %s %dx%d %.1fms", strategy, b.Dx(), b.Dy(), elapsed)

	c := &Capture{Image: img, Strategy: strategy, tracker: p.tracker}
	if strategy == StrategyFile {
		c.Path = p.path
	}
	p.tracker.captures.Add(1)
	return c, nil
}

func (p *Provider) captureFile(ctx context.Context) (image.Image, error) {
	if err := shell.MkdirAll(ctx, p.dev, path.Dir(p.path)); err != nil {
		return nil, err
	}
	if err := shell.Screencap(ctx, p.dev, p.path); err != nil {
		return nil, err
	}
	rc, err := p.dev.Open(ctx, p.path)
	if err != nil {
		return nil, fmt.Errorf("截图文件不可读: %w", err)
	}
	defer rc.Close()
	return decode(rc)
}

func (p *Provider) capturePipe(ctx context.Context) (image.Image, error) {
	rc, err := p.dev.Spawn(ctx, shell.ScreencapCmd)
	if err != nil {
		return nil, err
	}

	buf := getBuffer()
	defer putBuffer(buf)

	_, readErr := buf.ReadFrom(rc)
	closeErr := rc.Close()
	if readErr != nil {
		return nil, fmt.Errorf("读取截图输出失败: %w", readErr)
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return decode(bytes.NewReader(buf.Bytes()))
}

func decode(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("解码截图失败: %w", err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("截图尺寸为空 (%s)", format)
	}
	return img, nil
}

// Cleanup 删除文件方式留下的截图文件，文件不存在不算错误
func (p *Provider) Cleanup(ctx context.Context, strategy Strategy) error {
	if strategy != StrategyFile {
		return nil
	}
	return p.dev.Remove(ctx, p.path)
}

// 管道方式的读缓冲复用，避免每次截图分配数 MB 的切片
var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// 超过此大小的缓冲不放回池中
const maxPooledBuffer = 32 << 20

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	bufferPool.Put(buf)
}
