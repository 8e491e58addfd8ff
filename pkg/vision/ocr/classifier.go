package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/zoeyai/autotap/internal/logger"
)

// DefaultTimeout 单次识别的等待上限
const DefaultTimeout = 5 * time.Second

// Reason 识别失败原因
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonTimeout 超时或被取消
	ReasonTimeout
	// ReasonEngineError 引擎返回错误或崩溃
	ReasonEngineError
	// ReasonEmptyInput 输入图像为空
	ReasonEmptyInput
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTimeout:
		return "timeout"
	case ReasonEngineError:
		return "engine-error"
	case ReasonEmptyInput:
		return "empty-input"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Result 识别结果：要么是文字（可能为空），要么是失败原因
type Result struct {
	Text   string
	Reason Reason
	Err    error
}

// TextResult 成功结果
func TextResult(text string) Result {
	return Result{Text: text}
}

// Failed 失败结果
func Failed(reason Reason, err error) Result {
	return Result{Reason: reason, Err: err}
}

// OK 是否识别成功
func (r Result) OK() bool {
	return r.Reason == ReasonNone
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("Text(%q)", r.Text)
	}
	return fmt.Sprintf("Failed(%s)", r.Reason)
}

var errEmptyInput = errors.New("图像为空")

// Classifier 带超时的同步识别
//
// 同一时间最多有一个引擎调用在执行。超时后调用方立即得到 Failed(timeout)，
// 引擎调用继续在后台执行直到返回，其结果被丢弃，期间新的请求需要排队。
type Classifier struct {
	engine  Engine
	timeout time.Duration
	slot    chan struct{}

	reuseDistance int
	mu            sync.Mutex
	lastHash      *goimagehash.ImageHash
	lastText      string

	calls  atomic.Int64
	reused atomic.Int64
}

// ClassifierOption Classifier 选项
type ClassifierOption func(*Classifier)

// WithTimeout 设置调用方未设置期限时的识别等待上限，不大于 0 时使用默认值
func WithTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFrameReuse 识别区域与上一次的感知哈希距离不超过 maxDistance 时
// 直接返回上一次的文字，不调用引擎。负数关闭。
func WithFrameReuse(maxDistance int) ClassifierOption {
	return func(c *Classifier) {
		c.reuseDistance = maxDistance
	}
}

// NewClassifier 创建识别器
func NewClassifier(engine Engine, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		engine:        engine,
		timeout:       DefaultTimeout,
		slot:          make(chan struct{}, 1),
		reuseDistance: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout 调用方未设置期限时的识别等待上限
func (c *Classifier) Timeout() time.Duration {
	return c.timeout
}

// Busy 是否有引擎调用正在执行
func (c *Classifier) Busy() bool {
	return len(c.slot) > 0
}

// EngineCalls 实际调用引擎的次数
func (c *Classifier) EngineCalls() int64 {
	return c.calls.Load()
}

// Reused 复用上次结果的次数
func (c *Classifier) Reused() int64 {
	return c.reused.Load()
}

// Recognize 识别图像中的文字
//
// ctx 带期限时以 ctx 为准，否则最多等待 Timeout。
func (c *Classifier) Recognize(ctx context.Context, img image.Image) Result {
	if img == nil || img.Bounds().Empty() {
		return Failed(ReasonEmptyInput, errEmptyInput)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	hash := c.frameHash(img)
	if text, ok := c.reuse(hash); ok {
		c.reused.Add(1)
		return TextResult(text)
	}

	if err := ctx.Err(); err != nil {
		return Failed(ReasonTimeout, err)
	}

	// 上一次超时的调用还没返回时，在自己的期限内排队
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return Failed(ReasonTimeout, fmt.Errorf("等待上一次识别结束: %w", ctx.Err()))
	}

	c.calls.Add(1)
	done := make(chan Result, 1)
	go func() {
		defer func() { <-c.slot }()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("OCR 引擎崩溃: %v", r)
				done <- Failed(ReasonEngineError, fmt.Errorf("引擎崩溃: %v", r))
			}
		}()

		blocks, err := c.engine.Recognize(img)
		if err != nil {
			done <- Failed(ReasonEngineError, err)
			return
		}
		done <- TextResult(JoinText(blocks))
	}()

	select {
	case res := <-done:
		c.remember(hash, res)
		return res
	case <-ctx.Done():
		logger.Warn("OCR 识别超时: %v", ctx.Err())
		return Failed(ReasonTimeout, ctx.Err())
	}
}

// Wait 等待后台的引擎调用结束
func (c *Classifier) Wait(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
		<-c.slot
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Classifier) frameHash(img image.Image) *goimagehash.ImageHash {
	if c.reuseDistance < 0 {
		return nil
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil
	}
	return hash
}

func (c *Classifier) reuse(hash *goimagehash.ImageHash) (string, bool) {
	if hash == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastHash == nil {
		return "", false
	}
	dist, err := c.lastHash.Distance(hash)
	if err != nil || dist > c.reuseDistance {
		return "", false
	}
	logger.Debug("识别区域与上一帧相似 (距离 %d)，复用结果", dist)
	return c.lastText, true
}

func (c *Classifier) remember(hash *goimagehash.ImageHash, res Result) {
	if c.reuseDistance < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// 只复用成功的结果
	if hash == nil || !res.OK() {
		c.lastHash = nil
		c.lastText = ""
		return
	}
	c.lastHash = hash
	c.lastText = res.Text
}
