package auto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoeyai/autotap/internal/logger"
)

// DefaultPacing 点击后的默认等待
const DefaultPacing = 500 * time.Millisecond

// Executor 点击执行器
type Executor struct {
	tapper Tapper
	pacing time.Duration
}

// Option Executor 选项
type Option func(*Executor)

// WithPacing 设置点击后的等待
func WithPacing(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.pacing = d
		}
	}
}

// NewExecutor 创建执行器
func NewExecutor(tapper Tapper, opts ...Option) *Executor {
	e := &Executor{tapper: tapper, pacing: DefaultPacing}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pacing 点击后的等待时长
func (e *Executor) Pacing() time.Duration {
	return e.pacing
}

// Act 点击一次，失败（包括崩溃）时返回 false，不向上传递错误
func (e *Executor) Act(ctx context.Context, p Point) (ok bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("点击时崩溃: %v", r)
			ok = false
		}
		elapsed := float64(time.Since(start).Microseconds()) / 1000
		logger.LogEvent("TAP", ok, elapsed, p.String())
	}()

	if e.tapper == nil {
		return false
	}
	if !p.Valid() {
		logger.Warn("点击位置无效: %s", p)
		return false
	}
	if err := e.tapper.Tap(ctx, p); err != nil {
		logger.Debug("点击失败: %v", err)
		return false
	}
	return true
}

// ErrPaceInterrupted 等待被取消
var ErrPaceInterrupted = errors.New("点击后等待被中断")

// Pace 点击后等待，上下文取消时提前返回
func (e *Executor) Pace(ctx context.Context) error {
	if e.pacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.pacing)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPaceInterrupted, ctx.Err())
	}
}
