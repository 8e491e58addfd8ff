package auto

import (
	"context"

	"github.com/zoeyai/autotap/pkg/shell"
)

// Tapper 在屏幕坐标上执行一次点击
type Tapper interface {
	Tap(ctx context.Context, p Point) error
}

// TapperFunc 函数形式的 Tapper
type TapperFunc func(ctx context.Context, p Point) error

// Tap 调用 f
func (f TapperFunc) Tap(ctx context.Context, p Point) error { return f(ctx, p) }

// ShellTapper 通过特权通道执行 input tap
type ShellTapper struct {
	ch shell.Channel
}

// NewShellTapper 创建 ShellTapper
func NewShellTapper(ch shell.Channel) *ShellTapper {
	return &ShellTapper{ch: ch}
}

// Tap 执行 input tap x y
func (t *ShellTapper) Tap(ctx context.Context, p Point) error {
	return shell.Tap(ctx, t.ch, p.X, p.Y)
}
