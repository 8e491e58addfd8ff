// Package input 桌面鼠标点击
//
// 目标画面显示在电脑上（投屏窗口、模拟器）时，用鼠标点击代替 input tap。
package input

import (
	"context"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/zoeyai/autotap/pkg/auto"
	"github.com/zoeyai/autotap/pkg/permissions"
)

// moveSettle 移动鼠标后等待到位
const moveSettle = 50 * time.Millisecond

// DesktopTapper 用 robotgo 移动鼠标并左键单击
type DesktopTapper struct {
	// Offset 屏幕坐标相对于目标画面左上角的偏移
	Offset auto.Point
}

var _ auto.Tapper = (*DesktopTapper)(nil)

// NewDesktopTapper 创建桌面点击器
func NewDesktopTapper() *DesktopTapper {
	return &DesktopTapper{}
}

// Tap 移动到 p 并单击
func (d *DesktopTapper) Tap(ctx context.Context, p auto.Point) error {
	x, y := p.X+d.Offset.X, p.Y+d.Offset.Y
	robotgo.Move(x, y)

	timer := time.NewTimer(moveSettle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	robotgo.Click("left", false)
	return nil
}

// Authorized 检查鼠标控制权限
func (d *DesktopTapper) Authorized(context.Context) error {
	return permissions.Accessibility()
}

// DesktopScreenSize 主显示器尺寸
func DesktopScreenSize() (width, height int) {
	return robotgo.GetScreenSize()
}
