// Package shelltest 提供内存中的假设备，用于测试
package shelltest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/zoeyai/autotap/pkg/shell"
)

// Fake 模拟一台设备：screencap 输出预设的图片，input tap 被记录下来
type Fake struct {
	mu sync.Mutex

	screen    []byte
	screenErr error
	authErr   error
	tapErr    error
	size      string

	files map[string][]byte
	cmds  []string
	taps  []image.Point

	// OnExec 在每条命令执行前调用，返回错误时命令失败
	OnExec func(ctx context.Context, cmdline string) error
}

var _ shell.Device = (*Fake)(nil)

// New 创建假设备，screen 为 screencap 输出的图片数据
func New(screen []byte) *Fake {
	return &Fake{
		screen: screen,
		size:   "Physical size: 1080x2400\n",
		files:  make(map[string][]byte),
	}
}

// SetScreen 替换截图内容
func (f *Fake) SetScreen(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screen = data
}

// SetScreenErr 设置截图命令的错误
func (f *Fake) SetScreenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenErr = err
}

// SetAuthErr 设置授权检查的错误
func (f *Fake) SetAuthErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authErr = err
}

// SetTapErr 设置点击命令的错误
func (f *Fake) SetTapErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tapErr = err
}

// SetSizeOutput 设置 wm size 的输出
func (f *Fake) SetSizeOutput(out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = out
}

// Commands 已执行的命令
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

// Taps 已执行的点击
func (f *Fake) Taps() []image.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]image.Point(nil), f.taps...)
}

// FileCount 存储中的文件数
func (f *Fake) FileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// HasFile 文件是否存在
func (f *Fake) HasFile(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

func (f *Fake) before(ctx context.Context, cmdline string) error {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmdline)
	hook := f.OnExec
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, cmdline); err != nil {
			return &shell.ExecError{Cmd: cmdline, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return &shell.ExecError{Cmd: cmdline, Err: err}
	}
	return nil
}

// Exec 模拟执行命令
func (f *Fake) Exec(ctx context.Context, cmdline string) (string, error) {
	if err := f.before(ctx, cmdline); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fields := strings.Fields(cmdline)
	switch {
	case strings.HasPrefix(cmdline, "screencap -p "):
		if f.screenErr != nil {
			return "", &shell.ExecError{Cmd: cmdline, Err: f.screenErr}
		}
		f.files[unquote(fields[len(fields)-1])] = f.screen
	case strings.HasPrefix(cmdline, "input tap "):
		if f.tapErr != nil {
			return "", &shell.ExecError{Cmd: cmdline, Err: f.tapErr}
		}
		var x, y int
		if _, err := fmt.Sscanf(cmdline, "input tap %d %d", &x, &y); err != nil {
			return "", &shell.ExecError{Cmd: cmdline, Err: err}
		}
		f.taps = append(f.taps, image.Pt(x, y))
	case cmdline == "wm size":
		return f.size, nil
	case strings.HasPrefix(cmdline, "rm -f "):
		delete(f.files, unquote(fields[len(fields)-1]))
	}
	return "", nil
}

// Spawn 模拟管道方式截图
func (f *Fake) Spawn(ctx context.Context, cmdline string) (io.ReadCloser, error) {
	if err := f.before(ctx, cmdline); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cmdline != shell.ScreencapCmd {
		return io.NopCloser(strings.NewReader("")), nil
	}
	if f.screenErr != nil {
		return nil, &shell.ExecError{Cmd: cmdline, Err: f.screenErr}
	}
	return io.NopCloser(bytes.NewReader(f.screen)), nil
}

// Open 读取存储中的文件
func (f *Fake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Remove 删除存储中的文件
func (f *Fake) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

// Authorized 返回预设的授权结果
func (f *Fake) Authorized(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authErr
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}
