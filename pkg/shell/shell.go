// Package shell 特权 shell 通道
//
// 截图、点击等操作都通过具备系统权限的 shell 执行。设备本机运行时
// 使用 Local（例如在 adb shell 或 Shizuku 启动的进程中），在电脑上
// 控制手机时使用 ADB。
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnauthorized 通道未授权或不可用
var ErrUnauthorized = errors.New("shell 通道未授权")

// Channel 执行一条命令并返回输出
type Channel interface {
	Exec(ctx context.Context, cmdline string) (string, error)
}

// Spawner 启动一个进程并读取其标准输出
//
// 返回的 ReadCloser 在 Close 时等待进程退出，进程异常退出时 Close 返回错误。
type Spawner interface {
	Spawn(ctx context.Context, cmdline string) (io.ReadCloser, error)
}

// Storage 读写截图文件所在的存储
type Storage interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Remove 删除文件，文件不存在不算错误
	Remove(ctx context.Context, path string) error
}

// Authorizer 检查通道是否可用
type Authorizer interface {
	Authorized(ctx context.Context) error
}

// Device 一个完整的设备后端
type Device interface {
	Channel
	Spawner
	Storage
	Authorizer
}

// ExecError 命令执行失败
type ExecError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *ExecError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("执行命令失败 [%s]: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("执行命令失败 [%s]: %v: %s", e.Cmd, e.Err, out)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Quote 将参数包在单引号中供 sh 解析
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("/._-+=:,@", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Tap 在 (x, y) 模拟点击
func Tap(ctx context.Context, ch Channel, x, y int) error {
	_, err := ch.Exec(ctx, fmt.Sprintf("input tap %d %d", x, y))
	return err
}

// MkdirAll 创建目录
func MkdirAll(ctx context.Context, ch Channel, dir string) error {
	_, err := ch.Exec(ctx, "mkdir -p "+Quote(dir))
	return err
}

// Screencap 截图并保存到 path
func Screencap(ctx context.Context, ch Channel, path string) error {
	_, err := ch.Exec(ctx, "screencap -p "+Quote(path))
	return err
}

// ScreencapCmd 管道方式截图使用的命令
const ScreencapCmd = "screencap -p"
