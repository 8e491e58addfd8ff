package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/zoeyai/autotap/pkg/cmdutil"
)

// ADB 在电脑上通过 adb 控制设备
type ADB struct {
	// Path adb 可执行文件，默认为 adb
	Path string
	// Serial 设备序列号，为空时使用唯一连接的设备
	Serial string
}

// NewADB 创建 adb 通道
func NewADB(path, serial string) *ADB {
	if path == "" {
		path = "adb"
	}
	return &ADB{Path: path, Serial: serial}
}

func (a *ADB) args(sub ...string) []string {
	var args []string
	if a.Serial != "" {
		args = append(args, "-s", a.Serial)
	}
	return append(args, sub...)
}

func (a *ADB) run(ctx context.Context, display string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := cmdutil.Command(ctx, a.Path, a.args(args...)...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return out.String(), &ExecError{Cmd: display, Output: out.String(), Err: err}
	}
	return out.String(), nil
}

// Exec 通过 adb shell 执行命令
func (a *ADB) Exec(ctx context.Context, cmdline string) (string, error) {
	return a.run(ctx, cmdline, "shell", cmdline)
}

// Spawn 通过 adb exec-out 执行命令，输出不经过换行转换
func (a *ADB) Spawn(ctx context.Context, cmdline string) (io.ReadCloser, error) {
	return spawn(cmdline, cmdutil.Command(ctx, a.Path, a.args("exec-out", cmdline)...))
}

// Open 读取设备上的文件
func (a *ADB) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return a.Spawn(ctx, "cat "+Quote(path))
}

// Remove 删除设备上的文件
func (a *ADB) Remove(ctx context.Context, path string) error {
	_, err := a.Exec(ctx, "rm -f "+Quote(path))
	return err
}

// Authorized 检查设备是否已连接并授权调试
func (a *ADB) Authorized(ctx context.Context) error {
	out, err := a.run(ctx, "get-state", "get-state")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if state := strings.TrimSpace(out); state != "device" {
		return fmt.Errorf("%w: 设备状态为 %q", ErrUnauthorized, state)
	}
	return nil
}
