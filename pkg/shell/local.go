package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/zoeyai/autotap/pkg/cmdutil"
	"github.com/zoeyai/autotap/pkg/process"
)

// DefaultTools 本机通道需要的命令
var DefaultTools = []string{"screencap", "input"}

// Local 在本机通过 sh -c 执行命令
type Local struct {
	// Shell 默认为 sh
	Shell string
	// Tools Authorized 检查的命令，为空时使用 DefaultTools
	Tools []string
	// RequireProcess 非空时要求存在名称包含它的进程，例如 shizuku_server
	RequireProcess string
}

// NewLocal 创建本机通道
func NewLocal() *Local {
	return &Local{Shell: "sh"}
}

func (l *Local) shell() string {
	if l.Shell == "" {
		return "sh"
	}
	return l.Shell
}

// Exec 执行命令，返回合并的 stdout/stderr
func (l *Local) Exec(ctx context.Context, cmdline string) (string, error) {
	var out bytes.Buffer
	cmd := cmdutil.Command(ctx, l.shell(), "-c", cmdline)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return out.String(), &ExecError{Cmd: cmdline, Output: out.String(), Err: err}
	}
	return out.String(), nil
}

// Spawn 启动进程并返回其标准输出
func (l *Local) Spawn(ctx context.Context, cmdline string) (io.ReadCloser, error) {
	return spawn(cmdline, cmdutil.Command(ctx, l.shell(), "-c", cmdline))
}

// Open 打开本地文件
func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Remove 删除本地文件
func (l *Local) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Authorized 检查所需命令是否可用
func (l *Local) Authorized(_ context.Context) error {
	tools := l.Tools
	if len(tools) == 0 {
		tools = DefaultTools
	}
	for _, name := range append([]string{l.shell()}, tools...) {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%w: 找不到 %s", ErrUnauthorized, name)
		}
	}
	if l.RequireProcess != "" && !process.IsRunning(l.RequireProcess) {
		return fmt.Errorf("%w: 进程 %s 未运行", ErrUnauthorized, l.RequireProcess)
	}
	return nil
}

// spawnReader 读取子进程输出，Close 时等待进程退出
type spawnReader struct {
	io.ReadCloser
	cmd     *exec.Cmd
	cmdline string
	stderr  *bytes.Buffer
}

func spawn(cmdline string, cmd *exec.Cmd) (io.ReadCloser, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ExecError{Cmd: cmdline, Err: err}
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, &ExecError{Cmd: cmdline, Err: err}
	}
	return &spawnReader{ReadCloser: stdout, cmd: cmd, cmdline: cmdline, stderr: stderr}, nil
}

func (r *spawnReader) Close() error {
	// 未读完就关闭时进程可能因 SIGPIPE 退出，这种情况按失败处理
	_ = r.ReadCloser.Close()
	if err := r.cmd.Wait(); err != nil {
		return &ExecError{Cmd: r.cmdline, Output: r.stderr.String(), Err: err}
	}
	return nil
}
