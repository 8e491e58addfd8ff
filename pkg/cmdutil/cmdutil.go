// Package cmdutil 外部命令的构造工具
package cmdutil

import (
	"context"
	"os/exec"
	"time"
)

// WaitDelay 上下文取消后等待输出管道关闭的时长
const WaitDelay = 2 * time.Second

// Command 创建绑定上下文的外部命令
//
// 上下文取消时进程被杀死；Windows 上不弹出控制台窗口。
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = WaitDelay
	HideWindow(cmd)
	return cmd
}
