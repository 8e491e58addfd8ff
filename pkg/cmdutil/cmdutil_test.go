package cmdutil

import (
	"context"
	"runtime"
	"testing"
)

func TestCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("需要 sh")
	}
	out, err := Command(context.Background(), "sh", "-c", "echo hello").Output()
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("输出不匹配: %q", out)
	}
}

func TestCommandCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("需要 sh")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Command(ctx, "sh", "-c", "sleep 5").Run(); err == nil {
		t.Error("已取消的上下文应导致执行失败")
	}
}
