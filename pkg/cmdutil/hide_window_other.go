//go:build !windows

package cmdutil

import "os/exec"

// HideWindow 非 Windows 平台为空实现
func HideWindow(_ *exec.Cmd) {}
