package shell

import (
	"context"
	"errors"
	"regexp"
	"strconv"
)

// 读取失败时使用的默认屏幕尺寸
const (
	DefaultScreenWidth  = 1080
	DefaultScreenHeight = 2400
)

var errUnparsable = errors.New("无法解析输出")

var physicalSizeRe = regexp.MustCompile(`Physical size:\s*(\d+)x(\d+)`)

// ParseScreenSize 解析 `wm size` 的输出，格式: Physical size: 1080x2400
func ParseScreenSize(out string) (width, height int, ok bool) {
	m := physicalSizeRe.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(m[1])
	h, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// ScreenSize 查询屏幕物理尺寸
//
// 命令失败或无法解析时返回 1080x2400 和错误，调用方可以只用尺寸。
func ScreenSize(ctx context.Context, ch Channel) (width, height int, err error) {
	out, err := ch.Exec(ctx, "wm size")
	if err != nil {
		return DefaultScreenWidth, DefaultScreenHeight, err
	}
	w, h, ok := ParseScreenSize(out)
	if !ok {
		return DefaultScreenWidth, DefaultScreenHeight, &ExecError{Cmd: "wm size", Output: out, Err: errUnparsable}
	}
	return w, h, nil
}
