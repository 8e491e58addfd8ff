// Package auto 点击执行
//
// Executor 持有一个 Tapper，检测循环通过它点击目标位置并在点击后等待。
// ShellTapper 通过特权通道执行 input tap，input 子包提供桌面鼠标点击。
package auto

import "fmt"

// Point 点击目标位置，创建后不再修改
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Unset 未设置的目标位置
var Unset = Point{X: -1, Y: -1}

// Pt 创建 Point
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// Valid 两个坐标都不小于 0
func (p Point) Valid() bool {
	return p.X >= 0 && p.Y >= 0
}

// Within 是否在 width x height 的屏幕内
func (p Point) Within(width, height int) bool {
	return p.Valid() && p.X < width && p.Y < height
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}
