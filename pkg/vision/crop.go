// Package vision 图像区域处理
package vision

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// DefaultBandRatio 顶部识别区域默认占屏幕高度的比例
const DefaultBandRatio = 0.3

// BandHeight 计算顶部区域高度
//
// 比例不在 (0, 1] 内时使用 0.3；算出的高度不大于 0 时取 H/3；
// 结果总在 (0, H] 内（H > 0 时）。
func BandHeight(h int, ratio float64) int {
	if h <= 0 {
		return 0
	}
	if math.IsNaN(ratio) || ratio <= 0 || ratio > 1 {
		ratio = DefaultBandRatio
	}
	band := int(math.Floor(float64(h) * ratio))
	if band <= 0 {
		band = h / 3
	}
	if band <= 0 {
		band = h
	}
	if band > h {
		band = h
	}
	return band
}

// CropTopBand 裁剪图像顶部整宽的区域
//
// 图像为空时返回 nil。
func CropTopBand(img image.Image, ratio float64) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	band := BandHeight(b.Dy(), ratio)
	if band == 0 || b.Dx() <= 0 {
		return nil
	}
	return Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+band))
}

// Crop 裁剪指定区域并复制到新的 RGBA 图像，区域超出边界时被截断
//
// 与图像没有交集时返回 nil。
func Crop(img image.Image, rect image.Rectangle) *image.RGBA {
	if img == nil {
		return nil
	}
	r := rect.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(out, image.Point{}, img, r, draw.Src, nil)
	return out
}
