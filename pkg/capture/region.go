package capture

import (
	"image"
	"sync/atomic"

	"github.com/zoeyai/autotap/pkg/vision"
)

// Tracker 统计存活的截图和识别区域
type Tracker struct {
	captures atomic.Int64
	regions  atomic.Int64
}

// LiveCaptures 未释放的截图数
func (t *Tracker) LiveCaptures() int64 { return t.captures.Load() }

// LiveRegions 未释放的识别区域数
func (t *Tracker) LiveRegions() int64 { return t.regions.Load() }

// Live 未释放的截图和区域总数
func (t *Tracker) Live() int64 { return t.LiveCaptures() + t.LiveRegions() }

// Capture 一次截图，归属于单次检测，结束时必须 Release
type Capture struct {
	Image    image.Image
	Strategy Strategy
	// Path 文件方式的截图路径，管道方式为空
	Path string

	tracker  *Tracker
	released atomic.Bool
}

// Release 释放截图，可重复调用
func (c *Capture) Release() {
	if c == nil || !c.released.CompareAndSwap(false, true) {
		return
	}
	c.Image = nil
	if c.tracker != nil {
		c.tracker.captures.Add(-1)
	}
}

// Crop 裁剪顶部识别区域，截图已释放时返回 nil
func (c *Capture) Crop(ratio float64) *Region {
	if c == nil || c.released.Load() {
		return nil
	}
	img := vision.CropTopBand(c.Image, ratio)
	if img == nil {
		return nil
	}
	if c.tracker != nil {
		c.tracker.regions.Add(1)
	}
	return &Region{Image: img, tracker: c.tracker}
}

// Region 从截图裁剪出的识别区域，拥有独立的像素内存
type Region struct {
	Image *image.RGBA

	tracker  *Tracker
	released atomic.Bool
}

// Release 释放区域，可重复调用
func (r *Region) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	r.Image = nil
	if r.tracker != nil {
		r.tracker.regions.Add(-1)
	}
}
