package loop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/zoeyai/autotap/pkg/capture"
	"github.com/zoeyai/autotap/pkg/config"
	"github.com/zoeyai/autotap/pkg/policy"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

var errEmptyRegion = errors.New("识别区域为空")

// tick 执行一次检测，返回是否检测到停止标记
//
// 截图和识别区域在任何路径上都会被释放，文件方式的截图文件也会被删除，
// 包括崩溃的情况。崩溃按 WAIT 处理。
func (s *Scheduler) tick(r *run, start time.Time) (halt bool) {
	r.tick++
	rep := Report{RunID: r.id, Tick: r.tick, Decision: policy.Wait, Start: start}

	var (
		shot   *capture.Capture
		region *capture.Region
	)
	defer func() {
		if p := recover(); p != nil {
			s.stats.panics.Add(1)
			r.log.Error("检测过程崩溃", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			halt = false
			rep.Decision = policy.Wait
			rep.Tapped = false
			rep.Err = fmt.Errorf("panic: %v", p)
		}

		s.release(r, shot, region)

		rep.Elapsed = time.Since(start)
		s.stats.record(rep)
		s.publishReport(rep)

		r.log.Debug("检测完成",
			zap.Uint64("tick", rep.Tick),
			zap.Stringer("decision", rep.Decision),
			zap.String("text", rep.Text),
			zap.Bool("tapped", rep.Tapped),
			zap.Duration("elapsed", rep.Elapsed),
			zap.Error(rep.Err))
	}()

	var err error
	shot, err = s.deps.Capturer.Capture(r.ctx, capture.Strategy(r.cfg.Strategy))
	if err != nil {
		rep.CaptureFailed = true
		rep.Err = err
		return false
	}

	region = shot.Crop(r.cfg.CropRatio)
	if region == nil {
		rep.CaptureFailed = true
		rep.Err = errEmptyRegion
		return false
	}

	res := s.recognize(r.ctx, r.cfg, region.Image)
	if !res.OK() {
		rep.Failure = res.Reason
		rep.Err = res.Err
		return false
	}
	rep.Text = res.Text

	rep.Decision = r.policy.Decide(res.Text)
	switch rep.Decision {
	case policy.Act:
		rep.Tapped = r.exec.Act(r.ctx, r.target)
		if rep.Tapped {
			// 点击成功后才等待
			if err := r.exec.Pace(r.ctx); err != nil {
				r.log.Debug("点击后等待被中断", zap.Error(err))
			}
		}
	case policy.Halt:
		r.log.Info("检测到停止标记", zap.String("text", res.Text))
		return true
	}
	return false
}

// release 释放截图和识别区域并删除截图文件，清理过程中的崩溃只记录
func (s *Scheduler) release(r *run, shot *capture.Capture, region *capture.Region) {
	defer func() {
		if p := recover(); p != nil {
			s.stats.panics.Add(1)
			r.log.Error("清理截图时崩溃", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
		}
	}()

	region.Release()
	shot.Release()
	if strategy := capture.Strategy(r.cfg.Strategy); strategy == capture.StrategyFile {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), cleanupTimeout)
		defer cancel()
		if err := s.deps.Capturer.Cleanup(ctx, strategy); err != nil {
			r.log.Debug("删除截图文件失败", zap.Error(err))
		}
	}
}

func (s *Scheduler) recognize(ctx context.Context, cfg config.RunConfig, img image.Image) ocr.Result {
	if cfg.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.OCRTimeout)
		defer cancel()
	}
	return s.deps.Recognizer.Recognize(ctx, img)
}

// ProbeResult 单次检测的结果，不点击
type ProbeResult struct {
	Decision policy.Decision
	Text     string
	Failure  ocr.Reason
	// Region 识别区域的像素副本
	Region *image.RGBA
	// Width/Height 整个截图的尺寸
	Width  int
	Height int
}

// Probe 空闲时执行一次截图、裁剪、识别和决策，不点击
//
// 运行中或已有探测进行时返回 ErrBusy。探测期间不持有锁，Start 会等待探测结束。
func (s *Scheduler) Probe(ctx context.Context, cfg config.RunConfig) (*ProbeResult, error) {
	s.mu.Lock()
	if s.state != Idle || s.probing != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	done := make(chan struct{})
	s.probing = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.probing = nil
		s.mu.Unlock()
		close(done)
	}()
	return s.probe(ctx, cfg)
}

func (s *Scheduler) probe(ctx context.Context, cfg config.RunConfig) (*ProbeResult, error) {
	strategy := capture.Strategy(cfg.Strategy)
	defer func() {
		if strategy == capture.StrategyFile {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
			_ = s.deps.Capturer.Cleanup(cctx, strategy)
			cancel()
		}
	}()

	shot, err := s.deps.Capturer.Capture(ctx, strategy)
	if err != nil {
		return nil, err
	}
	defer shot.Release()

	b := shot.Image.Bounds()
	result := &ProbeResult{Width: b.Dx(), Height: b.Dy(), Decision: policy.Wait}

	region := shot.Crop(cfg.CropRatio)
	if region == nil {
		return nil, errEmptyRegion
	}
	defer region.Release()
	result.Region = region.Image

	res := s.recognize(ctx, cfg, region.Image)
	if !res.OK() {
		result.Failure = res.Reason
		return result, nil
	}
	result.Text = res.Text
	result.Decision = policy.New(cfg.HaltMarker, cfg.ActMarker).Decide(res.Text)
	return result, nil
}
