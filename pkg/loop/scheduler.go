// Package loop 检测循环
//
// Scheduler 驱动 截图 → 裁剪 → 识别 → 决策 →（点击+等待 | 停止 | 等待）的循环。
// 每次运行只有一个 worker goroutine，检测严格串行执行，下一次检测在上一次
// 完成清理后才会被安排。
package loop

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/auto"
	"github.com/zoeyai/autotap/pkg/capture"
	"github.com/zoeyai/autotap/pkg/config"
	"github.com/zoeyai/autotap/pkg/policy"
	"github.com/zoeyai/autotap/pkg/shell"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

// authorizeTimeout 启动时检查授权的等待上限
const authorizeTimeout = 5 * time.Second

// cleanupTimeout 删除截图文件的等待上限，运行已取消时也会执行
const cleanupTimeout = 3 * time.Second

// Capturer 截图
type Capturer interface {
	Capture(ctx context.Context, strategy capture.Strategy) (*capture.Capture, error)
	Cleanup(ctx context.Context, strategy capture.Strategy) error
}

// Recognizer 带超时的文字识别
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ocr.Result
}

// Deps Scheduler 的依赖
type Deps struct {
	Capturer   Capturer
	Recognizer Recognizer
	Tapper     auto.Tapper
	Authorizer shell.Authorizer
}

// run 一次运行的上下文，Start 时创建，运行期间不变
type run struct {
	id     string
	cfg    config.RunConfig
	target auto.Point
	policy policy.Policy
	exec   *auto.Executor
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	tick   uint64
	reason StopReason
}

// Scheduler 检测循环调度器
type Scheduler struct {
	deps Deps

	mu     sync.Mutex
	state  State
	target auto.Point
	cur    *run

	// probing 进行中的探测，结束时关闭
	probing chan struct{}

	stats    stats
	notifier *notifier
	closed   bool
}

// New 创建调度器
func New(deps Deps) *Scheduler {
	return &Scheduler{
		deps:     deps,
		target:   auto.Unset,
		notifier: newNotifier(),
	}
}

// State 当前状态
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Target 当前点击位置
func (s *Scheduler) Target() auto.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// RunID 当前运行的 ID，空闲时为空
func (s *Scheduler) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ""
	}
	return s.cur.id
}

// Subscribe 注册通知，返回取消函数
func (s *Scheduler) Subscribe(l Listener) (cancel func()) {
	return s.notifier.subscribe(l)
}

// Flush 等待已发出的通知投递完，不能在 Listener 内调用
func (s *Scheduler) Flush() {
	s.notifier.flush()
}

// SetTarget 设置点击位置，仅空闲时允许
func (s *Scheduler) SetTarget(p auto.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return ErrBusy
	}
	s.target = p
	s.publishStatus(Status{Event: EventTargetSet, State: s.state, Target: p})
	logger.Info("点击位置已设置: %s", p)
	return nil
}

// Start 开始检测循环
//
// 未设置点击位置或通道未授权时返回错误，状态不变。运行中调用无效果；
// 正在停止或正在探测时等待其结束后再启动。检查授权期间不持有锁。
func (s *Scheduler) Start(cfg config.RunConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	authorized := s.deps.Authorizer == nil
	for {
		s.waitSettled()
		if s.closed {
			return fmt.Errorf("调度器已关闭")
		}
		if s.state == Running {
			return nil
		}
		if !s.target.Valid() {
			return s.reject(ErrTargetUnset)
		}
		if authorized {
			break
		}

		s.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
		err := s.deps.Authorizer.Authorized(ctx)
		cancel()
		s.mu.Lock()
		if err != nil {
			return s.reject(fmt.Errorf("%w: %w", ErrUnauthorized, err))
		}
		// 解锁期间状态可能已变化，重新检查
		authorized = true
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     id,
		cfg:    cfg,
		target: s.target,
		policy: policy.New(cfg.HaltMarker, cfg.ActMarker),
		exec:   auto.NewExecutor(s.deps.Tapper, auto.WithPacing(cfg.Pacing)),
		log:    logger.L().With(zap.String("run_id", id)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.cur = r
	s.state = Running
	s.stats.runs.Add(1)

	r.log.Info("检测循环已启动",
		zap.Stringer("target", r.target),
		zap.Int("strategy", cfg.Strategy),
		zap.Duration("interval", cfg.Interval),
		zap.Duration("pacing", cfg.Pacing))
	s.publishStatus(Status{Event: EventStarted, State: Running, RunID: id, Target: r.target})

	go s.work(r)
	return nil
}

// waitSettled 等待正在停止的运行和进行中的探测结束，调用时持有 s.mu
func (s *Scheduler) waitSettled() {
	for {
		var done <-chan struct{}
		switch {
		case s.state == Stopping && s.cur != nil:
			done = s.cur.done
		case s.probing != nil:
			done = s.probing
		default:
			return
		}
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}
}

func (s *Scheduler) reject(err error) error {
	logger.Warn("拒绝启动: %v", err)
	s.publishStatus(Status{Event: EventRejected, State: s.state, Target: s.target, Err: err})
	return err
}

// Stop 停止检测循环并等待 worker 退出，空闲时无效果，可并发调用
func (s *Scheduler) Stop() {
	s.mu.Lock()
	r := s.cur
	if r == nil {
		s.mu.Unlock()
		return
	}
	if s.state == Running {
		r.reason = StopRequested
		s.state = Stopping
		s.publishStatus(Status{Event: EventStopping, State: Stopping, RunID: r.id, Target: r.target, Reason: StopRequested})
	}
	s.mu.Unlock()

	r.cancel()
	<-r.done
}

// Close 停止循环并关闭通知 goroutine
func (s *Scheduler) Close() {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notifier.close()
}

// Stats 计数快照
func (s *Scheduler) Stats() Stats {
	return s.stats.snapshot()
}

// work 一次运行的 worker
func (s *Scheduler) work(r *run) {
	defer s.finish(r)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
		}
		if r.ctx.Err() != nil {
			return
		}

		start := time.Now()
		if halt := s.tick(r, start); halt {
			s.halt(r)
			return
		}

		// 取消后不再安排下一次
		if r.ctx.Err() != nil {
			return
		}
		wait := r.cfg.Interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (s *Scheduler) halt(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != r || s.state != Running {
		return
	}
	r.reason = StopCompleted
	s.state = Stopping
	s.publishStatus(Status{Event: EventStopping, State: Stopping, RunID: r.id, Target: r.target, Reason: StopCompleted})
}

// finish worker 退出时调用：状态回到 Idle 并通知
func (s *Scheduler) finish(r *run) {
	r.cancel()

	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
		s.state = Idle
	}
	reason := r.reason
	if reason == StopNone {
		reason = StopRequested
	}
	s.publishStatus(Status{Event: EventStopped, State: Idle, RunID: r.id, Target: r.target, Reason: reason})
	s.mu.Unlock()

	r.log.Info("检测循环已停止", zap.Stringer("reason", reason), zap.Uint64("ticks", r.tick))
	close(r.done)
}

func (s *Scheduler) publishStatus(st Status) {
	st.Time = time.Now()
	s.notifier.publish(event{status: &st})
}

func (s *Scheduler) publishReport(rep Report) {
	s.notifier.publish(event{report: &rep})
}
