package loop

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/auto"
	"github.com/zoeyai/autotap/pkg/capture"
	"github.com/zoeyai/autotap/pkg/config"
	"github.com/zoeyai/autotap/pkg/policy"
	"github.com/zoeyai/autotap/pkg/shell/shelltest"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

func TestMain(m *testing.M) {
	logger.SetDefault(logger.NewNop())
	goleak.VerifyTestMain(m)
}

func screenPNG(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// scriptEngine 第 n 次调用返回 script(n) 的文字
type scriptEngine struct {
	calls  atomic.Int64
	script func(n int) (string, error)
}

func (e *scriptEngine) Recognize(image.Image) ([]ocr.TextBlock, error) {
	n := int(e.calls.Add(1))
	text, err := e.script(n)
	if err != nil {
		return nil, err
	}
	return []ocr.TextBlock{{Text: text}}, nil
}

func constant(text string) *scriptEngine {
	return &scriptEngine{script: func(int) (string, error) { return text, nil }}
}

type harness struct {
	sched      *Scheduler
	dev        *shelltest.Fake
	provider   *capture.Provider
	classifier *ocr.Classifier
	engine     ocr.Engine
}

func newHarness(t *testing.T, engine ocr.Engine) *harness {
	t.Helper()
	dev := shelltest.New(screenPNG(t))
	provider := capture.NewProvider(dev)
	classifier := ocr.NewClassifier(engine, ocr.WithTimeout(2*time.Second))
	h := &harness{
		sched: New(Deps{
			Capturer:   provider,
			Recognizer: classifier,
			Tapper:     auto.NewShellTapper(dev),
			Authorizer: dev,
		}),
		dev:        dev,
		provider:   provider,
		classifier: classifier,
		engine:     engine,
	}
	t.Cleanup(func() {
		h.sched.Close()
		_ = classifier.Wait(context.Background())
	})
	return h
}

func runConfig(interval, pacing time.Duration) config.RunConfig {
	return config.RunConfig{
		Strategy:   int(capture.StrategyFile),
		Interval:   interval,
		Pacing:     pacing,
		CropRatio:  0.3,
		OCRTimeout: 2 * time.Second,
		HaltMarker: policy.DefaultHaltMarker,
		ActMarker:  policy.DefaultActMarker,
	}
}

// recorder 记录通知
type recorder struct {
	mu       sync.Mutex
	statuses []Status
	reports  []Report
	stopped  chan Status
}

func newRecorder() *recorder {
	return &recorder{stopped: make(chan Status, 16)}
}

func (r *recorder) StatusChanged(s Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
	if s.Event == EventStopped {
		r.stopped <- s
	}
}

func (r *recorder) TickCompleted(rep Report) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

func (r *recorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("等待超时: %s", msg)
}

func TestStartRejectedWithoutTarget(t *testing.T) {
	h := newHarness(t, constant("自动"))
	rec := newRecorder()
	h.sched.Subscribe(rec)

	err := h.sched.Start(runConfig(time.Second, 0))
	require.ErrorIs(t, err, ErrTargetUnset)
	assert.Equal(t, Idle, h.sched.State())

	h.sched.Flush()
	statuses := rec.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, EventRejected, statuses[0].Event)
	assert.ErrorIs(t, statuses[0].Err, ErrTargetUnset)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.dev.Commands(), "不应执行任何检测")
	assert.Zero(t, h.sched.Stats().Ticks)
}

func TestStartRejectedUnauthorized(t *testing.T) {
	h := newHarness(t, constant("自动"))
	require.NoError(t, h.sched.SetTarget(auto.Pt(10, 10)))
	h.dev.SetAuthErr(errors.New("shizuku not running"))

	err := h.sched.Start(runConfig(time.Second, 0))
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "shizuku not running")
	assert.Equal(t, Idle, h.sched.State())
	assert.Empty(t, h.sched.RunID())
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	h := newHarness(t, constant("识别中"))
	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))

	require.NoError(t, h.sched.Start(runConfig(time.Hour, 0)))
	id := h.sched.RunID()
	require.NotEmpty(t, id)

	require.NoError(t, h.sched.Start(runConfig(time.Hour, 0)))
	assert.Equal(t, id, h.sched.RunID(), "运行中再次启动不应创建新的运行")
	assert.Equal(t, uint64(1), h.sched.Stats().Runs)

	h.sched.Stop()
}

func TestStopIdempotent(t *testing.T) {
	h := newHarness(t, constant("识别中"))

	h.sched.Stop()
	h.sched.Stop()
	assert.Equal(t, Idle, h.sched.State())

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(20*time.Millisecond, 0)))
	waitFor(t, time.Second, func() bool { return h.sched.Stats().Ticks >= 2 }, "至少执行两次检测")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.sched.Stop()
		}()
	}
	wg.Wait()
	h.sched.Stop()

	assert.Equal(t, Idle, h.sched.State())

	// 停止后不再有检测
	ticks := h.sched.Stats().Ticks
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, ticks, h.sched.Stats().Ticks)
}

func TestSetTargetOnlyWhileIdle(t *testing.T) {
	h := newHarness(t, constant("识别中"))
	rec := newRecorder()
	h.sched.Subscribe(rec)

	require.NoError(t, h.sched.SetTarget(auto.Pt(100, 200)))
	assert.Equal(t, auto.Pt(100, 200), h.sched.Target())

	require.NoError(t, h.sched.Start(runConfig(time.Hour, 0)))
	assert.ErrorIs(t, h.sched.SetTarget(auto.Pt(1, 1)), ErrBusy)
	assert.Equal(t, auto.Pt(100, 200), h.sched.Target())

	h.sched.Stop()
	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))

	h.sched.Flush()
	var events []Event
	for _, s := range rec.Statuses() {
		events = append(events, s.Event)
	}
	assert.Equal(t, []Event{EventTargetSet, EventStarted, EventStopping, EventStopped, EventTargetSet}, events)
}

func TestNoConcurrentTicks(t *testing.T) {
	var active, maxActive atomic.Int32
	engine := ocr.EngineFunc(func(image.Image) ([]ocr.TextBlock, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		return []ocr.TextBlock{{Text: "识别中"}}, nil
	})
	h := newHarness(t, engine)
	rec := newRecorder()
	h.sched.Subscribe(rec)

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	// 间隔小于单次检测耗时，每次都超时
	require.NoError(t, h.sched.Start(runConfig(10*time.Millisecond, 0)))
	waitFor(t, 3*time.Second, func() bool { return h.sched.Stats().Ticks >= 5 }, "执行 5 次检测")
	h.sched.Stop()
	h.sched.Flush()

	assert.Equal(t, int32(1), maxActive.Load())

	// 超时后下一次立即执行，但不会重叠也不会连续触发两次
	reports := rec.Reports()
	require.GreaterOrEqual(t, len(reports), 5)
	for i := 1; i < len(reports); i++ {
		prev, cur := reports[i-1], reports[i]
		assert.Equal(t, prev.Tick+1, cur.Tick)
		assert.False(t, cur.Start.Before(prev.Start.Add(prev.Elapsed)), "第 %d 次检测在上一次结束前开始", cur.Tick)
		assert.Less(t, cur.Start.Sub(prev.Start.Add(prev.Elapsed)), 25*time.Millisecond, "超时后应立即执行")
	}
}

func TestIntervalMeasuredFromTickStart(t *testing.T) {
	engine := ocr.EngineFunc(func(image.Image) ([]ocr.TextBlock, error) {
		time.Sleep(40 * time.Millisecond)
		return []ocr.TextBlock{{Text: "识别中"}}, nil
	})
	h := newHarness(t, engine)
	rec := newRecorder()
	h.sched.Subscribe(rec)

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(150*time.Millisecond, 0)))
	waitFor(t, 3*time.Second, func() bool { return h.sched.Stats().Ticks >= 3 }, "执行 3 次检测")
	h.sched.Stop()
	h.sched.Flush()

	reports := rec.Reports()
	require.GreaterOrEqual(t, len(reports), 3)
	gap := reports[2].Start.Sub(reports[1].Start)
	assert.InDelta(t, float64(150*time.Millisecond), float64(gap), float64(40*time.Millisecond),
		"两次检测开始时间的间隔应为检测间隔, 实际 %v", gap)
}

// 1000 次检测，其中三分之一截图失败，结束后没有残留的截图、区域或文件
func TestNoLeakAcrossManyTicks(t *testing.T) {
	h := newHarness(t, constant("识别中"))

	var shots atomic.Int64
	h.dev.OnExec = func(_ context.Context, cmdline string) error {
		if strings.HasPrefix(cmdline, "screencap") && shots.Add(1)%3 == 0 {
			return errors.New("injected failure")
		}
		return nil
	}

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(0, 0)))
	waitFor(t, 30*time.Second, func() bool { return h.sched.Stats().Ticks >= 1000 }, "执行 1000 次检测")
	h.sched.Stop()

	stats := h.sched.Stats()
	assert.GreaterOrEqual(t, stats.CaptureFailures, uint64(300))
	assert.Zero(t, stats.Acts)
	assert.Zero(t, h.provider.Tracker().LiveCaptures())
	assert.Zero(t, h.provider.Tracker().LiveRegions())
	assert.Zero(t, h.dev.FileCount(), "截图文件应被删除")
}

func TestEndToEnd(t *testing.T) {
	engine := &scriptEngine{script: func(n int) (string, error) {
		if n == 1 {
			return "自动", nil
		}
		return "进行中", nil
	}}
	h := newHarness(t, engine)
	rec := newRecorder()
	h.sched.Subscribe(rec)

	require.NoError(t, h.sched.SetTarget(auto.Pt(500, 800)))
	start := time.Now()
	require.NoError(t, h.sched.Start(runConfig(time.Second, 500*time.Millisecond)))

	var stopped Status
	select {
	case stopped = <-rec.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("应检测到停止标记后自动停止")
	}
	elapsed := time.Since(start)

	assert.Equal(t, StopCompleted, stopped.Reason)
	assert.Equal(t, "stopped: completion detected", stopped.String())
	assert.Equal(t, Idle, h.sched.State())

	taps := h.dev.Taps()
	require.Len(t, taps, 1)
	assert.Equal(t, image.Pt(500, 800), taps[0])

	h.sched.Flush()
	reports := rec.Reports()
	require.Len(t, reports, 2)
	assert.Equal(t, policy.Act, reports[0].Decision)
	assert.True(t, reports[0].Tapped)
	assert.GreaterOrEqual(t, reports[0].Elapsed, 500*time.Millisecond, "点击后应等待")
	assert.Equal(t, policy.Halt, reports[1].Decision)

	gap := reports[1].Start.Sub(reports[0].Start)
	assert.InDelta(t, float64(time.Second), float64(gap), float64(150*time.Millisecond))
	assert.GreaterOrEqual(t, elapsed, time.Second)

	// 不再有后续检测
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(2), engine.calls.Load())

	stats := h.sched.Stats()
	assert.Equal(t, uint64(1), stats.Acts)
	assert.Equal(t, uint64(1), stats.Halts)
}

func TestTapFailureContinues(t *testing.T) {
	h := newHarness(t, constant("自动"))
	h.dev.SetTapErr(errors.New("denied"))

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(5*time.Millisecond, time.Hour)))
	waitFor(t, 2*time.Second, func() bool { return h.sched.Stats().TapFailures >= 3 }, "点击失败后继续检测")
	h.sched.Stop()

	assert.Equal(t, Idle, h.sched.State())
	assert.Zero(t, h.sched.Stats().Acts)
}

func TestRecognitionFailureContinues(t *testing.T) {
	engine := ocr.EngineFunc(func(image.Image) ([]ocr.TextBlock, error) {
		return nil, errors.New("model error")
	})
	h := newHarness(t, engine)

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(5*time.Millisecond, 0)))
	waitFor(t, 2*time.Second, func() bool { return h.sched.Stats().RecognitionFailures >= 3 }, "识别失败后继续检测")
	h.sched.Stop()
	assert.Zero(t, h.dev.FileCount())
}

// panicCapturer 每次截图都崩溃
type panicCapturer struct {
	cleanups atomic.Int64
}

func (p *panicCapturer) Capture(context.Context, capture.Strategy) (*capture.Capture, error) {
	panic("capture exploded")
}

func (p *panicCapturer) Cleanup(context.Context, capture.Strategy) error {
	p.cleanups.Add(1)
	return nil
}

func TestPanicInTickIsContained(t *testing.T) {
	pc := &panicCapturer{}
	s := New(Deps{
		Capturer:   pc,
		Recognizer: ocr.NewClassifier(constant("自动")),
		Tapper:     auto.TapperFunc(func(context.Context, auto.Point) error { return nil }),
	})
	defer s.Close()

	require.NoError(t, s.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, s.Start(runConfig(5*time.Millisecond, 0)))
	waitFor(t, 2*time.Second, func() bool { return s.Stats().Panics >= 3 }, "崩溃后继续检测")

	assert.Equal(t, Running, s.State(), "崩溃不应结束循环")
	s.Stop()
	assert.Equal(t, Idle, s.State())
	assert.GreaterOrEqual(t, pc.cleanups.Load(), int64(3), "崩溃时也应清理截图文件")
}

func TestStopMidTick(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	engine := ocr.EngineFunc(func(image.Image) ([]ocr.TextBlock, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil, nil
	})
	h := newHarness(t, engine)
	defer close(release)

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(time.Second, 0)))
	<-started

	done := make(chan struct{})
	go func() {
		h.sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("识别进行中时停止应立即生效")
	}

	assert.Equal(t, Idle, h.sched.State())
	assert.Zero(t, h.provider.Tracker().Live())
	assert.Zero(t, h.dev.FileCount(), "停止时也应删除截图文件")
	assert.Equal(t, uint64(1), h.sched.Stats().Ticks)
}

func TestStopDuringPacing(t *testing.T) {
	h := newHarness(t, constant("自动"))

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(time.Second, time.Hour)))
	waitFor(t, time.Second, func() bool { return len(h.dev.Taps()) == 1 }, "执行一次点击")

	start := time.Now()
	h.sched.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Idle, h.sched.State())
}

func TestListenerMayStop(t *testing.T) {
	h := newHarness(t, constant("识别中"))

	stopped := make(chan struct{})
	h.sched.Subscribe(ListenerFuncs{
		OnTick: func(r Report) {
			if r.Tick == 2 {
				h.sched.Stop()
				close(stopped)
			}
		},
	})

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(5*time.Millisecond, 0)))

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Listener 内调用 Stop 不应死锁")
	}
	assert.Equal(t, Idle, h.sched.State())
}

func TestRestartAfterHalt(t *testing.T) {
	h := newHarness(t, constant("进行中"))
	rec := newRecorder()
	h.sched.Subscribe(rec)

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	for i := 0; i < 3; i++ {
		require.NoError(t, h.sched.Start(runConfig(time.Second, 0)))
		select {
		case s := <-rec.stopped:
			assert.Equal(t, StopCompleted, s.Reason)
		case <-time.After(2 * time.Second):
			t.Fatal("应自动停止")
		}
		waitFor(t, time.Second, func() bool { return h.sched.State() == Idle }, "回到空闲")
	}
	assert.Equal(t, uint64(3), h.sched.Stats().Runs)
	assert.Equal(t, uint64(3), h.sched.Stats().Halts)
}

func TestProbe(t *testing.T) {
	h := newHarness(t, constant("自动"))

	res, err := h.sched.Probe(context.Background(), runConfig(time.Second, 0))
	require.NoError(t, err)
	assert.Equal(t, policy.Act, res.Decision)
	assert.Equal(t, "自动", res.Text)
	assert.Equal(t, 60, res.Width)
	assert.Equal(t, 100, res.Height)
	require.NotNil(t, res.Region)
	assert.Equal(t, 30, res.Region.Bounds().Dy())

	assert.Empty(t, h.dev.Taps(), "探测不应点击")
	assert.Zero(t, h.dev.FileCount())
	assert.Zero(t, h.provider.Tracker().Live())

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(runConfig(time.Hour, 0)))
	_, err = h.sched.Probe(context.Background(), runConfig(time.Second, 0))
	assert.ErrorIs(t, err, ErrBusy)
	h.sched.Stop()
}

func TestProbeCaptureFailure(t *testing.T) {
	h := newHarness(t, constant("自动"))
	h.dev.SetScreenErr(errors.New("no display"))

	_, err := h.sched.Probe(context.Background(), runConfig(time.Second, 0))
	assert.ErrorIs(t, err, capture.ErrCaptureFailed)
}

func TestPipeStrategyNoCleanup(t *testing.T) {
	h := newHarness(t, constant("识别中"))

	cfg := runConfig(time.Hour, 0)
	cfg.Strategy = int(capture.StrategyPipe)

	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, h.sched.Start(cfg))
	waitFor(t, time.Second, func() bool { return h.sched.Stats().Ticks >= 1 }, "执行一次检测")
	h.sched.Stop()

	for _, c := range h.dev.Commands() {
		assert.NotContains(t, c, "rm -f")
		assert.NotContains(t, c, "mkdir")
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "rejected: 未设置点击位置", Status{Event: EventRejected, Err: ErrTargetUnset}.String())
	assert.Equal(t, "target set (1, 2)", Status{Event: EventTargetSet, Target: auto.Pt(1, 2)}.String())
}

// panicCleanup 删除截图文件时崩溃
type panicCleanup struct {
	*capture.Provider
}

func (panicCleanup) Cleanup(context.Context, capture.Strategy) error {
	panic("cleanup exploded")
}

func TestPanicInCleanupIsContained(t *testing.T) {
	dev := shelltest.New(screenPNG(t))
	provider := capture.NewProvider(dev)
	s := New(Deps{
		Capturer:   panicCleanup{provider},
		Recognizer: ocr.NewClassifier(constant("识别中")),
		Tapper:     auto.NewShellTapper(dev),
	})
	defer s.Close()

	require.NoError(t, s.SetTarget(auto.Pt(1, 1)))
	require.NoError(t, s.Start(runConfig(5*time.Millisecond, 0)))
	waitFor(t, 2*time.Second, func() bool {
		st := s.Stats()
		return st.Ticks >= 3 && st.Panics >= 3
	}, "清理崩溃后继续检测")

	assert.Equal(t, Running, s.State(), "清理崩溃不应结束循环")
	s.Stop()
	assert.Equal(t, Idle, s.State())
	assert.Zero(t, provider.Tracker().Live(), "截图和识别区域仍应释放")
}

// gateAuthorizer 授权检查阻塞到 release 关闭
type gateAuthorizer struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateAuthorizer) Authorized(ctx context.Context) error {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func returnsWithin(t *testing.T, d time.Duration, fn func(), msg string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal(msg)
	}
}

func TestStartDoesNotHoldLockWhileAuthorizing(t *testing.T) {
	dev := shelltest.New(screenPNG(t))
	gate := &gateAuthorizer{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := New(Deps{
		Capturer:   capture.NewProvider(dev),
		Recognizer: ocr.NewClassifier(constant("识别中")),
		Tapper:     auto.NewShellTapper(dev),
		Authorizer: gate,
	})
	defer s.Close()

	require.NoError(t, s.SetTarget(auto.Pt(1, 1)))
	errc := make(chan error, 1)
	go func() { errc <- s.Start(runConfig(time.Hour, 0)) }()
	<-gate.started

	returnsWithin(t, time.Second, func() { assert.Equal(t, Idle, s.State()) }, "检查授权期间查询状态不应阻塞")
	returnsWithin(t, time.Second, s.Stop, "检查授权期间停止不应阻塞")
	returnsWithin(t, time.Second, func() { assert.NoError(t, s.SetTarget(auto.Pt(2, 2))) }, "检查授权期间设置位置不应阻塞")

	close(gate.release)
	require.NoError(t, <-errc)
	assert.Equal(t, Running, s.State())
	assert.Equal(t, auto.Pt(2, 2), s.Target(), "使用最新的点击位置")
	s.Stop()
}

func TestProbeDoesNotHoldLock(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	engine := ocr.EngineFunc(func(image.Image) ([]ocr.TextBlock, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return []ocr.TextBlock{{Text: "识别中"}}, nil
	})
	h := newHarness(t, engine)
	require.NoError(t, h.sched.SetTarget(auto.Pt(1, 1)))

	probec := make(chan error, 1)
	go func() {
		_, err := h.sched.Probe(context.Background(), runConfig(time.Second, 0))
		probec <- err
	}()
	<-started

	returnsWithin(t, time.Second, func() { assert.Equal(t, Idle, h.sched.State()) }, "探测期间查询状态不应阻塞")
	_, err := h.sched.Probe(context.Background(), runConfig(time.Second, 0))
	assert.ErrorIs(t, err, ErrBusy, "同一时间只允许一个探测")

	startc := make(chan error, 1)
	go func() { startc <- h.sched.Start(runConfig(time.Hour, 0)) }()
	select {
	case <-startc:
		t.Fatal("探测结束前不应启动")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-probec)
	require.NoError(t, <-startc)
	assert.Equal(t, Running, h.sched.State())
	h.sched.Stop()
}
