package loop

import (
	"errors"
	"fmt"
	"time"

	"github.com/zoeyai/autotap/pkg/auto"
	"github.com/zoeyai/autotap/pkg/policy"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

// 启动被拒绝的原因
var (
	ErrTargetUnset  = errors.New("未设置点击位置")
	ErrUnauthorized = errors.New("特权通道未授权")
	// ErrBusy 运行中不允许修改
	ErrBusy = errors.New("检测循环正在运行")
)

// State 循环状态
type State int

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event 状态通知的类型
type Event int

const (
	EventStarted Event = iota
	EventStopping
	EventStopped
	// EventRejected 启动被拒绝，状态不变
	EventRejected
	EventTargetSet
)

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventStopping:
		return "stopping"
	case EventStopped:
		return "stopped"
	case EventRejected:
		return "rejected"
	case EventTargetSet:
		return "target-set"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// StopReason 停止原因
type StopReason int

const (
	StopNone StopReason = iota
	// StopRequested 外部调用 Stop
	StopRequested
	// StopCompleted 检测到停止标记
	StopCompleted
)

func (r StopReason) String() string {
	switch r {
	case StopRequested:
		return "requested"
	case StopCompleted:
		return "completion detected"
	default:
		return "none"
	}
}

// Status 状态变化通知
type Status struct {
	Event  Event      `json:"event"`
	State  State      `json:"state"`
	RunID  string     `json:"runId,omitempty"`
	Target auto.Point `json:"target"`
	Reason StopReason `json:"reason,omitempty"`
	// Err 启动被拒绝的原因
	Err  error     `json:"-"`
	Time time.Time `json:"time"`
}

func (s Status) String() string {
	switch s.Event {
	case EventStopped:
		return fmt.Sprintf("stopped: %s", s.Reason)
	case EventRejected:
		return fmt.Sprintf("rejected: %v", s.Err)
	case EventTargetSet:
		return fmt.Sprintf("target set %s", s.Target)
	default:
		return s.Event.String()
	}
}

// Report 单次检测的结果
type Report struct {
	RunID    string          `json:"runId"`
	Tick     uint64          `json:"tick"`
	Decision policy.Decision `json:"decision"`
	Text     string          `json:"text"`
	// CaptureFailed 截图失败或识别区域为空
	CaptureFailed bool `json:"captureFailed"`
	// Failure 识别失败原因
	Failure ocr.Reason    `json:"failure"`
	Tapped  bool          `json:"tapped"`
	Err     error         `json:"-"`
	Elapsed time.Duration `json:"elapsed"`
	Start   time.Time     `json:"start"`
}

// Listener 接收状态和检测结果通知
//
// 通知在单独的 goroutine 中按顺序投递，Listener 内可以调用 Start/Stop。
type Listener interface {
	StatusChanged(Status)
	TickCompleted(Report)
}

// ListenerFuncs 函数形式的 Listener，字段可为空
type ListenerFuncs struct {
	OnStatus func(Status)
	OnTick   func(Report)
}

// StatusChanged 调用 OnStatus
func (l ListenerFuncs) StatusChanged(s Status) {
	if l.OnStatus != nil {
		l.OnStatus(s)
	}
}

// TickCompleted 调用 OnTick
func (l ListenerFuncs) TickCompleted(r Report) {
	if l.OnTick != nil {
		l.OnTick(r)
	}
}
