package loop

import (
	"sync/atomic"

	"github.com/zoeyai/autotap/pkg/policy"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

// Stats 调度器累计计数
type Stats struct {
	Runs                uint64 `json:"runs"`
	Ticks               uint64 `json:"ticks"`
	Acts                uint64 `json:"acts"`
	TapFailures         uint64 `json:"tapFailures"`
	Halts               uint64 `json:"halts"`
	Waits               uint64 `json:"waits"`
	CaptureFailures     uint64 `json:"captureFailures"`
	RecognitionFailures uint64 `json:"recognitionFailures"`
	Panics              uint64 `json:"panics"`
}

type stats struct {
	runs                atomic.Uint64
	ticks               atomic.Uint64
	acts                atomic.Uint64
	tapFailures         atomic.Uint64
	halts               atomic.Uint64
	waits               atomic.Uint64
	captureFailures     atomic.Uint64
	recognitionFailures atomic.Uint64
	panics              atomic.Uint64
}

func (s *stats) record(rep Report) {
	s.ticks.Add(1)
	switch rep.Decision {
	case policy.Act:
		if rep.Tapped {
			s.acts.Add(1)
		} else {
			s.tapFailures.Add(1)
		}
	case policy.Halt:
		s.halts.Add(1)
	default:
		s.waits.Add(1)
	}
	if rep.CaptureFailed {
		s.captureFailures.Add(1)
	}
	if rep.Failure != ocr.ReasonNone {
		s.recognitionFailures.Add(1)
	}
}

func (s *stats) snapshot() Stats {
	return Stats{
		Runs:                s.runs.Load(),
		Ticks:               s.ticks.Load(),
		Acts:                s.acts.Load(),
		TapFailures:         s.tapFailures.Load(),
		Halts:               s.halts.Load(),
		Waits:               s.waits.Load(),
		CaptureFailures:     s.captureFailures.Load(),
		RecognitionFailures: s.recognitionFailures.Load(),
		Panics:              s.panics.Load(),
	}
}
