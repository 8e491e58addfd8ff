package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoeyai/autotap/pkg/loop"
	"github.com/zoeyai/autotap/pkg/policy"
	"github.com/zoeyai/autotap/pkg/process"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

func TestStatusChanged(t *testing.T) {
	c := New()

	c.StatusChanged(loop.Status{Event: loop.EventStarted})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs))

	c.StatusChanged(loop.Status{Event: loop.EventStopped, Reason: loop.StopCompleted})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stops.WithLabelValues("completion detected")))

	c.StatusChanged(loop.Status{Event: loop.EventRejected})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stops.WithLabelValues("rejected")))
}

func TestTickCompleted(t *testing.T) {
	c := New()

	c.TickCompleted(loop.Report{Decision: policy.Act, Tapped: true, Elapsed: 20 * time.Millisecond})
	c.TickCompleted(loop.Report{Decision: policy.Act, Tapped: false})
	c.TickCompleted(loop.Report{Decision: policy.Wait, CaptureFailed: true})
	c.TickCompleted(loop.Report{Decision: policy.Wait, Failure: ocr.ReasonTimeout})
	c.TickCompleted(loop.Report{Decision: policy.Halt})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ticks.WithLabelValues("ACT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ticks.WithLabelValues("WAIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ticks.WithLabelValues("HALT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.taps.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.taps.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("capture", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("recognize", "timeout")))
}

func TestHandler(t *testing.T) {
	c := New()
	c.TickCompleted(loop.Report{Decision: policy.Wait})

	self, err := process.NewSelf()
	require.NoError(t, err)
	require.NoError(t, c.SampleProcess(self))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `autotap_ticks_total{decision="WAIT"} 1`), body)
	assert.Contains(t, body, "autotap_memory_usage_bytes")
	assert.Greater(t, testutil.ToFloat64(c.memUsage), 0.0)
}
