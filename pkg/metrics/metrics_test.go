package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(ContentUploadedTotal)
	ContentUploadedTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ContentUploadedTotal))
}

func TestGatedRequestsTotalLabelsIndependently(t *testing.T) {
	GatedRequestsTotal.WithLabelValues("upload", "success").Inc()
	GatedRequestsTotal.WithLabelValues("upload", "timeout").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(GatedRequestsTotal.WithLabelValues("upload", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(GatedRequestsTotal.WithLabelValues("upload", "timeout")))
}

func TestTimerDurationIsPositive(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.Duration(), time.Duration(0))
}
