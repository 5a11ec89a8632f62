package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.LullabyFinished("ready", "fallback")
	m.LullabyFinished("ready", "fallback")
	m.Fallback("missing_identity")
	m.PollCheck("pending")

	assert.Equal(t, 2.0, counterValue(t, m.lullabies.WithLabelValues("ready", "fallback")))
	assert.Equal(t, 1.0, counterValue(t, m.fallbacks.WithLabelValues("missing_identity")))
	assert.Equal(t, 1.0, counterValue(t, m.pollChecks.WithLabelValues("pending")))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LullabyFinished("ready", "primary")
	m.VoiceProfileFinished("ready")
	m.HTTPRequest("GET", "/", "200", time.Millisecond)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.VoiceProfileFinished("ready_degraded")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dodo_voice_profiles_total{result="ready_degraded"} 1`)
}
