package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestRegisterIdempotent(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	require.NoError(t, Register(prometheus.DefaultRegisterer))
}

func TestHelpersRecord(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	IncStart("service", "apache")
	IncStart("service", "apache")
	assert.Equal(t, 2.0, value(t, starts.WithLabelValues("service", "apache")))

	RecordTransition("service", "mariadb", "stopped", "running")
	assert.Equal(t, 1.0, value(t, currentStates.WithLabelValues("service", "mariadb", "running")))
	RecordTransition("service", "mariadb", "running", "stopped")
	assert.Equal(t, 0.0, value(t, currentStates.WithLabelValues("service", "mariadb", "running")))
	assert.Equal(t, 1.0, value(t, currentStates.WithLabelValues("service", "mariadb", "stopped")))
}

func TestEchoServesMetrics(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	IncAdoption("php")
	e := NewEcho()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "devstack_service_adoptions_total"))
}

func TestSampleSelf(t *testing.T) {
	got := Sample(map[string]int{"self": os.Getpid(), "gone": 0})
	require.Len(t, got, 1)
	assert.Equal(t, "self", got[0].ID)
	assert.Greater(t, got[0].MemoryMB, 0.0)
}
