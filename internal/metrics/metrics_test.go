package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
)

var _ ports.EventSink = (*Metrics)(nil)

func TestMetrics_Telemetry(t *testing.T) {
	m := New(nil)

	m.OnRawLine("1,a")
	m.OnRawLine("bad")
	m.OnDecodeFailure("bad", domain.ErrFrameLengthMismatch)
	m.OnRecord(domain.Record{ParseFailures: []string{"ALT"}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldParseFailures.WithLabelValues("ALT")))
}

func TestMetrics_Commands(t *testing.T) {
	m := New(nil)

	m.OnCommand(domain.CommandResult{Command: domain.Command{Source: domain.SourceOperator}, Status: domain.CommandSent})
	m.OnCommand(domain.CommandResult{Command: domain.Command{Source: domain.SourceOperator}, Status: domain.CommandSent})
	m.OnCommand(domain.CommandResult{Command: domain.Command{Source: domain.SourceSimulation}, Status: domain.CommandDropped})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("sent", "operator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("dropped", "simulation")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommandDuration))
}

func TestMetrics_StateAndSimulation(t *testing.T) {
	m := New(nil)

	m.OnStateChange(domain.StateStarting, domain.StateRunning, "")
	m.OnSimulationStatus(domain.SimulationStatus{State: domain.SimRunning, Sent: 4})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StationState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SimulationRunning))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SimulationSent))

	m.OnSimulationStatus(domain.SimulationStatus{State: domain.SimCompleted, Sent: 4})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SimulationRunning))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(func() float64 { return 7 })
	m.OnRawLine("x")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "groundlink_telemetry_frames_received_total 1"))
	assert.True(t, strings.Contains(body, "groundlink_commands_queue_depth 7"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
