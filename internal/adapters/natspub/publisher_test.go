package natspub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/pkg/log"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{subject, append([]byte(nil), data...)})
	return f.err
}

func TestPublisher_Subjects(t *testing.T) {
	fake := &fakePublisher{}
	p := New(fake, "cansat", log.NewNoopLogger())

	p.OnRecord(domain.Record{Seq: 3, Raw: "1,a", Values: map[string]domain.Value{"ALT": domain.Number(1)}})
	p.OnRawLine("1,a")
	p.OnDecodeFailure("1", domain.ErrFrameLengthMismatch)
	p.OnCommand(domain.CommandResult{Command: domain.Command{Text: "CMD"}, Status: domain.CommandTimeout, Err: domain.ErrWriteTimeout})
	p.OnSimulationStatus(domain.SimulationStatus{State: domain.SimRunning, Sent: 2})
	p.OnStateChange(domain.StateStarting, domain.StateRunning, "started")

	var subjects []string
	for _, m := range fake.msgs {
		subjects = append(subjects, m.subject)
	}
	assert.Equal(t, []string{
		"cansat.telemetry",
		"cansat.raw",
		"cansat.commands",
		"cansat.simulation",
		"cansat.state",
	}, subjects)

	var rec struct {
		Seq    uint64             `json:"seq"`
		Values map[string]float64 `json:"values"`
	}
	require.NoError(t, json.Unmarshal(fake.msgs[0].data, &rec))
	assert.Equal(t, uint64(3), rec.Seq)
	assert.Equal(t, 1.0, rec.Values["ALT"])

	assert.Equal(t, "1,a", string(fake.msgs[1].data))

	var cmd map[string]interface{}
	require.NoError(t, json.Unmarshal(fake.msgs[2].data, &cmd))
	assert.Equal(t, "timeout", cmd["status"])
	assert.Equal(t, domain.ErrWriteTimeout.Error(), cmd["error"])

	var st map[string]interface{}
	require.NoError(t, json.Unmarshal(fake.msgs[4].data, &st))
	assert.Equal(t, "Starting", st["previous"])
	assert.Equal(t, "Running", st["current"])
}

func TestPublisher_DefaultPrefix(t *testing.T) {
	p := New(&fakePublisher{}, "", log.NewNoopLogger())
	assert.Equal(t, "groundlink.raw", p.Subject("raw"))
}

func TestPublisher_PublishErrorIsContained(t *testing.T) {
	fake := &fakePublisher{err: errors.New("connection closed")}
	p := New(fake, "x", log.NewNoopLogger())

	assert.NotPanics(t, func() { p.OnRawLine("1,a") })
	assert.Len(t, fake.msgs, 1)
	assert.NoError(t, p.Close())
}
