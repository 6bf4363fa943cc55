// Package natspub republishes station events on a NATS bus.
//
// Subjects, under a configurable prefix:
//
//	<prefix>.telemetry   decoded records (JSON)
//	<prefix>.raw         every received frame (raw bytes)
//	<prefix>.commands    command outcomes (JSON)
//	<prefix>.simulation  replay status (JSON)
//	<prefix>.state       lifecycle transitions (JSON)
package natspub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// DefaultPrefix is the subject root when none is configured.
const DefaultPrefix = "groundlink"

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Prefix        string
	ClientName    string
	ReconnectWait time.Duration
}

// publisher is the part of *nats.Conn the sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher implements ports.EventSink by publishing to NATS.
// nats.Conn buffers publishes, so callbacks do not wait on the network.
type Publisher struct {
	ports.NopSink

	pub    publisher
	conn   *nats.Conn
	prefix string
	logger log.Logger
}

// Connect dials the server and returns a publisher that owns the connection.
func Connect(config Config, logger log.Logger) (*Publisher, error) {
	if config.ClientName == "" {
		config.ClientName = "groundlink"
	}
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = 2 * time.Second
	}

	conn, err := nats.Connect(config.URL,
		nats.Name(config.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", log.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", log.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", config.URL, err)
	}

	p := New(conn, config.Prefix, logger)
	p.conn = conn
	logger.Info("nats publisher connected", log.String("url", config.URL), log.String("prefix", p.prefix))
	return p, nil
}

// New wraps an existing publisher.
func New(pub publisher, prefix string, logger log.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{pub: pub, prefix: prefix, logger: logger}
}

// Subject returns the full subject for kind.
func (p *Publisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

func (p *Publisher) publish(kind string, data []byte) {
	if err := p.pub.Publish(p.Subject(kind), data); err != nil {
		p.logger.Debug("nats publish failed", log.String("subject", p.Subject(kind)), log.Err(err))
	}
}

func (p *Publisher) publishJSON(kind string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("encode event", log.String("kind", kind), log.Err(err))
		return
	}
	p.publish(kind, data)
}

func (p *Publisher) OnRecord(rec domain.Record) {
	p.publishJSON("telemetry", rec)
}

func (p *Publisher) OnRawLine(line string) {
	p.publish("raw", []byte(line))
}

func (p *Publisher) OnCommand(res domain.CommandResult) {
	p.publishJSON("commands", commandEvent{CommandResult: res, Error: errString(res.Err)})
}

func (p *Publisher) OnSimulationStatus(status domain.SimulationStatus) {
	p.publishJSON("simulation", status)
}

func (p *Publisher) OnStateChange(previous, current domain.State, reason string) {
	p.publishJSON("state", stateEvent{Previous: previous, Current: current, Reason: reason})
}

// Close drains the connection when the publisher owns one.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

type commandEvent struct {
	domain.CommandResult
	Error string `json:"error,omitempty"`
}

type stateEvent struct {
	Previous domain.State `json:"previous"`
	Current  domain.State `json:"current"`
	Reason   string       `json:"reason,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
