package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Sink receives the forwarded event stream. Forward must not block the
// supervisor; implementations drop rather than stall.
type Sink interface {
	Forward(env Envelope)
}

// ChanSink buffers envelopes for an in-process consumer (tests, or a UI
// embedded in the same binary). A full buffer drops the newest envelope
// with a warning; the supervisor is never allowed to back up.
type ChanSink struct {
	ch     chan Envelope
	logger *slog.Logger
}

// NewChanSink builds a sink with the given buffer size.
func NewChanSink(size int, logger *slog.Logger) *ChanSink {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 64
	}
	return &ChanSink{ch: make(chan Envelope, size), logger: logger}
}

// Events is the consumer end.
func (s *ChanSink) Events() <-chan Envelope { return s.ch }

func (s *ChanSink) Forward(env Envelope) {
	select {
	case s.ch <- env:
	default:
		s.logger.Warn("event buffer full, dropping envelope", "worker", env.Worker, "kind", env.Kind)
	}
}

// NATSSink publishes envelopes as JSON for an out-of-process render layer.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSSink connects and returns a publishing sink.
func NewNATSSink(url, subject string, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info("event sink connected", "url", url, "subject", subject)
	return &NATSSink{conn: conn, subject: subject, logger: logger}, nil
}

// Forward publishes the envelope. Publish failures are logged, never fatal:
// the UI stream is best-effort and the device state machine must not depend
// on it.
func (s *NATSSink) Forward(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("marshal envelope", "error", err)
		return
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		s.logger.Warn("publish envelope", "error", err, "worker", env.Worker)
	}
}

// Close drains and closes the connection.
func (s *NATSSink) Close() {
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn("drain NATS connection", "error", err)
	}
}

// MultiSink fans one envelope out to several sinks.
type MultiSink []Sink

func (m MultiSink) Forward(env Envelope) {
	for _, s := range m {
		s.Forward(env)
	}
}
