// Package audit provides the AuditSink interface and a NATS-backed default
// implementation for recording tool-protocol events (rate-limit violations,
// sandbox executions, relationship mutations) per SPEC_FULL.md §4.
//
// Grounded on ODSapper-CLIAIRMONITOR's internal/nats.Client (reconnect
// handling, PublishJSON convenience method, github.com/nats-io/nats.go
// client options), adapted from a request/reply message bus into a
// fire-and-forget event sink backed by an embedded
// github.com/nats-io/nats-server/v2 server and a bounded buffered channel
// with drop-oldest backpressure, so a slow or unavailable broker never
// blocks the caller issuing the event.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	nc "github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

// Event is one audited occurrence.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ClientID  string         `json:"client_id,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink records audit events. Log must never block the caller for long;
// implementations drop events under backpressure rather than stall request
// handling.
type Sink interface {
	Log(ctx context.Context, ev Event)
	Close() error
}

// NoopSink discards every event. Matches the teacher's convention of
// trivial fakes for optional integrations (internal/testutil) — used in
// tests and whenever audit.nats_url is unset.
type NoopSink struct{}

func (NoopSink) Log(context.Context, Event) {}
func (NoopSink) Close() error                { return nil }

// NATSSink publishes events as JSON to a fixed subject over a NATS
// connection, buffering through a bounded channel so Log never blocks: when
// the channel is full, the oldest buffered event is dropped to make room
// for the new one.
type NATSSink struct {
	conn    *nc.Conn
	subject string
	logger  *slog.Logger

	mu      sync.Mutex
	buf     chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped uint64
}

const defaultSubject = "episodic.audit"

// NewNATSSink connects to url and starts the background publisher. It does
// not start a server itself; EmbeddedServer provides one for local use.
// bufferSize bounds the in-flight event queue.
func NewNATSSink(url string, bufferSize int, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	conn, err := nc.Connect(url,
		nc.Name("episodic-memory-audit"),
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				logger.Warn("audit sink disconnected", "error", err)
			}
		}),
		nc.ReconnectHandler(func(c *nc.Conn) {
			logger.Info("audit sink reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("audit: connect to NATS: %w", err)
	}

	s := &NATSSink{
		conn:    conn,
		subject: defaultSubject,
		logger:  logger,
		buf:     make(chan Event, bufferSize),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// EmbeddedServer starts an in-process NATS server for local/dev use,
// returning its client URL. Callers pass the URL to NewNATSSink.
func EmbeddedServer() (*natsserver.Server, string, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // random free port
		NoLog:  true,
		NoSigs: true,
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, "", fmt.Errorf("audit: start embedded NATS server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, "", fmt.Errorf("audit: embedded NATS server did not become ready")
	}
	return srv, srv.ClientURL(), nil
}

// Log enqueues ev for publication. If the buffer is full, the oldest queued
// event is dropped to make room — the audit trail favors recency over
// completeness under load.
func (s *NATSSink) Log(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if dropped := enqueueDropOldest(s.buf, ev); dropped {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// enqueueDropOldest pushes ev onto buf, dropping the oldest queued item
// first if buf is full. Returns whether an item was dropped. Factored out
// of NATSSink.Log so the backpressure policy is unit-testable without a
// live NATS connection.
func enqueueDropOldest(buf chan Event, ev Event) (dropped bool) {
	select {
	case buf <- ev:
		return false
	default:
	}
	select {
	case <-buf:
		dropped = true
	default:
	}
	select {
	case buf <- ev:
	default:
		// Lost a race with another producer; drop this event too rather
		// than block the caller.
		dropped = true
	}
	return dropped
}

// Dropped returns the number of events dropped to backpressure so far.
func (s *NATSSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *NATSSink) run() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.buf:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("audit: marshal event failed", "error", err)
				continue
			}
			if err := s.conn.Publish(s.subject, data); err != nil {
				s.logger.Warn("audit: publish failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

// Close drains no further events, flushes the connection, and disconnects.
func (s *NATSSink) Close() error {
	close(s.done)
	s.wg.Wait()
	if err := s.conn.Flush(); err != nil {
		s.logger.Warn("audit: flush on close failed", "error", err)
	}
	s.conn.Close()
	return nil
}
