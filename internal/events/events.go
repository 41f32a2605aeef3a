// Package events publishes reference data changes so downstream caches and
// indexes can follow the address store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/store"
)

// Type names the change.
type Type string

const (
	Created Type = "created"
	Updated Type = "updated"
	Deleted Type = "deleted"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject.
const DefaultSubjectPrefix = "avs.address"

// Event describes one change to the reference data.
type Event struct {
	ID       string        `json:"id"`
	Type     Type          `json:"type"`
	Time     time.Time     `json:"time"`
	Record   *store.Record `json:"record"`
	Previous *store.Record `json:"previous,omitempty"`
}

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATS publishes events as JSON on <prefix>.<type> subjects.
type NATS struct {
	nc     conn
	prefix string
	logger *zap.Logger
}

// Compile-time check to ensure NATS implements Publisher.
var _ Publisher = (*NATS)(nil)

// Connect dials the NATS server at url.
func Connect(url, prefix string, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("avs"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return newNATS(nc, prefix, logger), nil
}

func newNATS(nc conn, prefix string, logger *zap.Logger) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an event of type t is published on.
func (p *NATS) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish sends e and waits for the server to acknowledge the flush.
func (p *NATS) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	subject := p.Subject(e.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	p.logger.Debug("event published", zap.String("subject", subject), zap.String("event_id", e.ID))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATS) Close() error {
	return p.nc.Drain()
}
