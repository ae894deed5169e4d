// Package events publishes hash-computed notifications to NATS so downstream
// consumers (indexers, dedup pipelines) can pick up fresh fingerprints without
// polling the API. Publishing is fire-and-forget from the request's point of
// view: a failed publish is logged, never surfaced to the client.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const hashSubject = "snapmatch.hash.computed"

// HashEvent describes one successfully computed fingerprint.
type HashEvent struct {
	RequestID   string    `json:"request_id"`
	Filename    string    `json:"filename,omitempty"`
	Checksum    string    `json:"checksum"`
	Fingerprint string    `json:"fingerprint"`
	SizeBytes   int64     `json:"size_bytes"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Publisher encapsulates the NATS connection and subject naming.
type Publisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewPublisher dials a NATS cluster.
func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("events: NATS URL is empty")
	}
	conn, err := nats.Connect(url,
		nats.Name("snapmatch-api"),
		nats.ReconnectBufSize(2*1024*1024),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect: %w", err)
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// Close drains and shuts down the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Drain(); err != nil {
			p.logger.Warn("failed to drain nats connection", zap.Error(err))
		}
		p.conn.Close()
	}
}

// PublishHash sends a hash-computed event with standard JSON encoding.
func (p *Publisher) PublishHash(ctx context.Context, ev HashEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.PublishMsg(&nats.Msg{
		Subject: hashSubject,
		Data:    payload,
	})
}
