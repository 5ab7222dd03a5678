// Package events publishes action lifecycle events to NATS so external
// systems can react to flywheel decisions without polling the API.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
)

// Action lifecycle event names.
const (
	EventEnqueued  = "enqueued"
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

const subjectPrefix = "flywheel.actions"

// Subject returns the NATS subject for one action event:
// flywheel.actions.<action id>.<event>.
func Subject(actionID, event string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, actionID, event)
}

// Publisher emits action events to NATS. A nil *Publisher is valid and
// publishes nothing, so callers need no guards when eventing is
// disabled.
type Publisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewPublisher wraps an established NATS connection. The connection's
// lifecycle stays with the caller.
func NewPublisher(conn *nats.Conn, logger *zap.Logger) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// envelope is the JSON payload published for every event.
type envelope struct {
	Event     string         `json:"event"`
	Action    *action.Action `json:"action"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// ActionEvent publishes one lifecycle event. Publish failures are
// logged and dropped; eventing is advisory and never blocks the
// pipeline.
func (p *Publisher) ActionEvent(_ context.Context, act *action.Action, event string) {
	if p == nil || p.conn == nil || act == nil {
		return
	}

	payload, err := json.Marshal(envelope{
		Event:     event,
		Action:    act,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("encoding action event", zap.Error(err))
		return
	}

	subject := Subject(act.ID, event)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publishing action event",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	p.logger.Debug("action event published", zap.String("subject", subject))
}
