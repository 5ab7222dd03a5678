package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/flywheeld/internal/feedback"
)

// SaveFeedback inserts one feedback entry.
func (s *Store) SaveFeedback(ctx context.Context, e *feedback.Entry) error {
	suggestions, err := json.Marshal(e.Suggestions)
	if err != nil {
		return fmt.Errorf("encoding suggestions: %w", err)
	}
	extra, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("encoding context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, interaction_id, user_id, kind, satisfaction, note, suggestions_json, context_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.InteractionID, e.UserID, string(e.Kind), e.Satisfaction,
		e.Note, string(suggestions), string(extra), encodeTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting feedback %s: %w", e.ID, err)
	}
	return nil
}

// FeedbackCount returns the number of stored feedback entries.
func (s *Store) FeedbackCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting feedback: %w", err)
	}
	return n, nil
}
