package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/flywheeld/internal/insight"
)

// SaveInteraction inserts one interaction record.
func (s *Store) SaveInteraction(ctx context.Context, r *insight.InteractionRecord) error {
	quality, err := json.Marshal(r.QualityScores)
	if err != nil {
		return fmt.Errorf("encoding quality scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, session_id, kind, query, response_summary, processing_time_ms, tokens_used, model_version, quality_json, error_detail, feedback_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.SessionID, r.Kind, r.Query, r.ResponseSummary,
		r.ProcessingTimeMs, r.TokensUsed, r.ModelVersion, string(quality),
		r.ErrorDetail, r.FeedbackID, encodeTime(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting interaction %s: %w", r.ID, err)
	}
	return nil
}

// LinkFeedback attaches a feedback entry to an interaction. Missing
// interactions are not an error; feedback can reference interactions
// this instance never logged.
func (s *Store) LinkFeedback(ctx context.Context, interactionID, feedbackID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE interactions SET feedback_id = ? WHERE id = ?`,
		feedbackID, interactionID,
	)
	if err != nil {
		return fmt.Errorf("linking feedback %s to interaction %s: %w", feedbackID, interactionID, err)
	}
	return nil
}

// InteractionsSince returns interactions logged at or after the cutoff,
// oldest first, with satisfaction joined in from linked feedback. A zero
// cutoff returns everything.
func (s *Store) InteractionsSince(ctx context.Context, since time.Time) ([]*insight.InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.user_id, i.session_id, i.kind, i.query, i.response_summary,
			i.processing_time_ms, i.tokens_used, i.model_version, i.quality_json,
			i.error_detail, i.feedback_id, i.created_at, f.satisfaction
		FROM interactions i
		LEFT JOIN feedback f ON f.id = i.feedback_id
		WHERE i.created_at >= ?
		ORDER BY i.created_at ASC`,
		encodeTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	var out []*insight.InteractionRecord
	for rows.Next() {
		var (
			rec          insight.InteractionRecord
			qualityJSON  sql.NullString
			errorDetail  sql.NullString
			feedbackID   sql.NullString
			createdAt    string
			satisfaction sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Kind, &rec.Query,
			&rec.ResponseSummary, &rec.ProcessingTimeMs, &rec.TokensUsed, &rec.ModelVersion,
			&qualityJSON, &errorDetail, &feedbackID, &createdAt, &satisfaction); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		if qualityJSON.Valid && qualityJSON.String != "" {
			if err := json.Unmarshal([]byte(qualityJSON.String), &rec.QualityScores); err != nil {
				return nil, fmt.Errorf("decoding quality scores for interaction %s: %w", rec.ID, err)
			}
		}
		rec.ErrorDetail = errorDetail.String
		rec.FeedbackID = feedbackID.String
		ts, err := decodeTime(createdAt)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = ts
		if satisfaction.Valid {
			v := satisfaction.Float64
			rec.Satisfaction = &v
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
