package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
	"github.com/fyrsmithlabs/flywheeld/internal/executor"
	"github.com/fyrsmithlabs/flywheeld/internal/validation"
)

// SaveAction inserts a newly generated action.
func (s *Store) SaveAction(ctx context.Context, act *action.Action) error {
	params, err := json.Marshal(act.Params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	var completed any
	if act.CompletedAt != nil {
		completed = encodeTime(*act.CompletedAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (id, trigger_type, priority, action_type, description, params_json, estimated_impact, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		act.ID, string(act.Trigger), string(act.Priority), string(act.Kind),
		act.Description, string(params), act.EstimatedImpact, string(act.Status),
		encodeTime(act.CreatedAt), completed,
	)
	if err != nil {
		return fmt.Errorf("inserting action %s: %w", act.ID, err)
	}
	return nil
}

// UpdateAction persists an action's current status and completion time.
func (s *Store) UpdateAction(ctx context.Context, act *action.Action) error {
	var completed any
	if act.CompletedAt != nil {
		completed = encodeTime(*act.CompletedAt)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, completed_at = ? WHERE id = ?`,
		string(act.Status), completed, act.ID,
	)
	if err != nil {
		return fmt.Errorf("updating action %s: %w", act.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating action %s: not found", act.ID)
	}
	return nil
}

// ListActions returns actions newest first, optionally filtered by
// status and by creation time. A zero since means no time filter.
func (s *Store) ListActions(ctx context.Context, status action.Status, since time.Time) ([]*action.Action, error) {
	query := `SELECT id, trigger_type, priority, action_type, description, params_json, estimated_impact, status, created_at, completed_at FROM actions`
	var (
		where []string
		args  []any
	)
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	if !since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, encodeTime(since))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

// CompletedActionsSince returns actions completed at or after the
// cutoff, oldest completion first.
func (s *Store) CompletedActionsSince(ctx context.Context, since time.Time) ([]*action.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_type, priority, action_type, description, params_json, estimated_impact, status, created_at, completed_at
		FROM actions
		WHERE status = ? AND completed_at >= ?
		ORDER BY completed_at ASC`,
		string(action.StatusCompleted), encodeTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("listing completed actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

// CompletedActionCount counts actions completed at or after the cutoff.
func (s *Store) CompletedActionCount(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM actions WHERE status = ? AND completed_at >= ?`,
		string(action.StatusCompleted), encodeTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting completed actions: %w", err)
	}
	return n, nil
}

func scanActions(rows *sql.Rows) ([]*action.Action, error) {
	var out []*action.Action
	for rows.Next() {
		var (
			act        action.Action
			trigger    string
			priority   string
			kind       string
			status     string
			paramsJSON sql.NullString
			createdAt  string
			completed  sql.NullString
		)
		if err := rows.Scan(&act.ID, &trigger, &priority, &kind, &act.Description,
			&paramsJSON, &act.EstimatedImpact, &status, &createdAt, &completed); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		act.Trigger = action.Trigger(trigger)
		act.Priority = action.Priority(priority)
		act.Kind = action.Kind(kind)
		act.Status = action.Status(status)

		if paramsJSON.Valid && paramsJSON.String != "" {
			if err := json.Unmarshal([]byte(paramsJSON.String), &act.Params); err != nil {
				return nil, fmt.Errorf("decoding params for action %s: %w", act.ID, err)
			}
		}
		created, err := decodeTime(createdAt)
		if err != nil {
			return nil, err
		}
		act.CreatedAt = created
		completedAt, err := decodeNullTime(completed)
		if err != nil {
			return nil, err
		}
		act.CompletedAt = completedAt

		out = append(out, &act)
	}
	return out, rows.Err()
}

// SaveActionResult records the outcome of one action execution.
func (s *Store) SaveActionResult(ctx context.Context, r *executor.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_results (action_id, success, detail, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ActionID, r.Success, r.Detail, r.Duration.Milliseconds(), encodeTime(r.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting result for action %s: %w", r.ActionID, err)
	}
	return nil
}

// SaveValidation records the outcome of one validation check.
func (s *Store) SaveValidation(ctx context.Context, rec *validation.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validations (action_id, validation_status, improvement_verified, validated_at)
		VALUES (?, ?, ?, ?)`,
		rec.ActionID, rec.Status, rec.ImprovementVerified, encodeTime(rec.ValidatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting validation for action %s: %w", rec.ActionID, err)
	}
	return nil
}
