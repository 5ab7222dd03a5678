package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/flywheeld/internal/analysis"
)

// SaveAnalysisRun records the summary of one feedback analysis cycle.
func (s *Store) SaveAnalysisRun(ctx context.Context, run *analysis.RunSummary) error {
	kindCounts, err := json.Marshal(run.KindCounts)
	if err != nil {
		return fmt.Errorf("encoding kind counts: %w", err)
	}
	issueCounts, err := json.Marshal(run.IssueCounts)
	if err != nil {
		return fmt.Errorf("encoding issue counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (batch_size, average_satisfaction, trend, quality_flag, actions_generated, kind_counts_json, issue_counts_json, ran_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.BatchSize, run.AvgSatisfaction, string(run.Trend), run.QualityFlag,
		run.ActionsGenerated, string(kindCounts), string(issueCounts), encodeTime(run.RanAt),
	)
	if err != nil {
		return fmt.Errorf("inserting analysis run: %w", err)
	}
	return nil
}

// LastAnalysisRun returns the most recent run summary, or nil when no
// analysis has run yet.
func (s *Store) LastAnalysisRun(ctx context.Context) (*analysis.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT batch_size, average_satisfaction, trend, quality_flag, actions_generated, kind_counts_json, issue_counts_json, ran_at
		FROM analysis_runs
		ORDER BY id DESC
		LIMIT 1`)

	var (
		run       analysis.RunSummary
		trend     string
		kindJSON  sql.NullString
		issueJSON sql.NullString
		ranAt     string
	)
	err := row.Scan(&run.BatchSize, &run.AvgSatisfaction, &trend, &run.QualityFlag,
		&run.ActionsGenerated, &kindJSON, &issueJSON, &ranAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading last analysis run: %w", err)
	}

	run.Trend = analysis.Trend(trend)
	if kindJSON.Valid && kindJSON.String != "" {
		if err := json.Unmarshal([]byte(kindJSON.String), &run.KindCounts); err != nil {
			return nil, fmt.Errorf("decoding kind counts: %w", err)
		}
	}
	if issueJSON.Valid && issueJSON.String != "" {
		if err := json.Unmarshal([]byte(issueJSON.String), &run.IssueCounts); err != nil {
			return nil, fmt.Errorf("decoding issue counts: %w", err)
		}
	}
	if run.RanAt, err = decodeTime(ranAt); err != nil {
		return nil, err
	}
	return &run, nil
}
