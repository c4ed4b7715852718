package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/shift-roster/pkg/core/model"
	"github.com/jakechorley/shift-roster/pkg/db"
)

// LockScores serialises score updates per tenant for the rest of the
// transaction and returns the current scores.
func (s *store) LockScores(ctx context.Context, tenantID string) ([]db.Score, error) {
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
		return nil, fmt.Errorf("failed to lock scores: %w", err)
	}

	rows, err := s.q.Query(ctx, `
		SELECT tenant_id, subject, subject_id, score, updated_at
		FROM score
		WHERE tenant_id = $1
		ORDER BY subject, subject_id
		FOR UPDATE
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}

	scores, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.Score, error) {
		var sc db.Score
		var subject string
		err := row.Scan(&sc.TenantID, &subject, &sc.SubjectID, &sc.Score, &sc.UpdatedAt)
		sc.Subject = model.ScoreSubject(subject)
		return sc, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan score: %w", err)
	}
	return scores, nil
}

func (s *store) SaveScores(ctx context.Context, scores []db.Score) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, sc := range scores {
		batch.Queue(`
			INSERT INTO score (tenant_id, subject, subject_id, score, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tenant_id, subject, subject_id) DO UPDATE SET
				score = EXCLUDED.score,
				updated_at = EXCLUDED.updated_at
		`, sc.TenantID, string(sc.Subject), sc.SubjectID, sc.Score, sc.UpdatedAt)
	}

	results := s.q.SendBatch(ctx, batch)
	for range scores {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to save score: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to save scores: %w", err)
	}
	return nil
}

func (s *store) AppendScoreHistory(ctx context.Context, tenantID string, entries []model.ScoreHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.q.CopyFrom(ctx,
		pgx.Identifier{"score_history"},
		[]string{"id", "tenant_id", "subject", "subject_id", "schedule_id", "slot_id", "delta", "score", "reason", "created_at"},
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			h := entries[i]
			return []any{h.ID, tenantID, string(h.Subject), h.SubjectID, nullable(h.ScheduleID), nullable(h.SlotID),
				h.Delta, h.Score, h.Reason, h.CreatedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy score history: %w", err)
	}
	return nil
}
