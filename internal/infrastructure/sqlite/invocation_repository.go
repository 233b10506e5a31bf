package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zjrosen/wikictl/internal/bridge"
	"github.com/zjrosen/wikictl/internal/sessions/domain"
)

const invocationColumns = `id, command, target, outcome, error, started_at, duration_ms`

// InvocationRepository is the invocation journal. It doubles as the bridge
// handler's Journal.
type InvocationRepository struct {
	db *sql.DB
}

func newInvocationRepository(db *sql.DB) *InvocationRepository {
	return &InvocationRepository{db: db}
}

var (
	_ domain.InvocationRepository = (*InvocationRepository)(nil)
	_ bridge.Journal              = (*InvocationRepository)(nil)
)

func scanInvocation(scanner interface{ Scan(...any) error }) (*InvocationModel, error) {
	var model InvocationModel
	err := scanner.Scan(&model.ID, &model.Command, &model.Target, &model.Outcome,
		&model.Error, &model.StartedAt, &model.DurationMS)
	return &model, err
}

// Append inserts inv.
func (r *InvocationRepository) Append(ctx context.Context, inv domain.Invocation) error {
	model := toInvocationModel(inv)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invocations (`+invocationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		model.ID, model.Command, model.Target, model.Outcome, model.Error, model.StartedAt, model.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}
	return nil
}

// RecordInvocation journals a finished bridge invocation.
func (r *InvocationRepository) RecordInvocation(ctx context.Context, rec bridge.Record) error {
	return r.Append(ctx, domain.Invocation{
		ID:        rec.ID,
		Command:   rec.Command,
		Target:    rec.Target,
		Outcome:   rec.Outcome,
		Error:     rec.Error,
		StartedAt: rec.StartedAt,
		Duration:  rec.Duration,
	})
}

// Recent returns up to limit invocations, newest first.
func (r *InvocationRepository) Recent(ctx context.Context, limit int) ([]domain.Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM invocations ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Invocation
	for rows.Next() {
		model, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		out = append(out, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invocations: %w", err)
	}
	return out, nil
}
