package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjrosen/wikictl/internal/sessions/domain"
)

const sessionColumns = `profile, endpoint, username, cookies, updated_at`

// sessionRepository implements domain.SessionRepository using SQLite.
type sessionRepository struct {
	db *sql.DB
}

func newSessionRepository(db *sql.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

var _ domain.SessionRepository = (*sessionRepository)(nil)

func scanSession(scanner interface{ Scan(...any) error }) (*SessionModel, error) {
	var model SessionModel
	err := scanner.Scan(&model.Profile, &model.Endpoint, &model.Username, &model.Cookies, &model.UpdatedAt)
	return &model, err
}

// Save upserts the session keyed by profile.
func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	model, err := toSessionModel(session)
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			endpoint = excluded.endpoint,
			username = excluded.username,
			cookies = excluded.cookies,
			updated_at = excluded.updated_at`,
		model.Profile, model.Endpoint, model.Username, model.Cookies, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindByProfile retrieves the session saved for profile.
func (r *sessionRepository) FindByProfile(ctx context.Context, profile string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE profile = ?`, profile)
	model, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.SessionNotFoundError{Profile: profile}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	session, err := model.toDomain()
	if err != nil {
		return nil, fmt.Errorf("failed to decode session %q: %w", profile, err)
	}
	return session, nil
}

// List returns every saved session ordered by profile.
func (r *sessionRepository) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY profile`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*domain.Session
	for rows.Next() {
		model, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session, err := model.toDomain()
		if err != nil {
			return nil, fmt.Errorf("failed to decode session %q: %w", model.Profile, err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes the session for profile.
func (r *sessionRepository) Delete(ctx context.Context, profile string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE profile = ?`, profile)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.SessionNotFoundError{Profile: profile}
	}
	return nil
}
