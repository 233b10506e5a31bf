package sqlite

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/wikictl/internal/sessions/domain"
)

// SessionModel represents the database row for the sessions table.
type SessionModel struct {
	Profile   string
	Endpoint  string
	Username  *string // nullable
	Cookies   string  // JSON encoded []domain.Cookie
	UpdatedAt int64   // Unix timestamp
}

// InvocationModel represents the database row for the invocations table.
type InvocationModel struct {
	ID         string
	Command    string
	Target     string
	Outcome    string
	Error      *string // nullable
	StartedAt  int64   // Unix milliseconds
	DurationMS int64
}

func toSessionModel(s *domain.Session) (*SessionModel, error) {
	cookies := s.Cookies()
	if cookies == nil {
		cookies = []domain.Cookie{}
	}
	encoded, err := json.Marshal(cookies)
	if err != nil {
		return nil, err
	}
	m := &SessionModel{
		Profile:   s.Profile(),
		Endpoint:  s.Endpoint(),
		Cookies:   string(encoded),
		UpdatedAt: s.UpdatedAt().Unix(),
	}
	if s.Username() != "" {
		username := s.Username()
		m.Username = &username
	}
	return m, nil
}

func (m *SessionModel) toDomain() (*domain.Session, error) {
	var cookies []domain.Cookie
	if m.Cookies != "" {
		if err := json.Unmarshal([]byte(m.Cookies), &cookies); err != nil {
			return nil, err
		}
	}
	var username string
	if m.Username != nil {
		username = *m.Username
	}
	return domain.ReconstituteSession(m.Profile, m.Endpoint, username, cookies, time.Unix(m.UpdatedAt, 0)), nil
}

func toInvocationModel(inv domain.Invocation) *InvocationModel {
	m := &InvocationModel{
		ID:         inv.ID,
		Command:    inv.Command,
		Target:     inv.Target,
		Outcome:    inv.Outcome,
		StartedAt:  inv.StartedAt.UnixMilli(),
		DurationMS: inv.Duration.Milliseconds(),
	}
	if inv.Error != "" {
		errText := inv.Error
		m.Error = &errText
	}
	return m
}

func (m *InvocationModel) toDomain() domain.Invocation {
	inv := domain.Invocation{
		ID:        m.ID,
		Command:   m.Command,
		Target:    m.Target,
		Outcome:   m.Outcome,
		StartedAt: time.UnixMilli(m.StartedAt),
		Duration:  time.Duration(m.DurationMS) * time.Millisecond,
	}
	if m.Error != nil {
		inv.Error = *m.Error
	}
	return inv
}
