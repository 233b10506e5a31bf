package presentation

import (
	"time"

	"github.com/zjrosen/wikictl/internal/sessions/domain"
)

// SessionDTO represents a saved profile for presentation. Cookies are never
// printed, only counted.
type SessionDTO struct {
	Profile   string    `json:"profile" yaml:"profile"`
	Active    bool      `json:"active" yaml:"active"`
	Endpoint  string    `json:"endpoint" yaml:"endpoint"`
	Username  string    `json:"username,omitempty" yaml:"username,omitempty"`
	Cookies   int       `json:"cookies" yaml:"cookies"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// FromSession converts a domain session; active marks the selected profile.
func FromSession(s *domain.Session, active bool) SessionDTO {
	return SessionDTO{
		Profile:   s.Profile(),
		Active:    active,
		Endpoint:  s.Endpoint(),
		Username:  s.Username(),
		Cookies:   len(s.Cookies()),
		UpdatedAt: s.UpdatedAt(),
	}
}

// InvocationDTO represents one history entry.
type InvocationDTO struct {
	ID         string    `json:"id" yaml:"id"`
	Command    string    `json:"command" yaml:"command"`
	Target     string    `json:"target,omitempty" yaml:"target,omitempty"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
}

// FromInvocation converts a journal entry.
func FromInvocation(inv domain.Invocation) InvocationDTO {
	return InvocationDTO{
		ID:         inv.ID,
		Command:    inv.Command,
		Target:     inv.Target,
		Outcome:    inv.Outcome,
		Error:      inv.Error,
		StartedAt:  inv.StartedAt,
		DurationMS: inv.Duration.Milliseconds(),
	}
}

// MessageDTO is a plain status line, such as "Logged out Alice".
type MessageDTO struct {
	Message string `json:"message" yaml:"message"`
}
