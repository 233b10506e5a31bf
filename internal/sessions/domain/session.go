// Package domain provides the pure domain layer for saved wiki sessions with no
// infrastructure dependencies.
//
// A Session is what a profile remembers between runs: the api.php endpoint,
// the account that logged in and the cookies that keep it logged in.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Cookie is one persisted cookie. Only the name and value survive; the jar
// re-scopes them to the endpoint on import.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session is the saved state of one profile.
type Session struct {
	profile   string
	endpoint  string
	username  string
	cookies   []Cookie
	updatedAt time.Time
}

// NewSession creates an anonymous session for profile at endpoint.
func NewSession(profile, endpoint string) *Session {
	return &Session{
		profile:   profile,
		endpoint:  endpoint,
		updatedAt: time.Now(),
	}
}

// ReconstituteSession rebuilds a Session from persisted fields. Used by
// repositories only.
func ReconstituteSession(profile, endpoint, username string, cookies []Cookie, updatedAt time.Time) *Session {
	return &Session{
		profile:   profile,
		endpoint:  endpoint,
		username:  username,
		cookies:   cookies,
		updatedAt: updatedAt,
	}
}

// Profile returns the profile name, the session's identity.
func (s *Session) Profile() string { return s.profile }

// Endpoint returns the api.php URL.
func (s *Session) Endpoint() string { return s.endpoint }

// Username returns the logged in account, or "" when anonymous.
func (s *Session) Username() string { return s.username }

// Cookies returns a copy of the stored cookies.
func (s *Session) Cookies() []Cookie {
	out := make([]Cookie, len(s.cookies))
	copy(out, s.cookies)
	return out
}

// UpdatedAt returns when the session last changed.
func (s *Session) UpdatedAt() time.Time { return s.updatedAt }

// LoggedIn reports whether an account is attached.
func (s *Session) LoggedIn() bool { return s.username != "" }

// SetEndpoint points the session at a different wiki. Any login is dropped
// because cookies do not carry across hosts.
func (s *Session) SetEndpoint(endpoint string) {
	if s.endpoint == endpoint {
		return
	}
	s.endpoint = endpoint
	s.username = ""
	s.cookies = nil
	s.touch()
}

// LogIn records a successful login.
func (s *Session) LogIn(username string, cookies []Cookie) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username must not be empty")
	}
	s.username = username
	s.cookies = append([]Cookie(nil), cookies...)
	s.touch()
	return nil
}

// UpdateCookies replaces the cookie set, for example after the wiki rotated
// the session cookie.
func (s *Session) UpdateCookies(cookies []Cookie) {
	s.cookies = append([]Cookie(nil), cookies...)
	s.touch()
}

// LogOut forgets the account and its cookies.
func (s *Session) LogOut() {
	s.username = ""
	s.cookies = nil
	s.touch()
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}

// SessionNotFoundError is returned when no session is saved for a profile.
type SessionNotFoundError struct {
	Profile string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("no saved session for profile %q", e.Profile)
}
