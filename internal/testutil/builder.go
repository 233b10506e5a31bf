// Package testutil provides an in-process MediaWiki stand-in for tests.
//
// A Builder accumulates pages and accounts, and Build starts an httptest
// server that answers the action API at /w/api.php and serves article HTML
// with an EditURI link under /wiki/.
package testutil

import (
	"net/http/httptest"
	"testing"
)

// Builder accumulates wiki content and starts the server.
type Builder struct {
	t        *testing.T
	siteName string
	pages    []pageData
	users    []userData
}

// NewBuilder creates a builder for an empty wiki.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, siteName: "Test Wiki"}
}

// WithSiteName sets meta=siteinfo's sitename.
func (b *Builder) WithSiteName(name string) *Builder {
	b.siteName = name
	return b
}

// WithPage adds a page with optional configuration.
func (b *Builder) WithPage(title string, opts ...PageOption) *Builder {
	page := pageData{title: title}
	for _, opt := range opts {
		opt(&page)
	}
	b.pages = append(b.pages, page)
	return b
}

// WithUser adds an account that can log in with password.
func (b *Builder) WithUser(name, password string) *Builder {
	b.users = append(b.users, userData{id: int64(len(b.users) + 1), name: name, password: password})
	return b
}

// Build starts the server. It is closed when the test ends.
func (b *Builder) Build() *FakeWiki {
	b.t.Helper()
	fw := newFakeWiki(b.siteName)
	for _, p := range b.pages {
		fw.addPage(p)
	}
	for _, u := range b.users {
		fw.users[u.name] = u
	}
	fw.server = httptest.NewServer(fw)
	b.t.Cleanup(fw.server.Close)
	return fw
}
