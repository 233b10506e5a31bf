// Package flags holds wikictl's feature switches. The config file's flags
// section is layered over the built-in defaults once at startup; the result
// is read-only.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/wikictl/internal/log"
)

const (
	// FlagJournal records every processed record in the state database so
	// `wikictl history` can show it.
	FlagJournal = "journal"

	// FlagRestoreSession loads the profile's saved cookies into the client
	// before a command runs.
	FlagRestoreSession = "restore-session"
)

// Flag describes one known switch.
type Flag struct {
	Name        string
	Description string
	Default     bool
}

var known = []Flag{
	{Name: FlagJournal, Description: "record processed records for `wikictl history`", Default: true},
	{Name: FlagRestoreSession, Description: "reuse the profile's saved login cookies", Default: true},
}

// Known lists every switch wikictl reads, in declaration order.
func Known() []Flag {
	return slices.Clone(known)
}

// Defaults returns a fresh map of every known switch at its default.
func Defaults() map[string]bool {
	d := make(map[string]bool, len(known))
	for _, f := range known {
		d[f.Name] = f.Default
	}
	return d
}

// Registry is the resolved switch state.
type Registry struct {
	flags   map[string]bool
	unknown []string
}

// New layers overrides over Defaults. Names wikictl does not know are kept
// out of the registry and reported by Unknown.
func New(overrides map[string]bool) *Registry {
	r := &Registry{flags: Defaults()}
	for name, enabled := range overrides {
		if _, ok := r.flags[name]; !ok {
			r.unknown = append(r.unknown, name)
			continue
		}
		r.flags[name] = enabled
	}
	slices.Sort(r.unknown)

	log.Debug(log.CatConfig, "Feature flags resolved", "flags", r.flags, "unknown", r.unknown)
	return r
}

// Enabled reports whether name is on. Unknown names and a nil registry are
// off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of the resolved state.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}

// Unknown returns the configured names that match no switch, sorted.
func (r *Registry) Unknown() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.unknown)
}
