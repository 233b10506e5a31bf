package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zjrosen/wikictl/internal/flags"
	"github.com/zjrosen/wikictl/internal/infrastructure/sqlite"
	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/presentation"
	"github.com/zjrosen/wikictl/internal/sessions/domain"
	"github.com/zjrosen/wikictl/internal/tracing"
	"github.com/zjrosen/wikictl/internal/wiki"
	"github.com/zjrosen/wikictl/internal/wikiops"
)

// env is everything a wiki command needs for one run: the state database,
// the tracing provider, the output formatter and, once requested, the
// profile's session and a client bound to it.
type env struct {
	db       *sqlite.DB
	provider *tracing.Provider
	out      *presentation.Formatter

	session  *domain.Session
	client   *wiki.Client
	restored bool // client carries the session's cookies
}

func openEnv(cmd *cobra.Command) (*env, error) {
	db, err := sqlite.NewDB(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	tr := cfg.Tracing
	if tr.ServiceName == "" {
		tr.ServiceName = "wikictl"
	}
	provider, err := tracing.NewProvider(cmd.Context(), tr)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("starting tracing: %w", err)
	}

	stdout := cmd.OutOrStdout()
	out := presentation.NewFormatter(stdout, cfg.Output)
	if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		// NO_COLOR and dumb terminals resolve to the Ascii profile.
		out.WithColor(termenv.NewOutput(f).EnvColorProfile() != termenv.Ascii)
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			out.WithWidth(width)
		}
	}

	return &env{db: db, provider: provider, out: out}, nil
}

// close flushes output, persists refreshed session cookies and releases
// resources. It is safe to call on a partially opened env.
func (e *env) close(ctx context.Context) {
	if e.out != nil {
		if err := e.out.Close(); err != nil {
			log.ErrorErr(log.CatCmd, "Failed to flush output", err)
		}
	}
	if e.restored && e.session.LoggedIn() && e.client.Endpoint() == e.session.Endpoint() {
		e.session.UpdateCookies(toDomainCookies(e.client.ExportCookies()))
		if err := e.db.SessionRepository().Save(context.WithoutCancel(ctx), e.session); err != nil {
			log.ErrorErr(log.CatStore, "Failed to save session", err, "profile", e.session.Profile())
		}
	}
	if e.provider != nil {
		if err := e.provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.ErrorErr(log.CatTrace, "Failed to shut down tracing", err)
		}
	}
	if e.db != nil {
		_ = e.db.Close()
	}
}

// loadSession returns the active profile's session, creating an unsaved
// anonymous one when the profile has never been used.
func (e *env) loadSession(ctx context.Context) (*domain.Session, error) {
	if e.session != nil {
		return e.session, nil
	}
	session, err := e.db.SessionRepository().FindByProfile(ctx, cfg.Profile)
	var notFound *domain.SessionNotFoundError
	switch {
	case errors.As(err, &notFound):
		session = domain.NewSession(cfg.Profile, cfg.Endpoint)
	case err != nil:
		return nil, err
	}
	e.session = session
	return session, nil
}

// endpoint resolves the api.php URL: the configured override first, then
// the profile's saved endpoint.
func (e *env) endpoint(ctx context.Context) (string, error) {
	if cfg.Endpoint != "" {
		return cfg.Endpoint, nil
	}
	session, err := e.loadSession(ctx)
	if err != nil {
		return "", err
	}
	if session.Endpoint() == "" {
		return "", fmt.Errorf("no endpoint for profile %q: pass --endpoint, or run 'wikictl site discover URL --use'", cfg.Profile)
	}
	return session.Endpoint(), nil
}

func (e *env) clientOptions(endpoint string) wiki.Options {
	return wiki.Options{
		Endpoint:  endpoint,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Tracer:    e.provider.Tracer(),
	}
}

// wikiClient builds a client for the resolved endpoint. The profile's
// cookies are loaded only when the endpoint is the one they belong to.
func (e *env) wikiClient(ctx context.Context) (*wiki.Client, error) {
	if e.client != nil {
		return e.client, nil
	}
	endpoint, err := e.endpoint(ctx)
	if err != nil {
		return nil, err
	}
	client, err := wiki.New(e.clientOptions(endpoint))
	if err != nil {
		return nil, err
	}
	session, err := e.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	if session.LoggedIn() && session.Endpoint() == client.Endpoint() && featureFlags.Enabled(flags.FlagRestoreSession) {
		client.ImportCookies(toWikiCookies(session.Cookies()))
		e.restored = true
		log.Debug(log.CatCmd, "Restored session", "profile", session.Profile(), "user", session.Username())
	}
	e.client = client
	return client, nil
}

func (e *env) service(ctx context.Context) (*wikiops.Service, error) {
	client, err := e.wikiClient(ctx)
	if err != nil {
		return nil, err
	}
	return wikiops.New(client, wikiops.Config{
		CacheEnabled: cfg.Cache.Enabled,
		CacheTTL:     cfg.Cache.TTL,
	}), nil
}

func toWikiCookies(in []domain.Cookie) []wiki.Cookie {
	out := make([]wiki.Cookie, len(in))
	for i, c := range in {
		out[i] = wiki.Cookie{Name: c.Name, Value: c.Value}
	}
	return out
}

func toDomainCookies(in []wiki.Cookie) []domain.Cookie {
	out := make([]domain.Cookie, len(in))
	for i, c := range in {
		out[i] = domain.Cookie{Name: c.Name, Value: c.Value}
	}
	return out
}
