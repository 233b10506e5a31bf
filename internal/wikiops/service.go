// Package wikiops builds the unit of work behind each wikictl command as a
// bridge.Operation. Network calls run off the pump goroutine and every one of
// them resumes the operation through the executor it was given.
package wikiops

import (
	"context"
	"io"
	"time"

	"github.com/zjrosen/wikictl/internal/async"
	"github.com/zjrosen/wikictl/internal/cachemanager"
	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/wiki"
)

// API is the slice of *wiki.Client the operations use.
type API interface {
	Endpoint() string
	SiteInfo(ctx context.Context) (wiki.SiteInfo, error)
	UserInfo(ctx context.Context) (wiki.UserInfo, error)
	Tokens(ctx context.Context, tokenType string) (string, error)
	Login(ctx context.Context, user, password, token string) (wiki.LoginResult, error)
	Logout(ctx context.Context, csrfToken string) error
	QueryPages(ctx context.Context, titles []string, opts wiki.PageQueryOptions) ([]wiki.Page, error)
	Edit(ctx context.Context, req wiki.EditRequest) (wiki.EditResult, error)
	Move(ctx context.Context, req wiki.MoveRequest) (wiki.MoveResult, error)
	Delete(ctx context.Context, req wiki.DeleteRequest) (wiki.DeleteResult, error)
	Upload(ctx context.Context, req wiki.UploadRequest) (wiki.UploadResult, error)
	Search(ctx context.Context, query string, limit int) ([]wiki.SearchHit, error)
}

var _ API = (*wiki.Client)(nil)

// Config tunes the per-process caches.
type Config struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Service holds the client and the caches shared by every record a command
// processes.
type Service struct {
	api      API
	cacheTTL time.Duration
	tokens   *cachemanager.ReadThroughCache[string, string, string]
	tokenMgr cachemanager.CacheManager[string, string]
	site     *cachemanager.ReadThroughCache[string, wiki.SiteInfo, struct{}]
	openFile func(path string) (io.ReadCloser, error)
}

// New creates a service over api.
func New(api API, cfg Config) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cachemanager.DefaultExpiration
	}
	tokenMgr := cachemanager.NewInMemoryCacheManager[string, string]("tokens", ttl, cachemanager.DefaultCleanupInterval)
	siteMgr := cachemanager.NewInMemoryCacheManager[string, wiki.SiteInfo]("siteinfo", ttl, cachemanager.DefaultCleanupInterval)

	return &Service{
		api:      api,
		cacheTTL: ttl,
		tokenMgr: tokenMgr,
		tokens: cachemanager.NewReadThroughCache[string, string, string](tokenMgr,
			func(ctx context.Context, tokenType string) (string, error) {
				return api.Tokens(ctx, tokenType)
			}, !cfg.CacheEnabled),
		site: cachemanager.NewReadThroughCache[string, wiki.SiteInfo, struct{}](siteMgr,
			func(ctx context.Context, _ struct{}) (wiki.SiteInfo, error) {
				return api.SiteInfo(ctx)
			}, !cfg.CacheEnabled),
		openFile: openFile,
	}
}

func (s *Service) tokenKey(tokenType string) string {
	return s.api.Endpoint() + "#" + tokenType
}

func (s *Service) csrfToken(ctx context.Context) (string, error) {
	return s.tokens.Get(ctx, s.tokenKey(wiki.TokenCSRF), wiki.TokenCSRF, s.cacheTTL)
}

// refreshCSRF drops the cached csrf token and fetches a new one.
func (s *Service) refreshCSRF(ctx context.Context) (string, error) {
	if err := s.tokens.Invalidate(ctx, s.tokenKey(wiki.TokenCSRF)); err != nil {
		return "", err
	}
	log.Info(log.CatWiki, "Refreshing csrf token", "endpoint", s.api.Endpoint())
	return s.csrfToken(ctx)
}

// forgetSession drops tokens bound to the previous session.
func (s *Service) forgetSession(ctx context.Context) {
	if err := s.tokenMgr.Flush(ctx); err != nil {
		log.ErrorErr(log.CatCache, "Failed to flush token cache", err)
	}
}

// await runs fn off the pump and resumes on ex with its result.
func await[T any](ctx context.Context, ex async.Executor, fn func(context.Context) (T, error)) *async.Future[T] {
	return async.Map(ctx, ex, async.Go(ctx, fn), func(v T) (T, error) { return v, nil })
}

// withCSRF fetches a csrf token, then runs fn with it. A badtoken failure is
// retried once with a freshly fetched token.
func withCSRF[T any](ctx context.Context, s *Service, ex async.Executor, fn func(ctx context.Context, token string) (T, error)) *async.Future[T] {
	attempt := func(token string) *async.Future[T] {
		return await(ctx, ex, func(ctx context.Context) (T, error) { return fn(ctx, token) })
	}
	first := async.Then(ctx, ex, async.Go(ctx, s.csrfToken), attempt)
	return async.Catch(ctx, ex, first, func(err error) *async.Future[T] {
		if !wiki.IsCode(err, "badtoken") {
			return async.Failed[T](err)
		}
		return async.Then(ctx, ex, async.Go(ctx, s.refreshCSRF), attempt)
	})
}
