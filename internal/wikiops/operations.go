package wikiops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/zjrosen/wikictl/internal/async"
	"github.com/zjrosen/wikictl/internal/bridge"
	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/textdiff"
	"github.com/zjrosen/wikictl/internal/wiki"
)

// FetchSiteInfo returns the site's general metadata, cached per endpoint.
func (s *Service) FetchSiteInfo() bridge.Operation[wiki.SiteInfo] {
	return func(ctx context.Context, ex async.Executor) *async.Future[wiki.SiteInfo] {
		return await(ctx, ex, func(ctx context.Context) (wiki.SiteInfo, error) {
			return s.site.GetWithRefresh(ctx, s.api.Endpoint(), struct{}{}, s.cacheTTL)
		})
	}
}

// LoginResult is the account a login established.
type LoginResult struct {
	UserID   int64  `json:"user_id" yaml:"user_id"`
	UserName string `json:"user_name" yaml:"user_name"`
}

// Login fetches a login token, signs in, then confirms the session.
func (s *Service) Login(user, password string) bridge.Operation[LoginResult] {
	return func(ctx context.Context, ex async.Executor) *async.Future[LoginResult] {
		token := async.Go(ctx, func(ctx context.Context) (string, error) {
			return s.api.Tokens(ctx, wiki.TokenLogin)
		})
		return async.Then(ctx, ex, token, func(token string) *async.Future[LoginResult] {
			login := async.Go(ctx, func(ctx context.Context) (wiki.LoginResult, error) {
				return s.api.Login(ctx, user, password, token)
			})
			return async.Then(ctx, ex, login, func(wiki.LoginResult) *async.Future[LoginResult] {
				s.forgetSession(ctx)
				return await(ctx, ex, func(ctx context.Context) (LoginResult, error) {
					info, err := s.api.UserInfo(ctx)
					if err != nil {
						return LoginResult{}, err
					}
					if info.Anonymous {
						return LoginResult{}, fmt.Errorf("login as %s did not establish a session: %w", user, wiki.ErrNotLoggedIn)
					}
					return LoginResult{UserID: info.ID, UserName: info.Name}, nil
				})
			})
		})
	}
}

// Logout ends the current session. It fails with wiki.ErrNotLoggedIn when the
// session is already anonymous.
func (s *Service) Logout() bridge.Operation[string] {
	return func(ctx context.Context, ex async.Executor) *async.Future[string] {
		who := async.Go(ctx, s.api.UserInfo)
		return async.Then(ctx, ex, who, func(info wiki.UserInfo) *async.Future[string] {
			if info.Anonymous {
				return async.Failed[string](wiki.ErrNotLoggedIn)
			}
			return withCSRF(ctx, s, ex, func(ctx context.Context, token string) (string, error) {
				if err := s.api.Logout(ctx, token); err != nil {
					return "", err
				}
				s.forgetSession(ctx)
				return info.Name, nil
			})
		})
	}
}

// maxTitlesPerQuery is the action API's titles= limit for ordinary accounts.
const maxTitlesPerQuery = 50

// GetPages queries titles with opts. Long title lists are split into batches
// the API accepts; the batches run concurrently and the pages come back in
// request order.
func (s *Service) GetPages(titles []string, opts wiki.PageQueryOptions) bridge.Operation[[]wiki.Page] {
	return func(ctx context.Context, ex async.Executor) *async.Future[[]wiki.Page] {
		var batches []*async.Future[[]wiki.Page]
		for batch := range slices.Chunk(titles, maxTitlesPerQuery) {
			batches = append(batches, async.Go(ctx, func(ctx context.Context) ([]wiki.Page, error) {
				return s.api.QueryPages(ctx, batch, opts)
			}))
		}
		return async.Map(ctx, ex, async.All(ctx, ex, batches), func(parts [][]wiki.Page) ([]wiki.Page, error) {
			return slices.Concat(parts...), nil
		})
	}
}

// PublishRequest is one page save.
type PublishRequest struct {
	Title   string
	Text    string
	Summary string
	Minor   bool
	Bot     bool
	Watch   wiki.WatchBehavior
	DryRun  bool
}

// PublishResult wraps the edit result; DryRun results carry only the title.
type PublishResult struct {
	wiki.EditResult `yaml:",inline"`
	DryRun          bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// PublishPage saves req.Text to req.Title.
func (s *Service) PublishPage(req PublishRequest) bridge.Operation[PublishResult] {
	return func(ctx context.Context, ex async.Executor) *async.Future[PublishResult] {
		if req.DryRun {
			log.Info(log.CatWiki, "Dry run, not publishing", "title", req.Title)
			return async.Resolved(PublishResult{EditResult: wiki.EditResult{Title: req.Title}, DryRun: true})
		}
		return withCSRF(ctx, s, ex, func(ctx context.Context, token string) (PublishResult, error) {
			res, err := s.api.Edit(ctx, wiki.EditRequest{
				Title:   req.Title,
				Text:    req.Text,
				Summary: req.Summary,
				Minor:   req.Minor,
				Bot:     req.Bot,
				Watch:   req.Watch,
				Token:   token,
			})
			return PublishResult{EditResult: res}, err
		})
	}
}

// MoveRequest is one rename. With DryRun set nothing is sent to the wiki.
type MoveRequest struct {
	wiki.MoveRequest
	DryRun bool
}

// MoveResult wraps the move result; DryRun results echo the request titles.
type MoveResult struct {
	wiki.MoveResult `yaml:",inline"`
	DryRun          bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// MovePage renames a page. The request token is filled in.
func (s *Service) MovePage(req MoveRequest) bridge.Operation[MoveResult] {
	return func(ctx context.Context, ex async.Executor) *async.Future[MoveResult] {
		if req.DryRun {
			log.Info(log.CatWiki, "Dry run, not moving", "from", req.From, "to", req.To)
			return async.Resolved(MoveResult{MoveResult: wiki.MoveResult{From: req.From, To: req.To}, DryRun: true})
		}
		return withCSRF(ctx, s, ex, func(ctx context.Context, token string) (MoveResult, error) {
			r := req.MoveRequest
			r.Token = token
			res, err := s.api.Move(ctx, r)
			return MoveResult{MoveResult: res}, err
		})
	}
}

// DeleteRequest is one deletion. With DryRun set nothing is sent to the wiki.
type DeleteRequest struct {
	wiki.DeleteRequest
	DryRun bool
}

// DeleteResult wraps the delete result; DryRun results carry only the title.
type DeleteResult struct {
	wiki.DeleteResult `yaml:",inline"`
	DryRun            bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// DeletePage deletes a page. The request token is filled in.
func (s *Service) DeletePage(req DeleteRequest) bridge.Operation[DeleteResult] {
	return func(ctx context.Context, ex async.Executor) *async.Future[DeleteResult] {
		if req.DryRun {
			log.Info(log.CatWiki, "Dry run, not deleting", "title", req.Title)
			return async.Resolved(DeleteResult{DeleteResult: wiki.DeleteResult{Title: req.Title}, DryRun: true})
		}
		return withCSRF(ctx, s, ex, func(ctx context.Context, token string) (DeleteResult, error) {
			r := req.DeleteRequest
			r.Token = token
			res, err := s.api.Delete(ctx, r)
			return DeleteResult{DeleteResult: res}, err
		})
	}
}

// UploadParams describes a local file upload.
type UploadParams struct {
	Path     string
	Filename string
	Comment  string
	Force    bool
	Watch    wiki.WatchBehavior
	DryRun   bool
}

// UploadResult wraps the upload result. DryRun results carry the target name
// and the local file size.
type UploadResult struct {
	wiki.UploadResult `yaml:",inline"`
	DryRun            bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// UploadFile uploads the file at p.Path. Warnings are logged and returned in
// the result rather than treated as failures. A dry run only checks that the
// file can be read.
func (s *Service) UploadFile(p UploadParams) bridge.Operation[UploadResult] {
	return func(ctx context.Context, ex async.Executor) *async.Future[UploadResult] {
		filename := p.Filename
		if filename == "" {
			filename = filepath.Base(p.Path)
		}
		if p.DryRun {
			info, err := os.Stat(p.Path)
			if err != nil {
				return async.Failed[UploadResult](err)
			}
			log.Info(log.CatWiki, "Dry run, not uploading", "file", filename, "size", info.Size())
			return async.Resolved(UploadResult{
				UploadResult: wiki.UploadResult{Filename: filename, Info: &wiki.UploadedFileInfo{Size: info.Size()}},
				DryRun:       true,
			})
		}
		return withCSRF(ctx, s, ex, func(ctx context.Context, token string) (UploadResult, error) {
			f, err := s.openFile(p.Path)
			if err != nil {
				return UploadResult{}, err
			}
			defer func() { _ = f.Close() }()

			res, err := s.api.Upload(ctx, wiki.UploadRequest{
				Filename:      filename,
				Comment:       p.Comment,
				IgnoreWarning: p.Force,
				Watch:         p.Watch,
				Token:         token,
				Content:       f,
			})
			if err == nil && len(res.Warnings) > 0 {
				log.Warn(log.CatWiki, "Upload returned warnings", "file", filename, "warnings", res.WarningKeys())
			}
			return UploadResult{UploadResult: res}, err
		})
	}
}

// Search runs a full-text search.
func (s *Service) Search(query string, limit int) bridge.Operation[[]wiki.SearchHit] {
	return func(ctx context.Context, ex async.Executor) *async.Future[[]wiki.SearchHit] {
		return await(ctx, ex, func(ctx context.Context) ([]wiki.SearchHit, error) {
			return s.api.Search(ctx, query, limit)
		})
	}
}

// DiffPage compares the remote wikitext of title with local. A missing page
// diffs against empty text.
func (s *Service) DiffPage(title, local string) bridge.Operation[textdiff.Result] {
	return func(ctx context.Context, ex async.Executor) *async.Future[textdiff.Result] {
		pages := async.Go(ctx, func(ctx context.Context) ([]wiki.Page, error) {
			return s.api.QueryPages(ctx, []string{title}, wiki.PageQueryOptions{Content: true})
		})
		return async.Map(ctx, ex, pages, func(pages []wiki.Page) (textdiff.Result, error) {
			if len(pages) != 1 {
				return textdiff.Result{}, fmt.Errorf("expected 1 page for %q, got %d", title, len(pages))
			}
			page := pages[0]
			if page.Invalid {
				return textdiff.Result{}, fmt.Errorf("invalid title %q", title)
			}
			res := textdiff.Diff(page.Content, local)
			res.Title = page.Title
			return res, nil
		})
	}
}

// DiscoverEndpoint resolves the api.php URL for any page URL on a wiki.
func DiscoverEndpoint(startURL string, opts wiki.Options) bridge.Operation[string] {
	return func(ctx context.Context, ex async.Executor) *async.Future[string] {
		return await(ctx, ex, func(ctx context.Context) (string, error) {
			return wiki.DiscoverEndpoint(ctx, startURL, opts)
		})
	}
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	return f, nil
}
