package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeWiki routes api.php requests by action. Handlers write the JSON body.
type fakeWiki struct {
	t        *testing.T
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeWiki(t *testing.T) (*fakeWiki, *Client) {
	t.Helper()
	fw := &fakeWiki{t: t, handlers: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(fw)
	t.Cleanup(srv.Close)

	c, err := New(Options{Endpoint: srv.URL + "/w/api.php"})
	require.NoError(t, err)
	return fw, c
}

func (f *fakeWiki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	require.Equal(f.t, "json", r.Form.Get("format"))
	require.Equal(f.t, "2", r.Form.Get("formatversion"))

	key := r.Form.Get("action")
	if key == "query" {
		key += ":" + r.Form.Get("meta") + r.Form.Get("list") + r.Form.Get("prop")
	}
	h, ok := f.handlers[key]
	if !ok {
		writeJSON(w, map[string]any{"error": map[string]string{"code": "badvalue", "info": "no handler for " + key}})
		return
	}
	h(w, r)
}

func (f *fakeWiki) on(key string, h func(w http.ResponseWriter, r *http.Request)) {
	f.handlers[key] = h
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsNonHTTPEndpoint(t *testing.T) {
	_, err := New(Options{Endpoint: "ftp://example.org/api.php"})
	require.ErrorContains(t, err, "http(s)")
}

func TestSiteInfo(t *testing.T) {
	fw, c := newFakeWiki(t)
	fw.on("query:siteinfo", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, DefaultUserAgent, r.UserAgent())
		writeJSON(w, map[string]any{"query": map[string]any{"general": map[string]any{
			"sitename":  "Test Wiki",
			"generator": "MediaWiki 1.42.1",
			"mainpage":  "Main Page",
			"lang":      "en",
		}}})
	})

	info, err := c.SiteInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Test Wiki", info.SiteName)
	require.Equal(t, "MediaWiki 1.42.1", info.Generator)
	require.Equal(t, "en", info.Language)
}

func TestAPIErrorIsTyped(t *testing.T) {
	fw, c := newFakeWiki(t)
	fw.on("query:tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"error": map[string]string{"code": "readapidenied", "info": "You need read permission."}})
	})

	_, err := c.Tokens(context.Background(), TokenCSRF)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "readapidenied", apiErr.Code)
	require.True(t, IsCode(err, "readapidenied"))
	require.False(t, IsCode(err, "badtoken"))
	require.False(t, IsCode(errors.New("plain"), "readapidenied"))
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Options{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = c.SiteInfo(context.Background())
	require.ErrorContains(t, err, "503")
}

func TestCancelledContext(t *testing.T) {
	_, c := newFakeWiki(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SiteInfo(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoginLogoutAndCookies(t *testing.T) {
	fw, c := newFakeWiki(t)
	fw.on("query:tokens", func(w http.ResponseWriter, r *http.Request) {
		typ := r.Form.Get("type")
		writeJSON(w, map[string]any{"query": map[string]any{"tokens": map[string]string{typ + "token": typ + "-tok+\\"}}})
	})
	fw.on("login", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "login-tok+\\", r.Form.Get("lgtoken"))
		if r.Form.Get("lgpassword") != "hunter2" {
			writeJSON(w, map[string]any{"login": map[string]any{"result": "Failed", "reason": "Incorrect password."}})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "wiki_session", Value: "s3cr3t", Path: "/"})
		writeJSON(w, map[string]any{"login": map[string]any{"result": "Success", "lguserid": 7, "lgusername": "Bot"}})
	})
	fw.on("query:userinfo", func(w http.ResponseWriter, r *http.Request) {
		info := map[string]any{"id": 0, "name": "127.0.0.1", "anon": true}
		if ck, err := r.Cookie("wiki_session"); err == nil && ck.Value == "s3cr3t" {
			info = map[string]any{"id": 7, "name": "Bot"}
		}
		writeJSON(w, map[string]any{"query": map[string]any{"userinfo": info}})
	})
	fw.on("logout", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "csrf-tok+\\", r.Form.Get("token"))
		writeJSON(w, map[string]any{})
	})

	ctx := context.Background()
	token, err := c.Tokens(ctx, TokenLogin)
	require.NoError(t, err)

	_, err = c.Login(ctx, "Bot", "wrong", token)
	require.True(t, IsCode(err, "login-failed"))
	require.ErrorContains(t, err, "Incorrect password.")

	res, err := c.Login(ctx, "Bot", "hunter2", token)
	require.NoError(t, err)
	require.Equal(t, LoginResult{UserID: 7, UserName: "Bot"}, res)

	user, err := c.UserInfo(ctx)
	require.NoError(t, err)
	require.False(t, user.Anonymous)

	// A second client restores the session from exported cookies.
	cookies := c.ExportCookies()
	require.Equal(t, []Cookie{{Name: "wiki_session", Value: "s3cr3t"}}, cookies)

	restored, err := New(Options{Endpoint: c.Endpoint()})
	require.NoError(t, err)
	restored.ImportCookies(cookies)
	user, err = restored.UserInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "Bot", user.Name)

	csrf, err := restored.Tokens(ctx, TokenCSRF)
	require.NoError(t, err)
	require.NoError(t, restored.Logout(ctx, csrf))
	require.Empty(t, restored.ExportCookies())

	user, err = restored.UserInfo(ctx)
	require.NoError(t, err)
	require.True(t, user.Anonymous)
}

func TestQueryPages_PreservesOrderAndResolvesRedirects(t *testing.T) {
	fw, c := newFakeWiki(t)
	fw.on("query:info|revisions|extracts|coordinates", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Old name|main page|Nowhere", r.Form.Get("titles"))
		require.Equal(t, "1", r.Form.Get("redirects"))
		require.Equal(t, "main", r.Form.Get("rvslots"))
		writeJSON(w, map[string]any{"query": map[string]any{
			"normalized": []map[string]string{{"from": "main page", "to": "Main Page"}},
			"redirects":  []map[string]string{{"from": "Old name", "to": "New name"}},
			"pages": []map[string]any{
				{"pageid": 1, "ns": 0, "title": "Main Page", "lastrevid": 10,
					"revisions": []map[string]any{{"slots": map[string]any{"main": map[string]any{"content": "Welcome"}}}},
					"extract":   "Welcome to the wiki.",
					"coordinates": []map[string]any{
						{"lat": 1.5, "lon": 2.5, "primary": false},
						{"lat": 51.5, "lon": -0.1, "primary": true},
					}},
				{"pageid": 2, "ns": 0, "title": "New name"},
				{"ns": 0, "title": "Nowhere", "missing": true},
			},
		}})
	})

	pages, err := c.QueryPages(context.Background(), []string{"Old name", "main page", "Nowhere"}, PageQueryOptions{
		Content: true, ResolveRedirects: true, Extract: true, GeoCoordinate: true,
	})
	require.NoError(t, err)
	require.Len(t, pages, 3)

	require.Equal(t, "New name", pages[0].Title)
	require.Equal(t, "Old name", pages[0].RedirectFrom)

	require.Equal(t, "Main Page", pages[1].Title)
	require.Equal(t, "Welcome", pages[1].Content)
	require.Equal(t, "Welcome to the wiki.", pages[1].Extract)
	require.NotNil(t, pages[1].Coordinates)
	require.Equal(t, 51.5, pages[1].Coordinates.Lat)

	require.True(t, pages[2].Missing)
}

func TestQueryPages_Batches(t *testing.T) {
	fw, c := newFakeWiki(t)
	calls := 0
	fw.on("query:info", func(w http.ResponseWriter, r *http.Request) {
		calls++
		var pages []map[string]any
		for _, title := range strings.Split(r.Form.Get("titles"), "|") {
			pages = append(pages, map[string]any{"ns": 0, "title": title, "missing": true})
		}
		writeJSON(w, map[string]any{"query": map[string]any{"pages": pages}})
	})

	titles := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		titles = append(titles, "Page "+strings.Repeat("x", i%7)+string(rune('A'+i%26))+string(rune('a'+i/26)))
	}
	pages, err := c.QueryPages(context.Background(), titles, PageQueryOptions{})
	require.NoError(t, err)
	require.Len(t, pages, 120)
	require.Equal(t, 3, calls)
	for i, p := range pages {
		require.Equal(t, titles[i], p.Title)
	}
}

func TestEditMoveDelete(t *testing.T) {
	fw, c := newFakeWiki(t)
	fw.on("edit", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Sandbox", r.Form.Get("title"))
		require.Equal(t, "hello", r.Form.Get("text"))
		require.Equal(t, "1", r.Form.Get("minor"))
		require.Equal(t, "1", r.Form.Get("bot"))
		require.Equal(t, "watch", r.Form.Get("watchlist"))
		writeJSON(w, map[string]any{"edit": map[string]any{
			"result": "Success", "pageid": 3, "title": "Sandbox", "oldrevid": 1, "newrevid": 2,
		}})
	})
	fw.on("move", func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Form.Get("movetalk"), "leave-talk suppresses movetalk")
		require.Equal(t, "1", r.Form.Get("noredirect"))
		require.Equal(t, "preferences", r.Form.Get("watchlist"))
		writeJSON(w, map[string]any{"move": map[string]any{"from": "A", "to": "B", "reason": "tidy"}})
	})
	fw.on("delete", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"delete": map[string]any{"title": r.Form.Get("title"), "logid": 99}})
	})

	ctx := context.Background()
	edit, err := c.Edit(ctx, EditRequest{Title: "Sandbox", Text: "hello", Minor: true, Bot: true, Watch: WatchWatch, Token: "t"})
	require.NoError(t, err)
	require.Equal(t, int64(2), edit.NewRevision)

	move, err := c.Move(ctx, MoveRequest{From: "A", To: "B", Reason: "tidy", LeaveTalk: true, NoRedirect: true, Token: "t"})
	require.NoError(t, err)
	require.Equal(t, "B", move.To)

	del, err := c.Delete(ctx, DeleteRequest{Title: "B", Token: "t"})
	require.NoError(t, err)
	require.Equal(t, int64(99), del.LogID)
}

func TestEdit_FailedResult(t *testing.T) {
	fw, c := newFakeWiki(t)
	fw.on("edit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"edit": map[string]any{"result": "Failure", "title": "Sandbox"}})
	})

	_, err := c.Edit(context.Background(), EditRequest{Title: "Sandbox", Token: "t"})
	require.True(t, IsCode(err, "edit-failure"))
}

func TestUpload(t *testing.T) {
	fw, c := newFakeWiki(t)
	fw.on("upload", func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.Equal(t, "Logo.png", r.Form.Get("filename"))
		require.Equal(t, "1", r.Form.Get("ignorewarnings"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		require.Equal(t, "Logo.png", hdr.Filename)
		require.Equal(t, "PNGDATA", string(body))
		writeJSON(w, map[string]any{"upload": map[string]any{
			"result": "Warning", "filename": "Logo.png",
			"warnings": map[string]any{"exists": "Logo.png", "duplicate": []string{"Other.png"}},
		}})
	})

	res, err := c.Upload(context.Background(), UploadRequest{
		Filename: "Logo.png", IgnoreWarning: true, Token: "t", Content: strings.NewReader("PNGDATA"),
	})
	require.NoError(t, err)
	require.Equal(t, "Warning", res.Result)
	require.Equal(t, []string{"duplicate", "exists"}, res.WarningKeys())
}

func TestSearch(t *testing.T) {
	fw, c := newFakeWiki(t)
	fw.on("query:search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "golang", r.Form.Get("srsearch"))
		require.Equal(t, "2", r.Form.Get("srlimit"))
		writeJSON(w, map[string]any{"query": map[string]any{"search": []map[string]any{
			{"ns": 0, "title": "Go (programming language)", "pageid": 1, "wordcount": 5000},
			{"ns": 0, "title": "Gopher", "pageid": 2},
		}}})
	})

	hits, err := c.Search(context.Background(), "golang", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "Gopher", hits[1].Title)
}

func TestParseWatchBehavior(t *testing.T) {
	cases := map[string]WatchBehavior{
		"":        WatchDefault,
		"Default": WatchDefault,
		"WATCH":   WatchWatch,
		"unwatch": WatchUnwatch,
		" None ":  WatchNone,
	}
	for in, want := range cases {
		got, err := ParseWatchBehavior(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseWatchBehavior("sometimes")
	require.ErrorContains(t, err, "invalid watch behavior")
}
