package testutil

import (
	"crypto/sha1" //nolint:gosec // mirrors the wiki's file hash
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// APIPath is where the fake serves api.php.
	APIPath = "/w/api.php"

	// SessionCookie names the fake's session cookie.
	SessionCookie = "testwiki_session"

	anonToken  = "+\\"
	loginToken = "login+\\"
)

// FakeWiki is a stateful, in-memory MediaWiki action API.
type FakeWiki struct {
	server   *httptest.Server
	siteName string

	mu       sync.Mutex
	pages    map[string]*pageData
	users    map[string]userData
	sessions map[string]string // session id -> user name
	files    map[string][]byte
	epoch    int
	nextID   int64
	nextRev  int64
	nextLog  int64
	requests map[string]int
}

func newFakeWiki(siteName string) *FakeWiki {
	return &FakeWiki{
		siteName: siteName,
		pages:    make(map[string]*pageData),
		users:    make(map[string]userData),
		sessions: make(map[string]string),
		files:    make(map[string][]byte),
		requests: make(map[string]int),
	}
}

// URL is the server's base URL.
func (f *FakeWiki) URL() string { return f.server.URL }

// Endpoint is the api.php URL.
func (f *FakeWiki) Endpoint() string { return f.server.URL + APIPath }

// ArticleURL is the HTML URL of title.
func (f *FakeWiki) ArticleURL(title string) string {
	return f.server.URL + "/wiki/" + strings.ReplaceAll(title, " ", "_")
}

// PageText returns the current wikitext of title.
func (f *FakeWiki) PageText(title string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[title]
	if !ok {
		return "", false
	}
	return p.text, true
}

// File returns an uploaded file's bytes.
func (f *FakeWiki) File(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	return data, ok
}

// Requests counts the API requests seen for key: the action, or
// "query:<meta|list|prop>" for queries.
func (f *FakeWiki) Requests(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

// ExpireTokens invalidates every issued CSRF token, so the next write
// fails with badtoken until a fresh token is fetched.
func (f *FakeWiki) ExpireTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch++
}

func (f *FakeWiki) addPage(p pageData) {
	f.nextID++
	f.nextRev++
	p.id = f.nextID
	p.revision = f.nextRev
	f.pages[p.title] = &p
}

// apiError is a MediaWiki error body.
type apiError struct {
	code, info string
}

func (f *FakeWiki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == APIPath:
		f.serveAPI(w, r)
	case strings.HasPrefix(r.URL.Path, "/wiki/"):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>%s</title>
<link rel="EditURI" type="application/rsd+xml" href="%s?action=rsd">
</head><body><h1>%s</h1></body></html>`, f.siteName, APIPath, strings.TrimPrefix(r.URL.Path, "/wiki/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeWiki) serveAPI(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Form.Get("format") != "json" || r.Form.Get("formatversion") != "2" {
		http.Error(w, "format=json&formatversion=2 required", http.StatusBadRequest)
		return
	}

	action := r.Form.Get("action")
	key := action
	if action == "query" {
		key += ":" + r.Form.Get("meta") + r.Form.Get("list") + r.Form.Get("prop")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[key]++

	session := ""
	if ck, err := r.Cookie(SessionCookie); err == nil {
		if _, ok := f.sessions[ck.Value]; ok {
			session = ck.Value
		}
	}

	var (
		body any
		aerr *apiError
	)
	switch action {
	case "query":
		body, aerr = f.query(r, session)
	case "login":
		body, aerr = f.login(w, r)
	case "logout":
		body, aerr = f.logout(w, r, session)
	case "edit":
		body, aerr = f.edit(r, session)
	case "move":
		body, aerr = f.move(r, session)
	case "delete":
		body, aerr = f.delete(r, session)
	case "upload":
		body, aerr = f.upload(r, session)
	default:
		aerr = &apiError{"badvalue", fmt.Sprintf("Unrecognized value for parameter \"action\": %s.", action)}
	}
	if aerr != nil {
		body = map[string]any{"error": map[string]string{"code": aerr.code, "info": aerr.info}}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *FakeWiki) csrfToken(session string) string {
	if session == "" {
		return anonToken
	}
	return fmt.Sprintf("%s-%d%s", session, f.epoch, anonToken)
}

func (f *FakeWiki) checkToken(r *http.Request, session string) *apiError {
	if r.Form.Get("token") != f.csrfToken(session) {
		return &apiError{"badtoken", "Invalid CSRF token."}
	}
	return nil
}

func (f *FakeWiki) requireUser(session string) *apiError {
	if session == "" {
		return &apiError{"permissiondenied", "You don't have permission to do that."}
	}
	return nil
}

func (f *FakeWiki) query(r *http.Request, session string) (any, *apiError) {
	switch {
	case r.Form.Get("meta") == "siteinfo":
		return map[string]any{"query": map[string]any{"general": map[string]any{
			"sitename":    f.siteName,
			"generator":   "MediaWiki 1.42.1",
			"mainpage":    "Main Page",
			"base":        f.server.URL + "/wiki/Main_Page",
			"lang":        "en",
			"server":      f.server.URL,
			"articlepath": "/wiki/$1",
			"scriptpath":  "/w",
		}}}, nil
	case r.Form.Get("meta") == "userinfo":
		info := map[string]any{"id": 0, "name": "127.0.0.1", "anon": true}
		if session != "" {
			u := f.users[f.sessions[session]]
			info = map[string]any{"id": u.id, "name": u.name}
		}
		return map[string]any{"query": map[string]any{"userinfo": info}}, nil
	case r.Form.Get("meta") == "tokens":
		typ := r.Form.Get("type")
		token := f.csrfToken(session)
		if typ == "login" {
			token = loginToken
		}
		return map[string]any{"query": map[string]any{"tokens": map[string]string{typ + "token": token}}}, nil
	case r.Form.Get("list") == "search":
		return map[string]any{"query": map[string]any{"search": f.search(r.Form.Get("srsearch"), r.Form.Get("srlimit"))}}, nil
	case r.Form.Get("prop") != "":
		return f.queryPages(r), nil
	}
	return nil, &apiError{"badvalue", "unsupported query"}
}

func (f *FakeWiki) queryPages(r *http.Request) any {
	props := strings.Split(r.Form.Get("prop"), "|")
	has := func(prop string) bool { return slices.Contains(props, prop) }

	var redirects []map[string]string
	var pages []map[string]any
	seen := map[string]bool{}
	for _, title := range strings.Split(r.Form.Get("titles"), "|") {
		p, ok := f.pages[title]
		if ok && p.redirectTo != "" && r.Form.Get("redirects") == "1" {
			redirects = append(redirects, map[string]string{"from": title, "to": p.redirectTo})
			title = p.redirectTo
			p, ok = f.pages[title]
		}
		if seen[title] {
			continue
		}
		seen[title] = true
		if !ok {
			pages = append(pages, map[string]any{"ns": 0, "title": title, "missing": true})
			continue
		}
		page := map[string]any{
			"pageid":    p.id,
			"ns":        0,
			"title":     p.title,
			"lastrevid": p.revision,
			"length":    len(p.text),
			"touched":   "2026-01-01T00:00:00Z",
		}
		if has("revisions") {
			page["revisions"] = []map[string]any{{
				"revid": p.revision,
				"slots": map[string]any{"main": map[string]any{"content": p.text}},
			}}
		}
		if has("extracts") && p.extract != "" {
			page["extract"] = p.extract
		}
		if has("coordinates") && p.coordinates != nil {
			page["coordinates"] = []map[string]any{{"lat": p.coordinates[0], "lon": p.coordinates[1], "primary": true}}
		}
		pages = append(pages, page)
	}

	query := map[string]any{"pages": pages}
	if len(redirects) > 0 {
		query["redirects"] = redirects
	}
	return map[string]any{"query": query}
}

func (f *FakeWiki) search(query, limit string) []map[string]any {
	titles := make([]string, 0, len(f.pages))
	for title := range f.pages {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	maxHits := 10
	if n, err := fmt.Sscan(limit, &maxHits); n != 1 || err != nil {
		maxHits = 10
	}
	q := strings.ToLower(query)
	hits := []map[string]any{}
	for _, title := range titles {
		p := f.pages[title]
		if p.redirectTo != "" || !strings.Contains(strings.ToLower(p.title+" "+p.text), q) {
			continue
		}
		if len(hits) == maxHits {
			break
		}
		hits = append(hits, map[string]any{
			"ns":        0,
			"title":     p.title,
			"pageid":    p.id,
			"size":      len(p.text),
			"wordcount": len(strings.Fields(p.text)),
			"snippet":   `<span class="searchmatch">` + query + `</span>`,
		})
	}
	return hits
}

func (f *FakeWiki) login(w http.ResponseWriter, r *http.Request) (any, *apiError) {
	if r.Method != http.MethodPost {
		return nil, &apiError{"mustbeposted", "The login module requires a POST request."}
	}
	if r.Form.Get("lgtoken") != loginToken {
		return map[string]any{"login": map[string]any{"result": "WrongToken"}}, nil
	}
	u, ok := f.users[r.Form.Get("lgname")]
	if !ok || u.password != r.Form.Get("lgpassword") {
		return map[string]any{"login": map[string]any{
			"result": "Failed",
			"reason": "Incorrect username or password entered. Please try again.",
		}}, nil
	}
	session := uuid.NewString()
	f.sessions[session] = u.name
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: session, Path: "/", HttpOnly: true})
	return map[string]any{"login": map[string]any{"result": "Success", "lguserid": u.id, "lgusername": u.name}}, nil
}

func (f *FakeWiki) logout(w http.ResponseWriter, r *http.Request, session string) (any, *apiError) {
	if aerr := f.checkToken(r, session); aerr != nil {
		return nil, aerr
	}
	delete(f.sessions, session)
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	return map[string]any{}, nil
}

func (f *FakeWiki) edit(r *http.Request, session string) (any, *apiError) {
	if aerr := f.checkToken(r, session); aerr != nil {
		return nil, aerr
	}
	title, text := r.Form.Get("title"), r.Form.Get("text")
	if title == "" {
		return nil, &apiError{"missingtitle", "The page you specified doesn't exist."}
	}

	p, ok := f.pages[title]
	switch {
	case ok && p.text == text:
		return map[string]any{"edit": map[string]any{
			"result": "Success", "pageid": p.id, "title": title, "nochange": true,
		}}, nil
	case !ok:
		f.addPage(pageData{title: title, text: text})
		p = f.pages[title]
		return map[string]any{"edit": map[string]any{
			"result": "Success", "pageid": p.id, "title": title, "oldrevid": 0, "newrevid": p.revision, "new": true,
		}}, nil
	}
	old := p.revision
	f.nextRev++
	p.revision = f.nextRev
	p.text = text
	p.redirectTo = ""
	return map[string]any{"edit": map[string]any{
		"result": "Success", "pageid": p.id, "title": title, "oldrevid": old, "newrevid": p.revision,
	}}, nil
}

func (f *FakeWiki) move(r *http.Request, session string) (any, *apiError) {
	if aerr := f.requireUser(session); aerr != nil {
		return nil, aerr
	}
	if aerr := f.checkToken(r, session); aerr != nil {
		return nil, aerr
	}
	from, to := r.Form.Get("from"), r.Form.Get("to")
	p, ok := f.pages[from]
	if !ok {
		return nil, &apiError{"missingtitle", "The page you specified doesn't exist."}
	}
	if _, exists := f.pages[to]; exists {
		return nil, &apiError{"articleexists", "A page of that name already exists."}
	}
	delete(f.pages, from)
	p.title = to
	f.pages[to] = p
	if r.Form.Get("noredirect") != "1" {
		f.addPage(pageData{title: from, redirectTo: to, text: "#REDIRECT [[" + to + "]]"})
	}
	return map[string]any{"move": map[string]any{"from": from, "to": to, "reason": r.Form.Get("reason")}}, nil
}

func (f *FakeWiki) delete(r *http.Request, session string) (any, *apiError) {
	if aerr := f.requireUser(session); aerr != nil {
		return nil, aerr
	}
	if aerr := f.checkToken(r, session); aerr != nil {
		return nil, aerr
	}
	title := r.Form.Get("title")
	if _, ok := f.pages[title]; !ok {
		return nil, &apiError{"missingtitle", "The page you specified doesn't exist."}
	}
	delete(f.pages, title)
	f.nextLog++
	return map[string]any{"delete": map[string]any{"title": title, "reason": r.Form.Get("reason"), "logid": f.nextLog}}, nil
}

func (f *FakeWiki) upload(r *http.Request, session string) (any, *apiError) {
	if aerr := f.requireUser(session); aerr != nil {
		return nil, aerr
	}
	if aerr := f.checkToken(r, session); aerr != nil {
		return nil, aerr
	}
	name := r.Form.Get("filename")
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, &apiError{"missingparam", "One of the parameters file, filekey or url is required."}
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &apiError{"internal_api_error", err.Error()}
	}

	if _, exists := f.files[name]; exists && r.Form.Get("ignorewarnings") != "1" {
		return map[string]any{"upload": map[string]any{
			"result": "Warning", "filename": name, "warnings": map[string]any{"exists": name},
		}}, nil
	}
	f.files[name] = data
	sum := sha1.Sum(data) //nolint:gosec // mirrors the wiki's file hash
	return map[string]any{"upload": map[string]any{
		"result":   "Success",
		"filename": name,
		"imageinfo": map[string]any{
			"url":  f.server.URL + "/images/" + name,
			"size": len(data),
			"sha1": hex.EncodeToString(sum[:]),
		},
	}}, nil
}
