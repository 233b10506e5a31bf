package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// WatchBehavior controls how an edit changes the user's watchlist.
type WatchBehavior string

const (
	WatchDefault WatchBehavior = "preferences"
	WatchWatch   WatchBehavior = "watch"
	WatchUnwatch WatchBehavior = "unwatch"
	WatchNone    WatchBehavior = "nochange"
)

// ParseWatchBehavior accepts watch, unwatch, none or default in any case. An
// empty string means default.
func ParseWatchBehavior(s string) (WatchBehavior, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return WatchDefault, nil
	case "watch":
		return WatchWatch, nil
	case "unwatch":
		return WatchUnwatch, nil
	case "none":
		return WatchNone, nil
	default:
		return "", fmt.Errorf("invalid watch behavior %q (want watch, unwatch, none or default)", s)
	}
}

// EditRequest replaces the content of one page.
type EditRequest struct {
	Title   string
	Text    string
	Summary string
	Minor   bool
	Bot     bool
	Watch   WatchBehavior
	Token   string
}

// EditResult reports a saved edit. NoChange is set when the text was already
// current.
type EditResult struct {
	Result      string `json:"result" yaml:"result"`
	PageID      int64  `json:"pageid" yaml:"pageid"`
	Title       string `json:"title" yaml:"title"`
	OldRevision int64  `json:"oldrevid,omitempty" yaml:"oldrevid,omitempty"`
	NewRevision int64  `json:"newrevid,omitempty" yaml:"newrevid,omitempty"`
	NoChange    bool   `json:"nochange,omitempty" yaml:"nochange,omitempty"`
}

// Edit saves req.Text to req.Title.
func (c *Client) Edit(ctx context.Context, req EditRequest) (EditResult, error) {
	params := url.Values{
		"title":     {req.Title},
		"text":      {req.Text},
		"summary":   {req.Summary},
		"watchlist": {string(orDefault(req.Watch))},
		"token":     {req.Token},
	}
	if req.Minor {
		params.Set("minor", "1")
	} else {
		params.Set("notminor", "1")
	}
	if req.Bot {
		params.Set("bot", "1")
	}

	var resp struct {
		Edit EditResult `json:"edit"`
	}
	if err := c.post(ctx, "edit", params, &resp); err != nil {
		return EditResult{}, err
	}
	if resp.Edit.Result != "Success" {
		return resp.Edit, &APIError{Code: "edit-" + strings.ToLower(resp.Edit.Result), Info: "edit was not saved"}
	}
	return resp.Edit, nil
}

// MoveRequest renames a page.
type MoveRequest struct {
	From          string
	To            string
	Reason        string
	IgnoreWarning bool
	MoveSubpages  bool
	LeaveTalk     bool
	NoRedirect    bool
	Watch         WatchBehavior
	Token         string
}

// MoveResult reports a completed move.
type MoveResult struct {
	From     string `json:"from" yaml:"from"`
	To       string `json:"to" yaml:"to"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
	TalkFrom string `json:"talkfrom,omitempty" yaml:"talkfrom,omitempty"`
	TalkTo   string `json:"talkto,omitempty" yaml:"talkto,omitempty"`
}

// Move renames req.From to req.To.
func (c *Client) Move(ctx context.Context, req MoveRequest) (MoveResult, error) {
	params := url.Values{
		"from":      {req.From},
		"to":        {req.To},
		"reason":    {req.Reason},
		"watchlist": {string(orDefault(req.Watch))},
		"token":     {req.Token},
	}
	if !req.LeaveTalk {
		params.Set("movetalk", "1")
	}
	if req.MoveSubpages {
		params.Set("movesubpages", "1")
	}
	if req.NoRedirect {
		params.Set("noredirect", "1")
	}
	if req.IgnoreWarning {
		params.Set("ignorewarnings", "1")
	}

	var resp struct {
		Move MoveResult `json:"move"`
	}
	if err := c.post(ctx, "move", params, &resp); err != nil {
		return MoveResult{}, err
	}
	return resp.Move, nil
}

// DeleteRequest deletes one page.
type DeleteRequest struct {
	Title  string
	Reason string
	Watch  WatchBehavior
	Token  string
}

// DeleteResult reports a deletion.
type DeleteResult struct {
	Title  string `json:"title" yaml:"title"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	LogID  int64  `json:"logid" yaml:"logid"`
}

// Delete removes req.Title.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	params := url.Values{
		"title":     {req.Title},
		"reason":    {req.Reason},
		"watchlist": {string(orDefault(req.Watch))},
		"token":     {req.Token},
	}
	var resp struct {
		Delete DeleteResult `json:"delete"`
	}
	if err := c.post(ctx, "delete", params, &resp); err != nil {
		return DeleteResult{}, err
	}
	return resp.Delete, nil
}

// SearchHit is one full-text search result.
type SearchHit struct {
	Namespace int    `json:"ns" yaml:"ns"`
	Title     string `json:"title" yaml:"title"`
	PageID    int64  `json:"pageid" yaml:"pageid"`
	Size      int    `json:"size" yaml:"size"`
	WordCount int    `json:"wordcount" yaml:"wordcount"`
	Snippet   string `json:"snippet" yaml:"snippet"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
}

// Search runs list=search. limit <= 0 uses the API default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	params := url.Values{"list": {"search"}, "srsearch": {query}}
	if limit > 0 {
		params.Set("srlimit", strconv.Itoa(limit))
	}
	var resp struct {
		Query struct {
			Search []SearchHit `json:"search"`
		} `json:"query"`
	}
	if err := c.get(ctx, "query", params, &resp); err != nil {
		return nil, err
	}
	return resp.Query.Search, nil
}

func orDefault(w WatchBehavior) WatchBehavior {
	if w == "" {
		return WatchDefault
	}
	return w
}
