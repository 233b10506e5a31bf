package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// maxTitlesPerQuery is the API's titles limit for non-bot accounts.
const maxTitlesPerQuery = 50

// PageQueryOptions selects the page properties fetched by QueryPages.
type PageQueryOptions struct {
	Content          bool
	ResolveRedirects bool
	Extract          bool
	GeoCoordinate    bool
}

// Coordinate is a geographic coordinate attached to a page.
type Coordinate struct {
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
	Primary bool    `json:"primary" yaml:"primary"`
}

// Page is one page returned by QueryPages.
type Page struct {
	ID           int64       `json:"pageid,omitempty" yaml:"pageid,omitempty"`
	Namespace    int         `json:"ns" yaml:"ns"`
	Title        string      `json:"title" yaml:"title"`
	Missing      bool        `json:"missing,omitempty" yaml:"missing,omitempty"`
	Invalid      bool        `json:"invalid,omitempty" yaml:"invalid,omitempty"`
	LastRevision int64       `json:"lastrevid,omitempty" yaml:"lastrevid,omitempty"`
	Length       int         `json:"length,omitempty" yaml:"length,omitempty"`
	Touched      string      `json:"touched,omitempty" yaml:"touched,omitempty"`
	RedirectFrom string      `json:"redirect_from,omitempty" yaml:"redirect_from,omitempty"`
	Content      string      `json:"content,omitempty" yaml:"content,omitempty"`
	Extract      string      `json:"extract,omitempty" yaml:"extract,omitempty"`
	Coordinates  *Coordinate `json:"coordinates,omitempty" yaml:"coordinates,omitempty"`
}

type rawPage struct {
	Page
	Revisions []struct {
		Slots struct {
			Main struct {
				Content string `json:"content"`
			} `json:"main"`
		} `json:"slots"`
	} `json:"revisions"`
	RawCoordinates []Coordinate `json:"coordinates"`
}

// QueryPages fetches titles in request order. Missing pages are returned with
// Missing set rather than as an error.
func (c *Client) QueryPages(ctx context.Context, titles []string, opts PageQueryOptions) ([]Page, error) {
	out := make([]Page, 0, len(titles))
	for start := 0; start < len(titles); start += maxTitlesPerQuery {
		end := min(start+maxTitlesPerQuery, len(titles))
		batch, err := c.queryBatch(ctx, titles[start:end], opts)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) queryBatch(ctx context.Context, titles []string, opts PageQueryOptions) ([]Page, error) {
	props := []string{"info"}
	params := url.Values{"titles": {strings.Join(titles, "|")}}
	if opts.Content {
		props = append(props, "revisions")
		params.Set("rvprop", "content|ids|timestamp")
		params.Set("rvslots", "main")
	}
	if opts.Extract {
		props = append(props, "extracts")
		params.Set("exintro", "1")
		params.Set("explaintext", "1")
		params.Set("exsentences", "1")
	}
	if opts.GeoCoordinate {
		props = append(props, "coordinates")
	}
	if opts.ResolveRedirects {
		params.Set("redirects", "1")
	}
	params.Set("prop", strings.Join(props, "|"))

	var resp struct {
		Query struct {
			Normalized []titleMapping `json:"normalized"`
			Redirects  []titleMapping `json:"redirects"`
			Pages      []rawPage      `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, "query", params, &resp); err != nil {
		return nil, err
	}

	byTitle := make(map[string]rawPage, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		byTitle[p.Title] = p
	}
	normalized := mappingIndex(resp.Query.Normalized)
	redirects := mappingIndex(resp.Query.Redirects)

	pages := make([]Page, 0, len(titles))
	for _, title := range titles {
		resolved := title
		if to, ok := normalized[resolved]; ok {
			resolved = to
		}
		redirectFrom := ""
		if to, ok := redirects[resolved]; ok {
			redirectFrom = resolved
			resolved = to
		}
		raw, ok := byTitle[resolved]
		if !ok {
			return nil, fmt.Errorf("wiki: page %q missing from query response", title)
		}
		page := raw.Page
		page.RedirectFrom = redirectFrom
		if len(raw.Revisions) > 0 {
			page.Content = raw.Revisions[0].Slots.Main.Content
		}
		for i := range raw.RawCoordinates {
			if raw.RawCoordinates[i].Primary || page.Coordinates == nil {
				page.Coordinates = &raw.RawCoordinates[i]
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

type titleMapping struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func mappingIndex(ms []titleMapping) map[string]string {
	idx := make(map[string]string, len(ms))
	for _, m := range ms {
		idx[m.From] = m.To
	}
	return idx
}
