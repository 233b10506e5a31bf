package wiki

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/zjrosen/wikictl/internal/log"
)

// ErrEndpointNotFound is returned by DiscoverEndpoint when neither the URL nor
// the page it serves points to an API endpoint.
var ErrEndpointNotFound = errors.New("wiki: no API endpoint found")

// maxDiscoveryBody caps how much HTML is read while looking for the RSD link.
const maxDiscoveryBody = 2 << 20

// DiscoverEndpoint finds the api.php URL for a wiki, given either the
// endpoint itself or any page URL on the wiki. Page URLs are resolved through
// the EditURI (RSD) link MediaWiki emits in the page head.
func DiscoverEndpoint(ctx context.Context, startURL string, opts Options) (string, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", startURL, err)
	}
	if start.Scheme == "" {
		start, err = url.Parse("https://" + startURL)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", startURL, err)
		}
	}

	if strings.HasSuffix(start.Path, "api.php") {
		candidate := *start
		candidate.RawQuery = ""
		if probeEndpoint(ctx, candidate.String(), opts) {
			return candidate.String(), nil
		}
	}

	client := &http.Client{Timeout: opts.Timeout, Transport: opts.Transport}
	if client.Timeout <= 0 {
		client.Timeout = DefaultTimeout
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, start.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build discovery request: %w", err)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", start, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected HTTP status %s", start, resp.Status)
	}

	href, ok := findEditURI(io.LimitReader(resp.Body, maxDiscoveryBody))
	if !ok {
		return "", ErrEndpointNotFound
	}
	// The response URL, not the start URL, is the base after redirects.
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse EditURI %q: %w", href, err)
	}
	endpoint := resp.Request.URL.ResolveReference(ref)
	endpoint.RawQuery = ""
	endpoint.Fragment = ""

	log.Debug(log.CatWiki, "Discovered API endpoint", "start", startURL, "endpoint", endpoint)
	return endpoint.String(), nil
}

func probeEndpoint(ctx context.Context, endpoint string, opts Options) bool {
	opts.Endpoint = endpoint
	c, err := New(opts)
	if err != nil {
		return false
	}
	_, err = c.SiteInfo(ctx)
	return err == nil
}

// findEditURI returns the href of <link rel="EditURI">.
func findEditURI(r io.Reader) (string, bool) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data == "body" {
				return "", false
			}
			if tok.Data != "link" {
				continue
			}
			var rel, href string
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "rel":
					rel = a.Val
				case "href":
					href = a.Val
				}
			}
			if strings.EqualFold(rel, "EditURI") && href != "" {
				return href, true
			}
		}
	}
}
