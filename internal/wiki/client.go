// Package wiki is a small client for the MediaWiki action API.
//
// Every method blocks until the response is decoded and honours ctx. The
// client keeps a cookie jar so a login survives across calls, and the jar can
// be exported for persistence between runs.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/net/publicsuffix"

	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/tracing"
)

const (
	DefaultUserAgent = "wikictl/0.1 (https://github.com/zjrosen/wikictl)"
	DefaultTimeout   = time.Minute
)

// ErrNotLoggedIn is returned by operations that need an account when the
// session is anonymous.
var ErrNotLoggedIn = errors.New("wiki: not logged in")

// APIError is an error reported by the wiki in the response body.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wiki: %s: %s", e.Code, e.Info)
}

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Options configures a Client.
type Options struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration

	// Tracer records one span per API request. Nil disables tracing.
	Tracer trace.Tracer

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to one api.php endpoint.
type Client struct {
	endpoint  *url.URL
	userAgent string
	http      *http.Client
	jar       *cookiejar.Jar
	tracer    trace.Tracer
}

// New creates a client for opts.Endpoint.
func New(opts Options) (*Client, error) {
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an http(s) URL, got %q", opts.Endpoint)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}

	return &Client{
		endpoint:  endpoint,
		userAgent: userAgent,
		http:      &http.Client{Jar: jar, Timeout: timeout, Transport: opts.Transport},
		jar:       jar,
		tracer:    tracer,
	}, nil
}

// Endpoint returns the api.php URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

type envelope struct {
	Error    *APIError       `json:"error"`
	Warnings json.RawMessage `json:"warnings"`
}

// get issues a GET request for action and decodes the body into out.
func (c *Client) get(ctx context.Context, action string, params url.Values, out any) error {
	params = withDefaults(action, params)
	u := *c.endpoint
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	return c.do(ctx, action, req, out)
}

// post issues a form POST for action.
func (c *Client) post(ctx context.Context, action string, params url.Values, out any) error {
	params = withDefaults(action, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, action, req, out)
}

func (c *Client) do(ctx context.Context, action string, req *http.Request, out any) (err error) {
	_, span := c.tracer.Start(ctx, tracing.SpanPrefixWikiAction+action,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(tracing.AttrWikiAction, action),
			attribute.String(tracing.AttrWikiEndpoint, c.endpoint.Host),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int(tracing.AttrWikiStatus, resp.StatusCode))
	log.Debug(log.CatWiki, "API response", "action", action, "method", req.Method,
		"status", resp.StatusCode, "elapsed", time.Since(started))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected HTTP status %s", action, resp.Status)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if env.Error != nil {
		span.SetAttributes(attribute.String(tracing.AttrWikiErrCode, env.Error.Code))
		return env.Error
	}
	if len(env.Warnings) > 0 {
		log.Warn(log.CatWiki, "API warnings", "action", action, "warnings", string(env.Warnings))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}

func withDefaults(action string, params url.Values) url.Values {
	if params == nil {
		params = url.Values{}
	}
	params.Set("action", action)
	params.Set("format", "json")
	params.Set("formatversion", "2")
	return params
}
