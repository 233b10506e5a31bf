package wiki

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SiteInfo is the general site metadata.
type SiteInfo struct {
	SiteName    string `json:"sitename" yaml:"sitename"`
	Generator   string `json:"generator" yaml:"generator"`
	MainPage    string `json:"mainpage" yaml:"mainpage"`
	Base        string `json:"base" yaml:"base"`
	Language    string `json:"lang" yaml:"lang"`
	Server      string `json:"server" yaml:"server"`
	ArticlePath string `json:"articlepath" yaml:"articlepath"`
	ScriptPath  string `json:"scriptpath" yaml:"scriptpath"`
}

// UserInfo identifies the current session's user.
type UserInfo struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Anonymous bool   `json:"anon,omitempty" yaml:"anon,omitempty"`
}

// Token types understood by Tokens.
const (
	TokenCSRF  = "csrf"
	TokenLogin = "login"
	TokenWatch = "watch"
)

// SiteInfo fetches meta=siteinfo.
func (c *Client) SiteInfo(ctx context.Context) (SiteInfo, error) {
	var resp struct {
		Query struct {
			General SiteInfo `json:"general"`
		} `json:"query"`
	}
	params := url.Values{"meta": {"siteinfo"}, "siprop": {"general"}}
	if err := c.get(ctx, "query", params, &resp); err != nil {
		return SiteInfo{}, err
	}
	return resp.Query.General, nil
}

// UserInfo fetches meta=userinfo for the current session.
func (c *Client) UserInfo(ctx context.Context) (UserInfo, error) {
	var resp struct {
		Query struct {
			UserInfo UserInfo `json:"userinfo"`
		} `json:"query"`
	}
	if err := c.get(ctx, "query", url.Values{"meta": {"userinfo"}}, &resp); err != nil {
		return UserInfo{}, err
	}
	return resp.Query.UserInfo, nil
}

// Tokens fetches one token of the given type.
func (c *Client) Tokens(ctx context.Context, tokenType string) (string, error) {
	var resp struct {
		Query struct {
			Tokens map[string]string `json:"tokens"`
		} `json:"query"`
	}
	params := url.Values{"meta": {"tokens"}, "type": {tokenType}}
	if err := c.get(ctx, "query", params, &resp); err != nil {
		return "", err
	}
	token, ok := resp.Query.Tokens[tokenType+"token"]
	if !ok || token == "" {
		return "", fmt.Errorf("wiki: no %s token in response", tokenType)
	}
	return token, nil
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	UserID   int64  `json:"lguserid" yaml:"user_id"`
	UserName string `json:"lgusername" yaml:"user_name"`
}

// Login signs in with a bot password or main account credentials. token must
// be a login token from the same session.
func (c *Client) Login(ctx context.Context, user, password, token string) (LoginResult, error) {
	var resp struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
			LoginResult
		} `json:"login"`
	}
	params := url.Values{
		"lgname":     {user},
		"lgpassword": {password},
		"lgtoken":    {token},
	}
	if err := c.post(ctx, "login", params, &resp); err != nil {
		return LoginResult{}, err
	}
	if !strings.EqualFold(resp.Login.Result, "Success") {
		return LoginResult{}, &APIError{Code: "login-" + strings.ToLower(resp.Login.Result), Info: resp.Login.Reason}
	}
	return resp.Login.LoginResult, nil
}

// Logout ends the session and clears session cookies.
func (c *Client) Logout(ctx context.Context, csrfToken string) error {
	if err := c.post(ctx, "logout", url.Values{"token": {csrfToken}}, nil); err != nil {
		return err
	}
	c.jar.SetCookies(c.endpoint, expireAll(c.jar.Cookies(c.endpoint)))
	return nil
}

// Cookie is a persisted session cookie.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExportCookies returns the cookies the jar would send to the endpoint.
func (c *Client) ExportCookies() []Cookie {
	jarred := c.jar.Cookies(c.endpoint)
	out := make([]Cookie, 0, len(jarred))
	for _, ck := range jarred {
		out = append(out, Cookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

// ImportCookies loads previously exported cookies for the endpoint.
func (c *Client) ImportCookies(cookies []Cookie) {
	if len(cookies) == 0 {
		return
	}
	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	c.jar.SetCookies(c.endpoint, httpCookies)
}

func expireAll(cookies []*http.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, &http.Cookie{Name: ck.Name, Path: "/", MaxAge: -1})
	}
	return out
}
