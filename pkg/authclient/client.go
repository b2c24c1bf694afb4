// Package authclient talks to the auth service on behalf of a front end. It
// keeps the token pair in a sessioncache.Cache and satisfies guard.Authenticator.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/logger"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/sessioncache"
)

const defaultTimeout = 15 * time.Second

var log = logger.Named("authclient")

// APIError is a non-2xx answer from the auth service. It unwraps to the
// models sentinel named by Code, so errors.Is works across the wire.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth service: %d %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("auth service: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return models.ErrorFromCode(e.Code) }

type rotation struct {
	from string
	to   sessioncache.Entry
}

// Client is safe for concurrent use. Refreshes are serialised and the last
// rotation is remembered, so callers racing on the same refresh token share
// one redemption instead of burning the token twice.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	cache     *sessioncache.Cache
	refreshMu sync.Mutex
	last      rotation
}

func New(baseURL string, cache *sessioncache.Cache) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		cache:      cache,
	}
}

// Cache returns the cache the client reads and writes.
func (c *Client) Cache() *sessioncache.Cache { return c.cache }

type identityView struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

func (v identityView) identity() sessioncache.Identity {
	return sessioncache.Identity{ID: v.ID, Username: v.Username, Role: v.Role}
}

type sessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	Identity     identityView `json:"identity"`
}

func (r sessionResponse) entry() sessioncache.Entry {
	return sessioncache.Entry{
		Identity: r.Identity.identity(),
		Session:  sessioncache.Session{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken, ExpiresAt: r.ExpiresAt},
	}
}

// Login authenticates and caches the new session.
func (c *Client) Login(ctx context.Context, username, password string, rememberMe bool) (sessioncache.Entry, error) {
	body := map[string]interface{}{"username": username, "password": password, "rememberMe": rememberMe}
	var out sessionResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return sessioncache.Entry{}, err
	}
	e := out.entry()
	c.cache.Set(e.Session, e.Identity)
	return e, nil
}

// Logout revokes the cached session on the server and clears the cache. The
// cache is cleared even when the server cannot be reached. A rotation
// remembered before logout is forgotten, so a later refresh of an old token
// goes back to the server.
func (c *Client) Logout(ctx context.Context) error {
	defer func() {
		c.cache.Clear()
		c.forgetRotation()
	}()
	e, ok := c.cache.Get()
	if !ok {
		return nil
	}
	err := c.call(ctx, http.MethodPost, "/auth/logout", e.AccessToken, map[string]string{"refreshToken": e.RefreshToken}, nil)
	if err != nil && !IsAuthError(err) {
		return err
	}
	return nil
}

// Validate asks the service who owns accessToken.
func (c *Client) Validate(ctx context.Context, accessToken string) (sessioncache.Identity, error) {
	var out struct {
		Identity identityView `json:"identity"`
	}
	if err := c.call(ctx, http.MethodGet, "/auth/session", accessToken, nil, &out); err != nil {
		return sessioncache.Identity{}, err
	}
	return out.Identity.identity(), nil
}

// Refresh redeems refreshToken. A token this client has already rotated
// returns the pair it was rotated into.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (sessioncache.Entry, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if c.last.from != "" && c.last.from == refreshToken {
		return c.last.to, nil
	}
	var out sessionResponse
	if err := c.call(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refreshToken}, &out); err != nil {
		return sessioncache.Entry{}, err
	}
	c.last = rotation{from: refreshToken, to: out.entry()}
	return c.last.to, nil
}

func (c *Client) forgetRotation() {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.last = rotation{}
}

// Do sends req with the cached bearer token. On a 401 it refreshes once and
// retries once; the retry's response is returned whatever its status.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	e, ok := c.cache.Get()
	if !ok {
		return nil, models.ErrTokenNotFound
	}
	if err := bufferBody(req); err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, req, e.AccessToken)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	next, err := c.Refresh(ctx, e.RefreshToken)
	if err != nil {
		if models.ErrorCode(err) != "" {
			c.cache.ClearIf(e.AccessToken)
		}
		return nil, err
	}
	if !c.cache.SetIf(e.AccessToken, next.Session, next.Identity) {
		return nil, models.ErrTokenNotFound
	}
	log.Debugf("retrying %s %s after refresh", req.Method, req.URL.Path)
	return c.send(ctx, req, next.AccessToken)
}

func (c *Client) send(ctx context.Context, req *http.Request, bearer string) (*http.Response, error) {
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	out.Header.Set("Authorization", "Bearer "+bearer)
	return c.HTTPClient.Do(out)
}

// bufferBody makes req's body replayable.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	b, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(b))
	return nil
}

func (c *Client) call(ctx context.Context, method, path, bearer string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if jerr := json.Unmarshal(raw, &payload); jerr != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error, Code: payload.Code}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsAuthError reports whether err is a definitive answer from the auth
// service rather than a transport failure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code != ""
}
