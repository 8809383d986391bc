// Package api is the HTTP transport collaborator for the Perch service.
// Every remote operation is exposed as a cancelable async.Result; token
// cancellation aborts the underlying request through its context.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/finch-chat/finch/internal/async"
)

const (
	defaultUserAgent = "finch/0.1"
	requestTimeout   = 15 * time.Second
)

// Client talks to the Perch HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string

	mu    sync.Mutex
	creds *Credentials
}

// NewClient builds a Client for the given service base URL. A bare
// host:port is treated as http.
func NewClient(serviceURL string) (*Client, error) {
	base, err := parseBaseURL(serviceURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// SetCredentials installs the session used to authenticate requests.
// Called only by the session coordinator; nil clears the session.
func (c *Client) SetCredentials(creds *Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

func (c *Client) credentials() *Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// Login exchanges a username and password for session credentials.
func (c *Client) Login(username, password string) *async.Result[*Credentials] {
	return async.New(func(ctl *async.Controller[*Credentials]) (*Credentials, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		body := map[string]string{"username": username, "password": password}
		var creds Credentials
		if err := c.do(ctx, http.MethodPost, "/api/session", body, &creds); err != nil {
			return nil, err
		}
		return &creds, nil
	})
}

// Logout invalidates the current session key on the service.
func (c *Client) Logout() *async.Result[struct{}] {
	return async.New(func(ctl *async.Controller[struct{}]) (struct{}, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()
		return struct{}{}, c.do(ctx, http.MethodDelete, "/api/session", nil, nil)
	})
}

// CreateAccount registers a new account and returns its credentials.
func (c *Client) CreateAccount(account NewAccount) *async.Result[*Credentials] {
	return async.New(func(ctl *async.Controller[*Credentials]) (*Credentials, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		var creds Credentials
		if err := c.do(ctx, http.MethodPost, "/api/accounts", account, &creds); err != nil {
			return nil, err
		}
		return &creds, nil
	})
}

// GetAuthenticatedUser fetches the account behind the current session.
// It doubles as session validation during restore.
func (c *Client) GetAuthenticatedUser() *async.Result[User] {
	return async.New(func(ctl *async.Controller[User]) (User, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		var user User
		err := c.do(ctx, http.MethodGet, "/api/me", nil, &user)
		return user, err
	})
}

// GetCalendar fetches the calendar/profile view.
func (c *Client) GetCalendar() *async.Result[Calendar] {
	return async.New(func(ctl *async.Controller[Calendar]) (Calendar, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		var cal Calendar
		err := c.do(ctx, http.MethodGet, "/api/calendar", nil, &cal)
		return cal, err
	})
}

// RefreshThreads fetches the full thread collection. The supplied token
// belongs to the sync loop's current cycle; canceling it abandons the
// fetch.
func (c *Client) RefreshThreads(tok *async.Token) *async.Result[[]Thread] {
	res := async.New(func(ctl *async.Controller[[]Thread]) ([]Thread, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		var payload struct {
			Threads []Thread `json:"threads"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/threads", nil, &payload); err != nil {
			return nil, err
		}
		return payload.Threads, nil
	})
	if tok != nil {
		tok.OnCancel(res.Cancel)
	}
	return res
}

// SendNewThread starts a thread and returns it as stored.
func (c *Client) SendNewThread(thread NewThread) *async.Result[Thread] {
	return async.New(func(ctl *async.Controller[Thread]) (Thread, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		var created Thread
		err := c.do(ctx, http.MethodPost, "/api/threads", thread, &created)
		return created, err
	})
}

// UpdateProfile replaces the authenticated user's profile.
func (c *Client) UpdateProfile(profile Profile) *async.Result[Profile] {
	return async.New(func(ctl *async.Controller[Profile]) (Profile, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		var updated Profile
		err := c.do(ctx, http.MethodPut, "/api/profile", profile, &updated)
		return updated, err
	})
}

// UploadAvatar stores a new avatar and returns its update timestamp,
// suitable for feeding the photo cache's remote-update records.
func (c *Client) UploadAvatar(data []byte) *async.Result[PhotoUpdate] {
	return async.New(func(ctl *async.Controller[PhotoUpdate]) (PhotoUpdate, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		var update PhotoUpdate
		err := c.doRaw(ctx, http.MethodPut, "/api/avatar", "application/octet-stream", data, &update)
		return update, err
	})
}

// ResetAvatar reverts the avatar to the service default.
func (c *Client) ResetAvatar() *async.Result[PhotoUpdate] {
	return async.New(func(ctl *async.Controller[PhotoUpdate]) (PhotoUpdate, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		var update PhotoUpdate
		err := c.do(ctx, http.MethodDelete, "/api/avatar", nil, &update)
		return update, err
	})
}

// FetchPhoto downloads a user's photo bytes.
func (c *Client) FetchPhoto(username string) *async.Result[[]byte] {
	return async.New(func(ctl *async.Controller[[]byte]) ([]byte, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()
		return c.doBytes(ctx, http.MethodGet, "/api/photos/"+url.PathEscape(username))
	})
}

// SearchUsers looks up accounts matching term.
func (c *Client) SearchUsers(term string) *async.Result[[]User] {
	return async.New(func(ctl *async.Controller[[]User]) ([]User, error) {
		ctx, stop := ctl.Token().Context(context.Background())
		defer stop()

		values := url.Values{}
		values.Set("q", term)
		rel := &url.URL{Path: "/api/users", RawQuery: values.Encode()}
		var payload struct {
			Users []User `json:"users"`
		}
		if err := c.doURL(ctx, http.MethodGet, rel, nil, "", &payload); err != nil {
			return nil, err
		}
		return payload.Users, nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var encoded []byte
	contentType := ""
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		contentType = "application/json"
	}
	return c.doURL(ctx, method, &url.URL{Path: path}, encoded, contentType, dest)
}

func (c *Client) doRaw(ctx context.Context, method, path, contentType string, body []byte, dest any) error {
	return c.doURL(ctx, method, &url.URL{Path: path}, body, contentType, dest)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body []byte, contentType string, dest any) error {
	resp, err := c.roundTrip(ctx, method, rel, body, contentType)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, rel); err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doBytes(ctx context.Context, method, path string) ([]byte, error) {
	rel := &url.URL{Path: path}
	resp, err := c.roundTrip(ctx, method, rel, nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, rel); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, rel *url.URL, body []byte, contentType string) (*http.Response, error) {
	reqURL := c.baseURL.ResolveReference(rel)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if creds := c.credentials(); creds != nil {
		req.Header.Set("Authorization", "Bearer "+creds.SessionKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, rel *url.URL) error {
	if resp.StatusCode < 400 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("api %s: %w", rel.String(), ErrUnauthorized)
	}
	msg := ""
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		msg = payload.Error
	}
	return &ServiceError{Status: resp.StatusCode, Message: msg}
}

func parseBaseURL(serviceURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(serviceURL)
	if trimmed == "" {
		return nil, fmt.Errorf("service url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse service url %q: %w", serviceURL, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
