// Package apiclient is the HTTP client layer of the saga runner. It performs
// single calls against the target Bizing API, attaches per-actor session
// credentials, and records calls into whatever trace sink is passed, never
// into shared state.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// Client holds the target base URL and shared transport settings. Actor
// sessions are created from it, each with its own cookie jar.
type Client struct {
	base    *url.URL
	origin  string
	timeout time.Duration
	log     *zap.Logger
}

// New creates a client for the given API base URL. The trusted origin is set
// as the Origin header on every request, matching the browser surface the
// API's CSRF checks expect.
func New(baseURL, origin string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{base: u, origin: origin, timeout: timeout, log: log}, nil
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// NewSession creates a fresh cookie-isolated session for one actor.
func (c *Client) NewSession(actorKey string) *Session {
	jar, _ := cookiejar.New(nil)
	return &Session{
		c:        c,
		actorKey: actorKey,
		httpc: &http.Client{
			Jar:     jar,
			Timeout: c.timeout,
		},
	}
}

// Session is one actor's authenticated view of the API. Cookies (and with
// them the server-side session) live in the session's jar.
type Session struct {
	c        *Client
	actorKey string
	httpc    *http.Client
}

// ActorKey returns the actor this session was created for.
func (s *Session) ActorKey() string {
	return s.actorKey
}

// Response is the raw result of one call. HTTP-level error statuses are not
// Go errors; callers classify them.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Do performs one HTTP call. The body, if non-nil, is sent as JSON. When sink
// is non-nil the call is recorded with truncated body previews; setup traffic
// outside any step scope passes nil and stays unrecorded. A returned error
// means the call never produced an HTTP response.
func (s *Session) Do(ctx context.Context, sink saga.Sink, method, path string, body any) (*Response, error) {
	var reqBody []byte
	var reader io.Reader
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing path %q: %w", path, err)
	}
	target := *s.c.base
	target.Path = strings.TrimSuffix(target.Path, "/") + "/" + strings.TrimPrefix(rel.Path, "/")
	target.RawQuery = rel.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("building request %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.c.origin != "" {
		req.Header.Set("Origin", s.c.origin)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		if sink != nil {
			sink.Record(saga.TraceEntry{
				Method:       method,
				Path:         path,
				Status:       0,
				RequestBody:  saga.TruncateBody(reqBody),
				ResponseBody: err.Error(),
				At:           time.Now().UTC(),
			})
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response of %s %s: %w", method, path, err)
	}

	if sink != nil {
		sink.Record(saga.TraceEntry{
			Method:       method,
			Path:         path,
			Status:       resp.StatusCode,
			RequestBody:  saga.TruncateBody(reqBody),
			ResponseBody: saga.TruncateBody(respBody),
			At:           time.Now().UTC(),
		})
	}

	s.c.log.Debug("api call",
		zap.String("actor", s.actorKey),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return &Response{Status: resp.StatusCode, Body: respBody}, nil
}

// DoJSON performs a call and decodes a 2xx response body into out. Non-2xx
// statuses return the response untouched so the caller can classify them.
func (s *Session) DoJSON(ctx context.Context, sink saga.Sink, method, path string, body, out any) (*Response, error) {
	resp, err := s.Do(ctx, sink, method, path, body)
	if err != nil {
		return nil, err
	}
	if out != nil && resp.OK() && len(resp.Body) > 0 {
		if err := resp.Decode(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}
