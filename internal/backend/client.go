// Package backend is the REST client for the collection backend: coins,
// microscope, AI and eBay surfaces. Every call is a direct pass-through with
// no retries and no caching.
package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds every call except AI analysis.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	rest *resty.Client
	// slow has no client-side timeout; model inference may run for minutes.
	slow    *resty.Client
	baseURL string
}

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	var rest, slow *resty.Client
	if cfg.HTTPClient != nil {
		rest = resty.NewWithClient(cfg.HTTPClient)
		slowHTTP := *cfg.HTTPClient
		slowHTTP.Timeout = 0
		slow = resty.NewWithClient(&slowHTTP)
	} else {
		rest = resty.New()
		slow = resty.New()
	}
	rest.SetTimeout(cfg.Timeout)

	for _, c := range []*resty.Client{rest, slow} {
		c.SetBaseURL(baseURL).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "nomisma-console/1.0")
		if cfg.Token != "" {
			c.SetAuthToken(cfg.Token)
		}
	}

	return &Client{rest: rest, slow: slow, baseURL: baseURL}
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPError is returned for any non-2xx response. Detail holds the decoded
// "detail" member of the error body when present (a string or an object).
type HTTPError struct {
	StatusCode int
	Detail     any
	Body       string
}

func (e *HTTPError) Error() string {
	if s, ok := e.Detail.(string); ok && s != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, s)
	}
	if msg := e.DetailString("error"); msg != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, msg)
	}
	if msg := e.DetailString("message"); msg != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// DetailString returns detail[key] when the detail is an object holding a
// non-empty string under key.
func (e *HTTPError) DetailString(key string) string {
	m, ok := e.Detail.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// AsHTTPError unwraps err to an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	he, ok := AsHTTPError(err)
	return ok && he.StatusCode == http.StatusNotFound
}

// errorBody is the FastAPI error envelope.
type errorBody struct {
	Detail any `json:"detail"`
}

// check converts a transport error or a non-2xx response into an error.
func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	he := &HTTPError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	var eb errorBody
	if jsonErr := json.Unmarshal(resp.Body(), &eb); jsonErr == nil {
		he.Detail = eb.Detail
	}
	return fmt.Errorf("%s: %w", op, he)
}

// decodeLenient decodes body into target, ignoring an empty body.
func decodeLenient(body []byte, target any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, target)
}
