package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// RequestIDHeader is propagated on every outgoing request.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// WithRequestID returns a context whose outgoing requests reuse id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// TokenStore is the session storage the gateway reads the bearer token from.
// The gateway only ever clears it, on a 401/403 reply.
type TokenStore interface {
	Token() string
	ClearToken() error
}

// Doer performs backend calls. *Client satisfies it.
type Doer interface {
	Do(ctx context.Context, path string, opts Options) (*Response, error)
}

// Raw is a body that is sent as-is, e.g. a multipart form.
type Raw struct {
	ContentType string
	Body        io.Reader
}

// Options describes a single backend call.
type Options struct {
	Method  string
	Headers http.Header
	Query   url.Values
	Body    any
	// SkipAuth suppresses the Authorization header.
	SkipAuth bool
}

// Response is the classified result of a successful call.
type Response struct {
	Status int
	// JSON holds the body when the server declared a JSON content type.
	JSON json.RawMessage
	// Text holds the body for any other content type.
	Text string
}

// Empty reports whether the response carried no body (e.g. 204).
func (r *Response) Empty() bool {
	return len(r.JSON) == 0 && r.Text == ""
}

// Decode unmarshals a JSON response into v.
func (r *Response) Decode(v any) error {
	if len(r.JSON) == 0 {
		return fmt.Errorf("response has no JSON body")
	}
	return json.Unmarshal(r.JSON, v)
}

// DecodeJSON unmarshals the JSON body of resp into a new T.
func DecodeJSON[T any](resp *Response) (T, error) {
	var out T
	if err := resp.Decode(&out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets a per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Client wraps net/http for the clinic backend: it resolves paths against a
// fixed base URL, attaches the session's bearer token and classifies replies.
type Client struct {
	baseURL string
	tokens  TokenStore
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a gateway for baseURL (e.g. http://localhost:8080/api).
func NewClient(baseURL string, tokens TokenStore, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get is shorthand for a GET with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, path, Options{Method: http.MethodGet, Query: query})
}

// Do performs a request and classifies the reply.
func (c *Client) Do(ctx context.Context, path string, opts Options) (*Response, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + path
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	headers := http.Header{}
	for k, v := range opts.Headers {
		headers[k] = append([]string(nil), v...)
	}

	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
	}
	if contentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", contentType)
	}

	attachToken := !opts.SkipAuth && !isAuthPath(path)
	tokenSent := false
	if attachToken && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			headers.Set("Authorization", "Bearer "+token)
			tokenSent = true
		}
	}

	rid := requestIDFrom(ctx)
	headers.Set(RequestIDHeader, rid)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header = headers

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("request_id", rid).Str("method", method).Str("path", path).Msg("backend request failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("request_id", rid).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend request")

	if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && tokenSent {
		if err := c.tokens.ClearToken(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to clear rejected token")
		} else {
			c.logger.Info().Int("status", resp.StatusCode).Msg("session token rejected, cleared")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RequestError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: extractMessage(raw),
		}
	}

	out := &Response{Status: resp.StatusCode}
	if resp.StatusCode == http.StatusNoContent {
		return out, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if len(bytes.TrimSpace(raw)) > 0 {
			out.JSON = json.RawMessage(raw)
		}
		return out, nil
	}
	out.Text = string(raw)
	return out, nil
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}

// encodeBody turns a structured value into JSON. Readers and Raw bodies
// pass through untouched.
func encodeBody(v any) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case Raw:
		return b.Body, b.ContentType, nil
	case *Raw:
		return b.Body, b.ContentType, nil
	case io.Reader:
		return b, "", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
