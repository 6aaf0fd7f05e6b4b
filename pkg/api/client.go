package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iguit0/ai-chatbot-personality/pkg/casing"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultUserAgent = "persona-chat/1.0"

// Client executes requests against the chat backend. Bodies are transcoded to
// the wire convention on the way out and back to the internal convention on
// the way in; no state is kept between calls.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	userAgent  string
	urlOptions BaseURLOptions
	timeout    time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets a per-request timeout. Zero means no timeout. It applies to
// a copy of the HTTP client, so a client passed with WithHTTPClient is never
// modified.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithBaseURLOptions(opts BaseURLOptions) ClientOption {
	return func(c *Client) {
		c.urlOptions = opts
	}
}

// NewClient initializes a client for the backend rooted at baseURL.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  defaultUserAgent,
	}
	for _, option := range options {
		option(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}

	u, err := ParseBaseURL(baseURL, c.urlOptions)
	if err != nil {
		return nil, err
	}
	c.baseURL = u

	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Send issues the request and returns the response body as a generic tree with
// internal keys. An empty success body yields nil.
func (c *Client) Send(ctx context.Context, method string, path string, body interface{}) (interface{}, error) {
	target := c.resolve(path)

	respBody, err := c.execute(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	tree, err := casing.DecodeInternal(respBody)
	if err != nil {
		return nil, &TransportError{Op: "decode response", URL: target, Err: err}
	}
	return tree, nil
}

// Do is Send followed by decoding the tree into out. out may be nil when the
// response body is of no interest. When out is set, an empty or null body is a
// *TransportError.
func (c *Client) Do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	tree, err := c.Send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if tree == nil {
		return &TransportError{Op: "decode response", URL: c.resolve(path), Err: errors.New("empty response body")}
	}
	if err := casing.Into(tree, out); err != nil {
		return &TransportError{Op: "decode response", URL: c.resolve(path), Err: err}
	}
	return nil
}

func (c *Client) resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL.String() + path
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

func (c *Client) execute(ctx context.Context, method string, target string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := casing.MarshalWire(body)
		if err != nil {
			return nil, errors.Wrapf(err, "could not encode %s %s body", method, target)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build %s %s request", method, target)
	}
	c.setHeaders(req, body != nil)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).
			Str("method", method).
			Str("url", target).
			Dur("duration", time.Since(start)).
			Msg("backend request failed")
		return nil, &TransportError{Op: method, URL: target, Err: err}
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read response", URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		backendErr := &BackendError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody, resp.StatusCode),
		}
		log.Warn().
			Str("method", method).
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("message", backendErr.Message).
			Dur("duration", time.Since(start)).
			Msg("backend rejected request")
		return nil, backendErr
	}

	log.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Int("bytes", len(respBody)).
		Dur("duration", time.Since(start)).
		Msg("backend request completed")

	return respBody, nil
}

// errorMessage extracts the server-supplied message from an error body:
// FastAPI's {"detail": ...}, {"error": ...} or {"message": ...}.
func errorMessage(body []byte, statusCode int) string {
	fallback := fmt.Sprintf("HTTP error! status: %d", statusCode)

	tree, err := casing.Decode(body)
	if err != nil {
		return fallback
	}
	m, ok := tree.(map[string]interface{})
	if !ok {
		return fallback
	}

	for _, key := range []string{"detail", "error", "message"} {
		switch v := m[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]interface{}:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		case []interface{}:
			// FastAPI request validation: [{"loc": [...], "msg": "...", ...}]
			msgs := make([]string, 0, len(v))
			for _, item := range v {
				if entry, ok := item.(map[string]interface{}); ok {
					if msg, ok := entry["msg"].(string); ok && msg != "" {
						msgs = append(msgs, msg)
					}
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}

	return fallback
}
