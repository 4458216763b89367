package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds every probe request.
	DefaultTimeout = 5 * time.Second

	userAgent    = "vitals-probe/1.0"
	maxBodyBytes = 1 << 20
)

// Client issues requests against one service's base path. It is handed to
// endpoint tests so they inherit the probe's timeout and error classification.
type Client struct {
	spec    ProbeSpec
	http    *http.Client
	timeout time.Duration
	now     func() time.Time

	mu         sync.Mutex
	lastURL    string
	lastStatus int
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	ReceivedAt time.Time
	URL        string
}

func newClient(spec ProbeSpec, hc *http.Client, timeout time.Duration, now func() time.Time) *Client {
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{spec: spec, http: hc, timeout: timeout, now: now}
}

// Spec returns the probe spec this client is bound to.
func (c *Client) Spec() ProbeSpec { return c.spec }

// URL joins path onto the spec's base path.
func (c *Client) URL(path string) string {
	base := strings.TrimRight(c.spec.BasePath, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Get is Do with GET and no body.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// Do sends one request bounded by the probe timeout. Transport failures come
// back as *Error with ConnectionError, TimeoutError or ProtocolError; any
// HTTP status is returned as a Response, not an error.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	target := c.URL(path)
	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Msg: fmt.Sprintf("invalid request %s %s", method, target), Err: err}
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	c.setLast(target, 0)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	c.setLast(target, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		ReceivedAt: c.now(),
		URL:        target,
	}, nil
}

func (c *Client) setLast(url string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastURL, c.lastStatus = url, status
}

// last returns the URL and status of the most recent request.
func (c *Client) last() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastURL, c.lastStatus
}

// Success reports a 2xx status.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body; a non-JSON body is a ProtocolError.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return protocolError(fmt.Sprintf("body of %s is not valid JSON", r.URL), err)
	}
	return nil
}

// ExpectStatus fails with an AssertionFailure unless the status is one of want.
func (r *Response) ExpectStatus(want ...int) error {
	for _, code := range want {
		if r.StatusCode == code {
			return nil
		}
	}
	return Assertionf("%s returned %d, want %v", r.URL, r.StatusCode, want)
}
