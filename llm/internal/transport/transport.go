package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Client is a thin JSON/stream HTTP client shared by the provider
// adapters. Retries apply only to the buffered JSON path; an open stream
// is never retried here (retrying a half-consumed stream would duplicate
// deltas).
type Client struct {
	HTTPClient *http.Client
	BaseURL    *url.URL

	DefaultHeaders http.Header
	UserAgent      string
	Logger         *slog.Logger
	Retry          RetryConfig
}

func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		HTTPClient:     httpClient,
		BaseURL:        u,
		DefaultHeaders: make(http.Header),
		UserAgent:      "llmwire/1",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Retry:          DefaultRetry(),
	}, nil
}

func (c *Client) Clone() *Client {
	out := *c
	out.DefaultHeaders = c.DefaultHeaders.Clone()
	return &out
}

func (c *Client) Resolve(path string) string {
	// url.JoinPath cleans too aggressively for base URLs carrying a path.
	u := *c.BaseURL
	u.Path = joinPath(u.Path, path)
	return u.String()
}

func joinPath(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	aSlash := a[len(a)-1] == '/'
	bSlash := b[0] == '/'
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}

// DoJSON posts a JSON body and returns the fully-read response.
func (c *Client) DoJSON(ctx context.Context, method, path string, hdr http.Header, reqBody any) (*http.Response, []byte, error) {
	bodyBytes, err := marshalBody(reqBody)
	if err != nil {
		return nil, nil, err
	}

	attempts := c.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastRaw []byte
	for attempt := 1; ; attempt++ {
		resp, raw, err := c.doOnce(ctx, method, path, hdr, bodyBytes)
		if err == nil {
			return resp, raw, nil
		}
		lastRaw = raw
		if attempt == attempts || !shouldRetry(err) {
			return nil, lastRaw, err
		}

		sleep := backoff(c.Retry.InitialBackoff, c.Retry.MaxBackoff, attempt-1)
		c.Logger.Debug("llm http retry", "attempt", attempt, "sleep", sleep, "err", err)
		select {
		case <-ctx.Done():
			return nil, lastRaw, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// DoStream posts a JSON body and hands back the live response; the caller
// owns resp.Body.
func (c *Client) DoStream(ctx context.Context, method, path string, hdr http.Header, reqBody any) (*http.Response, error) {
	bodyBytes, err := marshalBody(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, method, path, hdr, bodyBytes)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: raw, Header: resp.Header.Clone()}
}

func (c *Client) doOnce(ctx context.Context, method, path string, hdr http.Header, bodyBytes []byte) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, method, path, hdr, bodyBytes)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, raw, nil
	}
	return nil, raw, &HTTPStatusError{StatusCode: resp.StatusCode, Body: raw, Header: resp.Header.Clone()}
}

func (c *Client) newRequest(ctx context.Context, method, path string, hdr http.Header, bodyBytes []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.Resolve(path), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	mergeHeaders(req.Header, c.DefaultHeaders)
	mergeHeaders(req.Header, hdr)
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}
	if method == http.MethodPost && req.Header.Get("Idempotency-Key") == "" {
		req.Header.Set("Idempotency-Key", req.Header.Get("X-Request-Id"))
	}
	return req, nil
}

type HTTPStatusError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *HTTPStatusError) Error() string {
	return http.StatusText(e.StatusCode)
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	return json.Marshal(body)
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *HTTPStatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests, http.StatusRequestTimeout:
			return true
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	// network / io errors are generally retryable
	return true
}

func backoff(initial, max time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 2 * time.Second
	}

	d := time.Duration(float64(initial) * math.Pow(2, float64(attempt)))
	if d > max {
		d = max
	}

	// Small jitter to avoid synchronized retries.
	j := (rand.Float64() - 0.5) * 0.2
	return time.Duration(float64(d) * (1 + j))
}

func mergeHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
