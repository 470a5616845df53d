package shiftsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPClient talks JSON to the offerwise API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	retries uint64
}

// StatusError is returned for unexpected response codes.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration, retries uint64) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		retries: retries,
	}
}

// Do sends body as JSON and decodes the response into out when the status
// is one of want. Connection errors are retried with backoff; HTTP errors
// are not.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body, out any, want ...int) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var (
		code int
		data []byte
	)
	op := func() error {
		var rd io.Reader = http.NoBody
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		code = resp.StatusCode
		data, err = io.ReadAll(resp.Body)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx)); err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}

	for _, w := range want {
		if code == w {
			if out != nil && len(data) > 0 {
				if err := json.Unmarshal(data, out); err != nil {
					return code, fmt.Errorf("%s %s: decode: %w", method, path, err)
				}
			}
			return code, nil
		}
	}
	return code, &StatusError{Method: method, Path: path, Code: code, Body: string(bytes.TrimSpace(data))}
}
