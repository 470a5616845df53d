// Package remote pushes completed orders and ended sessions to the
// collaborator backend. Calls go through a circuit breaker and are retried
// with exponential backoff; Submit runs them in the background so local
// state never waits on the network.
package remote

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

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

// Record kinds, also used as URL path segments.
const (
	KindOrder   = "orders"
	KindSession = "sessions"
)

// Client talks to the collaborator backend.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[int]
	log     logger.Logger
	onError func(kind, ref string, err error)

	timeout         time.Duration
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	breakerTimeout  time.Duration
	readyToTrip     func(gobreaker.Counts) bool

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// DefaultReadyToTrip opens the breaker after at least 5 requests with a
// failure ratio of 50% or more.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < 5 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// NewClient creates a client for baseURL. An empty baseURL yields a client
// whose calls return ErrDisabled.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		log:             logger.Get().Named("remote"),
		timeout:         10 * time.Second,
		maxRetries:      3,
		initialInterval: 100 * time.Millisecond,
		maxInterval:     5 * time.Second,
		breakerTimeout:  60 * time.Second,
		readyToTrip:     DefaultReadyToTrip,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	c.breaker = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "remote-sync",
		MaxRequests: 1,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: c.readyToTrip,
		// 4xx is the caller's problem, not the backend's health.
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, ErrRejected) },
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn(context.Background(), "breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return c
}

// Enabled reports whether a backend is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// State returns the breaker state.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

// SyncOrder pushes one order and blocks until it is stored or fails.
func (c *Client) SyncOrder(ctx context.Context, o *model.Order) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrRejected)
	}
	return c.put(ctx, KindOrder, o.ID, o)
}

// SyncSession pushes one session and blocks until it is stored or fails.
func (c *Client) SyncSession(ctx context.Context, s *model.Session) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrRejected)
	}
	return c.put(ctx, KindSession, s.ID, s)
}

// Submit pushes an order or session in the background. Failures go to the
// error handler. Returns ErrClosed after Close and ErrDisabled without a
// backend.
func (c *Client) Submit(v any) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	var kind, ref string
	switch rec := v.(type) {
	case *model.Order:
		kind, ref = KindOrder, rec.ID
		v = rec.Clone()
	case *model.Session:
		kind, ref = KindSession, rec.ID
		v = rec.Clone()
	default:
		return fmt.Errorf("%w: unsupported record %T", ErrRejected, v)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.budget())
		defer cancel()
		if err := c.put(ctx, kind, ref, v); err != nil {
			c.log.Warn(ctx, "remote sync failed",
				logger.String("kind", kind), logger.String("ref", ref), logger.Error(err))
			if c.onError != nil {
				c.onError(kind, ref, err)
			}
		}
	}()
	return nil
}

// Close stops accepting submissions and waits for in-flight ones or ctx.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// budget bounds a background submission: every attempt plus its backoff.
func (c *Client) budget() time.Duration {
	return time.Duration(c.maxRetries+1) * (c.timeout + c.maxInterval)
}

func (c *Client) put(ctx context.Context, kind, ref string, v any) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, ref, err)
	}
	url := c.baseURL + "/" + kind + "/" + ref

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxInterval = c.maxInterval
	bo.MaxElapsedTime = 0

	operation := func() error {
		_, err := c.breaker.Execute(func() (int, error) {
			return c.do(ctx, url, body)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case errors.Is(err, ErrRejected):
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	metrics.RecordRemoteSync(kind, outcome(err))
	if err != nil {
		return fmt.Errorf("sync %s %s: %w", kind, ref, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return resp.StatusCode, &ServerError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= http.StatusBadRequest:
		return resp.StatusCode, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	default:
		return resp.StatusCode, nil
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "failed"
	}
}
