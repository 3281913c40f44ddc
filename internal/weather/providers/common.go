package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// HTTPClientConfig bundles the HTTP client and the per-provider resilience settings.
type HTTPClientConfig struct {
	Client *http.Client

	// Timeout bounds a single Fetch, including the rate limiter wait.
	Timeout time.Duration

	// RateLimit is the allowed requests per second (0 = unlimited).
	RateLimit float64
	Burst     int
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errNotConfigured = errors.New("provider credentials are not configured")
)

// transport is the shared request path of every provider: deadline, rate limiter,
// circuit breaker and status checks. It never retries.
type transport struct {
	name    string
	cfg     HTTPClientConfig
	limiter *rate.Limiter
	circuit *gobreaker.CircuitBreaker
}

func newTransport(name string, cfg HTTPClientConfig) *transport {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &transport{
		name:    name,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		circuit: cb,
	}
}

// withDeadline applies the provider's own fetch timeout.
func (t *transport) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, t.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// do executes the request built by buildRequest and returns a response with a 2xx status.
// The caller must close the response body.
func (t *transport) do(ctx context.Context, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	if t.cfg.Client == nil {
		return nil, errNoHTTPClient
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	req, err := buildRequest()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, redact(err))
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	result, err := t.circuit.Execute(func() (interface{}, error) {
		resp, execErr := t.cfg.Client.Do(req)
		if execErr != nil {
			return nil, redact(execErr)
		}

		// Handle rate limiting and server errors explicitly.
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			drain(resp)
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			drain(resp)
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w: %v", t.name, errCircuitOpen, err)
		}
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type from circuit breaker", t.name)
	}
	return resp, nil
}

// getJSON runs the request and decodes a JSON body into out.
// It reports whether the upstream answered 204 No Content, in which case out is untouched.
func (t *transport) getJSON(ctx context.Context, buildRequest func() (*http.Request, error), out interface{}) (bool, error) {
	resp, err := t.do(ctx, buildRequest)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return true, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%s: failed to parse response: %w", t.name, err)
	}
	return false, nil
}

// redact drops the query string from URL errors; it carries the provider credentials.
func redact(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	target, _, _ := strings.Cut(uerr.URL, "?")
	return &url.Error{Op: uerr.Op, URL: target, Err: uerr.Err}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
