package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/weather"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// RetryPolicy controls the retry loop. Attempt n (1-based) that fails with a
// retryable error is followed by a wait of BaseBackoff*n.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy is 3 attempts with a 1s linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseBackoff: time.Second,
		Retryable:   IsRetryable,
	}
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

var (
	errCircuitOpen   = errors.New("circuit breaker open")
	errInvalidPolicy = errors.New("invalid retry policy")
)

// IsRetryable reports whether err is transient: network errors, timeouts and
// 5xx responses. Client errors (every 4xx, 429 included), an open breaker and
// caller cancellation are final.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, weather.ErrNetworkClient),
		errors.Is(err, errCircuitOpen),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

type sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry runs op until it succeeds, fails with a non-retryable error, or
// MaxRetries attempts have been made. It returns the number of attempts made
// and the last error.
func retry(ctx context.Context, p RetryPolicy, sleep sleeper, op func(attempt int) error) (int, error) {
	if p.MaxRetries < 1 || p.BaseBackoff < 0 {
		return 0, errInvalidPolicy
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	for attempt := 1; ; attempt++ {
		err := op(attempt)
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) || attempt >= p.MaxRetries {
			return attempt, err
		}
		if serr := sleep(ctx, p.BaseBackoff*time.Duration(attempt)); serr != nil {
			return attempt, serr
		}
	}
}

// ClientConfig bundles HTTP client and resilience settings.
type ClientConfig struct {
	// Name labels the circuit breaker, metrics and logs (e.g. "openweather").
	Name    string
	HTTP    *http.Client
	Policy  RetryPolicy
	Metrics *metrics.Collector
	Logger  *slog.Logger

	// CircuitBreaker shares a breaker across calls. Off by default so each
	// call makes its own attempts; long-running servers turn it on.
	CircuitBreaker bool
}

// Client performs GET requests returning JSON, with bounded linear-backoff
// retries and, when enabled, a circuit breaker shared by all calls to the
// same upstream.
// The per-attempt timeout is the http.Client's; there is no deadline spanning
// retries.
type Client struct {
	name    string
	http    *http.Client
	policy  RetryPolicy
	circuit *gobreaker.CircuitBreaker
	metrics *metrics.Collector
	logger  *slog.Logger
	sleep   sleeper
}

// NewClient creates a Client. A nil HTTP client gets a 10s timeout.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Policy.Retryable == nil {
		cfg.Policy.Retryable = IsRetryable
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var cb *gobreaker.CircuitBreaker
	if cfg.CircuitBreaker {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
			OnStateChange: func(name string, from, to gobreaker.State) {
				cfg.Logger.Warn("circuit breaker state changed",
					"upstream", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return &Client{
		name:    cfg.Name,
		http:    cfg.HTTP,
		policy:  cfg.Policy,
		circuit: cb,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		sleep:   sleepContext,
	}
}

// GetJSON fetches baseURL?params. Errors wrap weather.ErrNetworkClient for
// non-retryable failures and weather.ErrNetworkTransient once retries are
// exhausted; no partial payload is ever returned with an error.
func (c *Client) GetJSON(ctx context.Context, baseURL string, params url.Values) (json.RawMessage, error) {
	u := baseURL
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body json.RawMessage
	attempts, err := retry(ctx, c.policy, c.loggingSleep, func(attempt int) error {
		b, err := c.attempt(ctx, u)
		if err != nil {
			c.logger.Warn("upstream request failed",
				"upstream", c.name, "attempt", attempt, "max_retries", c.policy.MaxRetries, "error", err)
			return err
		}
		body = b
		return nil
	})

	switch {
	case err == nil:
		return body, nil
	case errors.Is(err, weather.ErrNetworkClient):
		return nil, err
	case errors.Is(err, errInvalidPolicy):
		return nil, fmt.Errorf("%s: %w", c.name, err)
	default:
		return nil, fmt.Errorf("%w: %s gave no result after %d attempt(s): %w",
			weather.ErrNetworkTransient, c.name, attempts, err)
	}
}

func (c *Client) loggingSleep(ctx context.Context, d time.Duration) error {
	c.logger.Debug("backing off before retry", "upstream", c.name, "backoff", d)
	return c.sleep(ctx, d)
}

type response struct {
	status int
	body   []byte
}

func (c *Client) attempt(ctx context.Context, u string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", weather.ErrNetworkClient, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	do := func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}

		// Only 5xx counts against the breaker; 4xx is handled below as final.
		if resp.StatusCode >= 500 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(body)}
		}
		return &response{status: resp.StatusCode, body: body}, nil
	}

	var result interface{}
	if c.circuit != nil {
		result, err = c.circuit.Execute(do)
	} else {
		result, err = do()
	}
	took := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.RecordUpstreamAttempt(c.name, "circuit_open", took)
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		c.metrics.RecordUpstreamAttempt(c.name, "transient", took)
		return nil, err
	}

	r, ok := result.(*response)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type from circuit breaker", weather.ErrNetworkClient)
	}
	if r.status < 200 || r.status >= 300 {
		c.metrics.RecordUpstreamAttempt(c.name, "client", took)
		return nil, fmt.Errorf("%w: %w", weather.ErrNetworkClient, &StatusError{StatusCode: r.status, Body: snippet(r.body)})
	}
	if !json.Valid(r.body) {
		c.metrics.RecordUpstreamAttempt(c.name, "client", took)
		return nil, fmt.Errorf("%w: malformed JSON body", weather.ErrNetworkClient)
	}

	c.metrics.RecordUpstreamAttempt(c.name, "ok", took)
	return json.RawMessage(r.body), nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// decode unmarshals an upstream body; a shape mismatch is a client error.
func decode(body json.RawMessage, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decoding response: %v", weather.ErrNetworkClient, err)
	}
	return nil
}

// statusCode returns the HTTP status carried by err, or 0.
func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
