// Package gateway is the shared outbound transport for provider adapters:
// per-provider timeout, circuit breaker and error classification.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
)

const maxBodySize = 1 << 20

// Options tunes the transport of one provider.
type Options struct {
	Timeout             time.Duration
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64
	BreakerMinRequests  uint32
}

// Client wraps an http.Client with a circuit breaker for one provider.
type Client struct {
	provider string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// New creates a client for the named provider.
func New(provider string, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BreakerMinRequests == 0 {
		opts.BreakerMinRequests = 5
	}
	if opts.BreakerFailureRatio <= 0 {
		opts.BreakerFailureRatio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        provider,
		MaxRequests: opts.BreakerMaxRequests,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= opts.BreakerFailureRatio
		},
		// declines and caller errors say nothing about provider health
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			pe, ok := domainerrors.AsProviderError(err)
			return ok && !pe.Retryable()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Provider circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		provider: provider,
		http:     &http.Client{Timeout: opts.Timeout},
		breaker:  gobreaker.NewCircuitBreaker(settings),
		logger:   logger,
	}
}

// HTTPClient exposes the underlying client for SDKs that bring their own transport.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Execute runs fn through the circuit breaker. fn should return classified
// provider errors; only retryable ones count against the provider.
func (c *Client) Execute(fn func() error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domainerrors.NewRetryableError(c.provider, "circuit_open", "provider temporarily unavailable", err)
	}
	return err
}

// Request is an outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully-read provider response with a non-5xx status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body.
func (r *Response) Decode(out interface{}) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// Do sends the request. Transport failures, timeouts and 5xx responses come
// back as retryable ProviderErrors; any other status is returned to the
// caller to interpret.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := c.Execute(func() error {
		r, err := c.send(ctx, req)
		resp = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &domainerrors.ProviderError{
			Provider: c.provider,
			Kind:     domainerrors.ProviderErrorConfig,
			Code:     "REQUEST_ERROR",
			Message:  "Failed to create request",
			Details:  err.Error(),
			Err:      err,
		}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		code := "NETWORK_ERROR"
		if isTimeout(err) {
			code = "TIMEOUT"
		}
		c.logger.Warn("Provider request failed",
			zap.String("provider", c.provider),
			zap.String("method", req.Method),
			zap.String("url", redactURL(req.URL)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, domainerrors.NewRetryableError(c.provider, code, "provider request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, domainerrors.NewRetryableError(c.provider, "RESPONSE_ERROR", "failed to read provider response", err)
	}

	c.logger.Debug("Provider response",
		zap.String("provider", c.provider),
		zap.String("method", req.Method),
		zap.String("url", redactURL(req.URL)),
		zap.Int("status_code", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
		pe := domainerrors.NewRetryableError(c.provider, fmt.Sprintf("HTTP_%d", httpResp.StatusCode), "provider unavailable", nil)
		pe.StatusCode = httpResp.StatusCode
		pe.Details = truncate(string(respBody), 500)
		return nil, pe
	}

	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: respBody}, nil
}

// DoJSON sends a JSON body and returns the raw response.
func (c *Client) DoJSON(ctx context.Context, method, rawURL string, header http.Header, in interface{}) (*Response, error) {
	if header == nil {
		header = http.Header{}
	}
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, &domainerrors.ProviderError{
				Provider: c.provider,
				Kind:     domainerrors.ProviderErrorConfig,
				Code:     "MARSHAL_ERROR",
				Message:  "Failed to prepare request",
				Details:  err.Error(),
				Err:      err,
			}
		}
		body = b
		header.Set("Content-Type", "application/json")
	}
	header.Set("Accept", "application/json")
	return c.Do(ctx, Request{Method: method, URL: rawURL, Header: header, Body: body})
}

// PostForm sends an x-www-form-urlencoded body.
func (c *Client) PostForm(ctx context.Context, rawURL string, header http.Header, values url.Values) (*Response, error) {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", "application/json")
	return c.Do(ctx, Request{Method: http.MethodPost, URL: rawURL, Header: header, Body: []byte(values.Encode())})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
