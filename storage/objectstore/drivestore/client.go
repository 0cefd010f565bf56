package drivestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
)

// Retry and backoff
const (
	baseBackoff    = time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "classdrive/1.0"
)

// APIError is an unsuccessful Drive API response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

// classifyStatus maps a failed response to core.ErrNotFound or a remote error.
func classifyStatus(op string, apiErr *APIError) error {
	if apiErr.StatusCode == http.StatusNotFound {
		return errors.Wrap(core.ErrNotFound, apiErr.Error())
	}
	return core.NewRemoteError(op, apiErr)
}

func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// client sends requests to the Drive API, retrying transient failures up to maxRetries times.
type client struct {
	httpClient *http.Client
	logger     core.Logger
	maxRetries int

	// sleepFunc waits between retries; tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

type request struct {
	op          string
	method      string
	url         string
	contentType string
	body        []byte
}

// do executes req and returns the successful response. The caller closes its body.
func (c *client) do(ctx context.Context, req request) (*http.Response, error) {
	var attempt int
	for {
		resp, err := c.doOnce(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, core.NewRemoteError(req.op, ctx.Err())
			}
			if attempt < c.maxRetries {
				if err = c.wait(ctx, req, attempt, c.calcBackoff(attempt), err); err != nil {
					return nil, err
				}
				attempt++
				continue
			}
			return nil, core.NewRemoteError(req.op, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(errBody))}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			if err = c.wait(ctx, req, attempt, c.retryBackoff(resp, attempt), apiErr); err != nil {
				return nil, err
			}
			attempt++
			continue
		}
		return nil, classifyStatus(req.op, apiErr)
	}
}

func (c *client) wait(ctx context.Context, req request, attempt int, backoff time.Duration, cause error) error {
	c.logger.Warn(fmt.Sprintf("drive: retrying %s %s (attempt %d) in %s", req.method, req.op, attempt+1, backoff), cause)
	if err := c.sleepFunc(ctx, backoff); err != nil {
		return core.NewRemoteError(req.op, err)
	}
	return nil
}

func (c *client) doOnce(ctx context.Context, req request) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	return c.httpClient.Do(httpReq)
}

// retryBackoff honors the Retry-After header of throttled responses.
func (c *client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	backoff += backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	return time.Duration(backoff)
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
