package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"go.uber.org/zap"

	"catalogsync/internal/observability"
)

const maxBodyBytes = 32 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d for %s", e.Code, e.URL)
}

// Is makes errors.Is(err, ErrForbidden) hold for 403 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrForbidden && e.Code == http.StatusForbidden
}

// Retryable reports whether the response may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type SessionOptions struct {
	Timeout time.Duration
	Headers map[string]string
}

// Session is the HTTP client shared by every request of a run. It keeps
// cookies, default headers and pooled connections across batches.
type Session struct {
	client  *http.Client
	headers http.Header
	log     *zap.Logger
}

func NewSession(opts SessionOptions, log *zap.Logger) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	h := make(http.Header, len(opts.Headers))
	for k, v := range opts.Headers {
		h.Set(k, v)
	}
	return &Session{
		client:  &http.Client{Timeout: opts.Timeout, Jar: jar},
		headers: h,
		log:     log,
	}
}

// Prewarm visits the given pages once so the jar holds whatever cookies the
// site hands out to browsers. Failures are logged and ignored.
func (s *Session) Prewarm(ctx context.Context, urls []string) {
	for _, u := range urls {
		if _, err := s.Get(ctx, "prewarm", u, nil); err != nil {
			s.log.Debug("prewarm failed", zap.String("url", u), zap.Error(err))
		}
	}
}

// Get fetches url and returns the body of a 2xx response. target labels the
// request in metrics.
func (s *Session) Get(ctx context.Context, target, url string, extra http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	for k, vs := range s.headers {
		req.Header[k] = vs
	}
	for k, vs := range extra {
		req.Header[k] = vs
	}

	resp, err := s.client.Do(req)
	if err != nil {
		observability.HTTPRequestsTotal.WithLabelValues(target, "error").Inc()
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	observability.HTTPRequestsTotal.WithLabelValues(target, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, URL: url, Body: string(snippet)}
	}
	return body, nil
}

// GetJSON fetches url and decodes the body into a generic JSON value.
func (s *Session) GetJSON(ctx context.Context, target, url string) (any, error) {
	body, err := s.Get(ctx, target, url, nil)
	if err != nil {
		return nil, err
	}
	doc, err := DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBody, url, err)
	}
	return doc, nil
}

// DecodeJSON decodes b keeping numbers as json.Number so that large product
// IDs survive unchanged.
func DecodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
