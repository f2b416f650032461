package tally

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrUnknownReport is a configuration-class failure: the remote system
// does not recognize the requested report. Never retried.
var ErrUnknownReport = errors.New("report is not recognized by the source system")

const maxFetchRetries = 3

// Client issues read requests against the report endpoint. The source
// system expects serialized access, so the transport is pinned to a
// single reusable connection.
type Client struct {
	baseURL string
	company string
	http    *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL string, company string, logger *logrus.Logger) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		company: company,
		http: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
		logger: logger,
	}
}

// Fetch posts the query envelope and returns the raw report payload.
// Transient network failures are retried with exponential backoff
// (1s, 2s, 4s, capped at 10s) up to 3 times; anything else surfaces
// immediately.
func (c *Client) Fetch(ctx context.Context, q Query) ([]byte, error) {
	if q.Company == "" {
		q.Company = c.company
	}
	reqBody, err := BuildRequest(q)
	if err != nil {
		return nil, err
	}

	var payload []byte
	attempt := 0
	operation := func() error {
		attempt++
		body, err := c.doFetch(ctx, reqBody)
		if err != nil {
			if !isTransient(ctx, err) {
				return backoff.Permanent(err)
			}
			c.logger.WithFields(logrus.Fields{
				"module":  "tally",
				"report":  q.Report,
				"attempt": attempt,
			}).Warn(err.Error())
			return err
		}
		payload = body
		return nil
	}

	if err := backoff.Retry(operation, retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) doFetch(ctx context.Context, reqBody []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("report endpoint returned status %d", resp.StatusCode)
	}
	if bytes.Contains(body, []byte("Could not find Report")) || bytes.Contains(body, []byte("<LINEERROR>")) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReport, firstLine(body))
	}
	return body, nil
}

func retryPolicy(ctx context.Context) backoff.BackOffContext {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     1000 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         10000 * time.Millisecond,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	policy.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(policy, maxFetchRetries), ctx)
}

// isTransient classifies retryable I/O failures: connection reset,
// timeout, refused, DNS resolution failure, broken pipe. The caller's
// context decides whether a deadline error means "the caller gave up"
// (not retryable) or "the per-request timeout fired" (retryable): the
// http client wraps both in context.DeadlineExceeded.
func isTransient(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnknownReport) {
		return false
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	// http wraps some transport failures without a typed cause.
	msg := err.Error()
	for _, marker := range []string{"connection reset", "connection refused", "broken pipe", "no such host", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func firstLine(body []byte) string {
	line := string(body)
	if idx := strings.IndexByte(line, '\n'); idx > 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}
