package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// MaxBatchSize bounds every outbound push request. The backend rejects
// larger envelopes outright, so callers must sub-batch below this.
const MaxBatchSize = 100

const maxPushRetries = 3

// Endpoints, one per entity kind.
const (
	EndpointCustomers  = "/sync/customers"
	EndpointInvoices   = "/sync/invoices"
	EndpointReceipts   = "/sync/receipts"
	EndpointJournals   = "/sync/journals"
	EndpointDebitNotes = "/sync/debit-notes"
	EndpointDeletions  = "/sync/deletions"
	EndpointBalances   = "/sync/customer-balances/refresh"
)

// Envelope is the wire shape every push endpoint accepts: a single array
// field of up to MaxBatchSize transformed records.
type Envelope struct {
	CompanyID string            `json:"company_id"`
	Records   []json.RawMessage `json:"records"`
}

// Client pushes transformed records to the cloud backend, authenticated
// by a static key header.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	companyID string
	http      *http.Client
	logger    *logrus.Logger
}

func NewClient(baseURL, apiKey, apiKeyHeader, companyID string, logger *logrus.Logger) *Client {
	if strings.TrimSpace(apiKeyHeader) == "" {
		apiKeyHeader = "X-API-Key"
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		companyID: companyID,
		http:      &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
	}
}

// PushBatch delivers one sub-batch to the endpoint, retrying failures up
// to 3 times with exponential backoff (1s, 2s, 4s, capped at 10s).
// Acceptance is all-or-nothing: a non-2xx response fails the whole
// sub-batch. onRetry, if set, fires before each backed-off reattempt.
func (c *Client) PushBatch(ctx context.Context, endpoint string, records []json.RawMessage, onRetry func(attempt int)) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds the %d-record bound", len(records), MaxBatchSize)
	}

	body, err := json.Marshal(Envelope{CompanyID: c.companyID, Records: records})
	if err != nil {
		return err
	}

	// Request construction can only fail on a malformed URL; retrying
	// would repeat the same failure.
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 && onRetry != nil {
			onRetry(attempt)
		}
		err := c.doPush(ctx, endpoint, body)
		if err == nil {
			return nil
		}
		c.logger.WithFields(logrus.Fields{
			"module":   "backend",
			"endpoint": endpoint,
			"attempt":  attempt,
			"records":  len(records),
		}).Warn(err.Error())
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return backoff.Permanent(reqErr.err)
		}
		return err
	}
	return backoff.Retry(operation, pushRetryPolicy(ctx))
}

// requestError marks a failure to construct the outbound request, as
// opposed to a failure performing it.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func (c *Client) doPush(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return &requestError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.apiKeyHdr, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// RefreshCustomerBalance asks the balance sub-service to recompute one
// customer ledger's receivable balance.
func (c *Client) RefreshCustomerBalance(ctx context.Context, ledgerMasterID string) error {
	body, err := json.Marshal(map[string]string{
		"company_id":       c.companyID,
		"ledger_master_id": ledgerMasterID,
	})
	if err != nil {
		return err
	}
	return c.doPush(ctx, EndpointBalances, body)
}

func pushRetryPolicy(ctx context.Context) backoff.BackOffContext {
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
	return backoff.WithContext(backoff.WithMaxRetries(policy, maxPushRetries), ctx)
}
