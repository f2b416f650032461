package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/tally_sync_agent/backend"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func rawRecords(n int) []json.RawMessage {
	records := make([]json.RawMessage, n)
	for i := range records {
		records[i] = json.RawMessage(`{"master_id":"1"}`)
	}
	return records
}

func TestPushBatch_RejectsOversizedBatch(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, "key", "", "company-1", testLogger())
	err := client.PushBatch(context.Background(), backend.EndpointCustomers, rawRecords(backend.MaxBatchSize+1), nil)
	if err == nil {
		t.Fatal("oversized batch must be rejected")
	}
	if requests != 0 {
		t.Errorf("made %d requests, want 0", requests)
	}
}

func TestPushBatch_EmptyBatchIsNoOp(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, "key", "", "company-1", testLogger())
	if err := client.PushBatch(context.Background(), backend.EndpointCustomers, nil, nil); err != nil {
		t.Fatalf("PushBatch: %v", err)
	}
	if requests != 0 {
		t.Errorf("made %d requests, want 0", requests)
	}
}

func TestPushBatch_EnvelopeAndAuth(t *testing.T) {
	var gotKey string
	var gotEnvelope backend.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Agent-Key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotEnvelope)
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, "secret", "X-Agent-Key", "company-1", testLogger())
	if err := client.PushBatch(context.Background(), backend.EndpointInvoices, rawRecords(3), nil); err != nil {
		t.Fatalf("PushBatch: %v", err)
	}
	if gotKey != "secret" {
		t.Errorf("api key header: got %q", gotKey)
	}
	if gotEnvelope.CompanyID != "company-1" || len(gotEnvelope.Records) != 3 {
		t.Errorf("envelope: %+v", gotEnvelope)
	}
}

func TestPushBatch_RetriesThenSucceeds(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			http.Error(w, "backend busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var retryAttempts []int
	client := backend.NewClient(srv.URL, "key", "", "company-1", testLogger())
	err := client.PushBatch(context.Background(), backend.EndpointReceipts, rawRecords(2), func(attempt int) {
		retryAttempts = append(retryAttempts, attempt)
	})
	if err != nil {
		t.Fatalf("PushBatch: %v", err)
	}
	if requests != 2 {
		t.Errorf("made %d requests, want 2", requests)
	}
	if len(retryAttempts) != 1 || retryAttempts[0] != 2 {
		t.Errorf("onRetry attempts: %v, want [2]", retryAttempts)
	}
}

func TestRefreshCustomerBalance(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, "key", "", "company-1", testLogger())
	if err := client.RefreshCustomerBalance(context.Background(), "101"); err != nil {
		t.Fatalf("RefreshCustomerBalance: %v", err)
	}
	if gotPath != backend.EndpointBalances {
		t.Errorf("path: %q", gotPath)
	}
	if gotBody["ledger_master_id"] != "101" || gotBody["company_id"] != "company-1" {
		t.Errorf("body: %v", gotBody)
	}
}

func TestRefreshCustomerBalance_BadURLErrorIsPlain(t *testing.T) {
	// RefreshCustomerBalance runs outside any retry loop; a request
	// construction failure must surface as an ordinary error, not a
	// retry-control wrapper.
	client := backend.NewClient("://not-a-url", "key", "", "company-1", testLogger())
	err := client.RefreshCustomerBalance(context.Background(), "101")
	if err == nil {
		t.Fatal("expected an error for an unparsable base URL")
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		t.Errorf("error carries retry-control wrapping: %v", err)
	}
}
