package tally

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestFetch_Success(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		fmt.Fprint(w, `<ENVELOPE><LEDGER><MASTERID>1</MASTERID></LEDGER></ENVELOPE>`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "Demo Co", testLogger())
	payload, err := client.Fetch(context.Background(), Query{Report: ReportCustomers, FromDate: "20230401", ToDate: "20230430"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("empty payload")
	}
	// The client fills the company it was constructed with.
	if want := "<SVCURRENTCOMPANY>Demo Co</SVCURRENTCOMPANY>"; !strings.Contains(gotBody, want) {
		t.Errorf("request missing %s", want)
	}
}

func TestFetch_UnknownReportIsNotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, "Could not find Report 'SyncLedgers'")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "Demo Co", testLogger())
	_, err := client.Fetch(context.Background(), Query{Report: ReportCustomers})
	if !errors.Is(err, ErrUnknownReport) {
		t.Fatalf("got %v, want ErrUnknownReport", err)
	}
	if requests != 1 {
		t.Errorf("made %d requests, want 1 (configuration errors never retry)", requests)
	}
}

func TestFetch_LineErrorIsNotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, "<RESPONSE><LINEERROR>Could not set 'SVFROMALTERID'</LINEERROR></RESPONSE>")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "Demo Co", testLogger())
	_, err := client.Fetch(context.Background(), Query{Report: ReportCustomers})
	if !errors.Is(err, ErrUnknownReport) {
		t.Fatalf("got %v, want ErrUnknownReport", err)
	}
	if requests != 1 {
		t.Errorf("made %d requests, want 1", requests)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unknown report", fmt.Errorf("wrap: %w", ErrUnknownReport), false},
		{"context canceled", context.Canceled, false},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"broken pipe", syscall.EPIPE, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "tally.local"}, true},
		{"timeout", &net.OpError{Op: "dial", Err: timeoutError{}}, true},
		{"http status", fmt.Errorf("report endpoint returned status 500"), false},
		{"string marker", fmt.Errorf("read tcp: connection reset by peer"), true},
	}
	for _, c := range cases {
		if got := isTransient(context.Background(), c.err); got != c.want {
			t.Errorf("isTransient(%s) = %v, want %v", c.name, got, c.want)
		}
	}
}

// The http client's per-request timeout wraps context.DeadlineExceeded;
// it must still classify as transient unless the caller's own context is
// done.
func TestIsTransient_ClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 30 * time.Millisecond}
	_, err := client.Post(srv.URL, "text/xml", strings.NewReader("<ENVELOPE/>"))
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("timeout error does not wrap DeadlineExceeded: %v", err)
	}
	if !isTransient(context.Background(), err) {
		t.Errorf("per-request timeout classified non-transient: %v", err)
	}

	callerCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if isTransient(callerCtx, err) {
		t.Error("caller cancellation classified transient")
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
