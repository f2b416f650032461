package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BalanceQueue decouples the balance-refresh side effect from the
// voucher pipelines: successful invoice/receipt pushes enqueue the
// distinct receivable ledgers here, and a single worker drains them with
// a fixed delay between calls. Refresh failures are logged only; they
// never feed back into a pipeline's success or failure.
type BalanceQueue struct {
	refresher BalanceRefresher
	logger    *logrus.Logger
	delay     time.Duration

	tasks chan string

	mu      sync.Mutex
	pending map[string]bool
}

func NewBalanceQueue(refresher BalanceRefresher, logger *logrus.Logger, delay time.Duration) *BalanceQueue {
	return &BalanceQueue{
		refresher: refresher,
		logger:    logger,
		delay:     delay,
		tasks:     make(chan string, 1024),
		pending:   map[string]bool{},
	}
}

// Start runs the worker until ctx is cancelled.
func (q *BalanceQueue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ledgerID := <-q.tasks:
				q.mu.Lock()
				delete(q.pending, ledgerID)
				q.mu.Unlock()

				if err := q.refresher.RefreshCustomerBalance(ctx, ledgerID); err != nil {
					q.logger.WithFields(logrus.Fields{
						"module": "syncer",
						"ledger": ledgerID,
					}).Warn("balance refresh failed: " + err.Error())
				}
				if q.delay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(q.delay):
					}
				}
			}
		}
	}()
}

// Enqueue schedules refreshes for the given ledgers. Duplicates already
// waiting are collapsed; a full queue drops the task with a log line
// rather than blocking a pipeline.
func (q *BalanceQueue) Enqueue(ledgerIDs ...string) {
	for _, ledgerID := range ledgerIDs {
		if ledgerID == "" {
			continue
		}
		q.mu.Lock()
		if q.pending[ledgerID] {
			q.mu.Unlock()
			continue
		}
		q.pending[ledgerID] = true
		q.mu.Unlock()

		select {
		case q.tasks <- ledgerID:
		default:
			q.mu.Lock()
			delete(q.pending, ledgerID)
			q.mu.Unlock()
			q.logger.WithFields(logrus.Fields{
				"module": "syncer",
				"ledger": ledgerID,
			}).Warn("balance refresh queue full; dropping task")
		}
	}
}
