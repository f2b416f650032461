package syncer

import (
	"context"
	"sync"
	"sync/atomic"

	"bitbucket.org/mmdatafocus/tally_sync_agent/config"
	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/sirupsen/logrus"
)

// EntityRunner is one sequenced unit of a run: an entity pipeline or the
// deletion reconciler.
type EntityRunner interface {
	EntityType() string
	Run(ctx context.Context, runID string) SyncResult
}

// Orchestrator sequences the entity runners and aggregates a run-level
// outcome. Runners execute sequentially: vouchers assume customer
// ledgers are already resolved, and the embedded store has a single
// writer. At most one orchestrated run executes at a time; a second
// trigger is a logged no-op, never queued.
type Orchestrator struct {
	runners     []EntityRunner
	runs        *store.RunStore
	checkpoints *store.CheckpointStore
	logger      *logrus.Logger

	mu      sync.Mutex
	running bool
	stop    atomic.Bool
}

func NewOrchestrator(runs *store.RunStore, checkpoints *store.CheckpointStore, logger *logrus.Logger, runners ...EntityRunner) *Orchestrator {
	return &Orchestrator{
		runners:     runners,
		runs:        runs,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Run executes one full orchestrated pass. entities filters the runner
// sequence (nil means all) without changing its order. Returns
// ErrSyncInProgress when a run is already active.
func (o *Orchestrator) Run(ctx context.Context, triggeredBy string, entities []string) (*models.SyncRun, []SyncResult, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.WithFields(logrus.Fields{
			"module":    "syncer",
			"triggered": triggeredBy,
		}).Info("sync trigger discarded; a run is already in progress")
		return nil, nil, utils.ErrSyncInProgress
	}
	o.running = true
	o.stop.Store(false)
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	run, err := o.runs.CreateRun(triggeredBy)
	if err != nil {
		return nil, nil, err
	}
	ctx = utils.SetRunIdInContext(ctx, run.RunID)

	wanted := map[string]bool{}
	for _, entity := range entities {
		wanted[entity] = true
	}

	var results []SyncResult
	errorCount := 0
	for _, runner := range o.runners {
		if len(wanted) > 0 && !wanted[runner.EntityType()] {
			continue
		}
		if o.stop.Load() {
			break
		}

		result := runner.Run(ctx, run.RunID)
		results = append(results, result)
		errorCount += result.FailedCount

		o.logger.WithFields(logrus.Fields{
			"module":  "syncer",
			"run_id":  run.RunID,
			"entity":  result.EntityType,
			"status":  result.Status,
			"success": result.SuccessCount,
			"failed":  result.FailedCount,
		}).Info("entity sync finished")
	}

	status := runStatus(results, o.stop.Load())
	if err := o.runs.CloseRun(run, status, results, errorCount); err != nil {
		config.LogError(o.logger, "syncer", "Run", "close run", run.RunID, err)
	}
	run.Status = status
	return run, results, nil
}

// RunOne executes a single ad hoc runner under the same single-run
// guard as a full pass. Used for the windowed re-stage repair path.
func (o *Orchestrator) RunOne(ctx context.Context, triggeredBy string, runner EntityRunner) (*models.SyncRun, []SyncResult, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.WithFields(logrus.Fields{
			"module":    "syncer",
			"triggered": triggeredBy,
			"entity":    runner.EntityType(),
		}).Info("sync trigger discarded; a run is already in progress")
		return nil, nil, utils.ErrSyncInProgress
	}
	o.running = true
	o.stop.Store(false)
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	run, err := o.runs.CreateRun(triggeredBy)
	if err != nil {
		return nil, nil, err
	}
	ctx = utils.SetRunIdInContext(ctx, run.RunID)

	result := runner.Run(ctx, run.RunID)
	results := []SyncResult{result}

	status := runStatus(results, o.stop.Load())
	if err := o.runs.CloseRun(run, status, results, result.FailedCount); err != nil {
		config.LogError(o.logger, "syncer", "RunOne", "close run", run.RunID, err)
	}
	run.Status = status
	return run, results, nil
}

// RequestStop asks the active run to stop at the next batch boundary.
// There is no cancellation token; in-flight network calls finish on
// their own timeouts.
func (o *Orchestrator) RequestStop() {
	o.stop.Store(true)
}

func (o *Orchestrator) StopRequested() bool {
	return o.stop.Load()
}

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Status reports one entity's checkpoint.
func (o *Orchestrator) Status(entityType string) (*models.EntityCheckpoint, error) {
	return o.checkpoints.GetOrCreate(entityType)
}

func runStatus(results []SyncResult, stopped bool) string {
	if stopped {
		return models.SyncRunStatusStopped
	}
	if len(results) == 0 {
		return models.SyncRunStatusSuccess
	}
	failures := 0
	successes := 0
	for _, result := range results {
		switch result.Status {
		case models.SyncRunStatusFailed:
			failures++
		default:
			successes++
		}
	}
	switch {
	case failures == 0:
		return models.SyncRunStatusSuccess
	case successes == 0:
		return models.SyncRunStatusFailed
	default:
		return models.SyncRunStatusPartial
	}
}
