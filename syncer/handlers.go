package syncer

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/gin-gonic/gin"
)

// The shell surface: thin handlers that validate arguments, invoke the
// orchestrator and format a result. No business logic lives here.

type TriggerSyncRequest struct {
	Entities []string `json:"entities"`
}

type StatusResponse struct {
	EntityType         string `json:"entityType"`
	SyncMode           string `json:"syncMode"`
	LastMaxChangeID    string `json:"lastMaxChangeId"`
	FirstSyncCompleted bool   `json:"firstSyncCompleted"`
	Running            bool   `json:"running"`
}

type SyncRunResponse struct {
	RunID       string  `json:"runId"`
	Status      string  `json:"status"`
	TriggeredBy string  `json:"triggeredBy"`
	StartedAt   *string `json:"startedAt"`
	FinishedAt  *string `json:"finishedAt"`
	DurationMs  int64   `json:"durationMs"`
	ErrorCount  int     `json:"errorCount"`
}

func TriggerSyncHandler(orchestrator *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		for _, entity := range req.Entities {
			if !validEntity(entity) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity: " + entity})
				return
			}
		}

		run, results, err := orchestrator.Run(c.Request.Context(), models.SyncTriggeredManual, req.Entities)
		if err != nil {
			if errors.Is(err, utils.ErrSyncInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"runId":   run.RunID,
			"status":  run.Status,
			"results": results,
		})
	}
}

func StatusHandler(orchestrator *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity := strings.ToUpper(strings.TrimSpace(c.Param("entity")))
		if !validEntity(entity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity: " + entity})
			return
		}
		checkpoint, err := orchestrator.Status(entity)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, StatusResponse{
			EntityType:         checkpoint.EntityType,
			SyncMode:           checkpoint.SyncMode,
			LastMaxChangeID:    checkpoint.LastMaxChangeID,
			FirstSyncCompleted: checkpoint.FirstSyncCompleted,
			Running:            orchestrator.Running(),
		})
	}
}

func StopHandler(orchestrator *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !orchestrator.Running() {
			c.JSON(http.StatusOK, gin.H{"stopped": false, "message": "no run in progress"})
			return
		}
		orchestrator.RequestStop()
		c.JSON(http.StatusOK, gin.H{"stopped": true})
	}
}

func SyncHistoryHandler(runs *store.RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}
		list, err := runs.ListRuns(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items := make([]SyncRunResponse, 0, len(list))
		for _, run := range list {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func SyncRunDetailHandler(runs *store.RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := strings.TrimSpace(c.Param("id"))
		run, err := runs.GetRun(runID)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		logs, err := runs.ListLogs(runID, 200)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run":   mapRunToResponse(*run),
			"stats": run.StatsJSON,
			"logs":  logs,
		})
	}
}

// RestageHandler runs the windowed resume engine for one entity: an
// operator repair path that re-walks change-id windows from the current
// checkpoint and re-stages everything locally. Shares the single-run
// guard with scheduled syncs.
func RestageHandler(orchestrator *Orchestrator, engines map[string]*ResumeEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity := strings.ToUpper(strings.TrimSpace(c.Param("entity")))
		engine, ok := engines[entity]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity: " + entity})
			return
		}
		run, results, err := orchestrator.RunOne(c.Request.Context(), models.SyncTriggeredManual, engine)
		if err != nil {
			if errors.Is(err, utils.ErrSyncInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"runId":   run.RunID,
			"status":  run.Status,
			"results": results,
		})
	}
}

func validEntity(entity string) bool {
	for _, known := range models.AllEntityTypes {
		if entity == known {
			return true
		}
	}
	return false
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		RunID:       run.RunID,
		Status:      run.Status,
		TriggeredBy: run.TriggeredBy,
		StartedAt:   formatTime(run.StartedAt),
		FinishedAt:  formatTime(run.FinishedAt),
		DurationMs:  run.DurationMs,
		ErrorCount:  run.ErrorCount,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
