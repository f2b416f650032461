package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrSyncInProgress is returned when a trigger arrives while a full
// orchestrated run is already executing. The trigger is discarded, not
// queued.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// ErrNotConfigured covers top-level configuration failures (missing API
// key, missing company) that are raised before any batch work begins.
var ErrNotConfigured = errors.New("sync agent is not configured")
