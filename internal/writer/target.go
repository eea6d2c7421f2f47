package writer

import "context"

// UpsertStatus classifies the outcome of an async upsert call, mirroring
// the status codes the write-completion callback switches on (spec
// §4.8): some are not-an-error (RecordExists/RecordBusy), some are
// transient (worth retrying), and everything else is permanent.
type UpsertStatus int

const (
	StatusSuccess UpsertStatus = iota
	StatusRecordExists
	StatusRecordBusy
	StatusTimeout
	StatusQueueFull
	StatusConnection
	StatusNoMoreConnections
	StatusAsyncConnection
	StatusCluster
	StatusPermanentError
)

// Transient reports whether status warrants pushing the row onto the
// retry queue rather than counting it as failed.
func (s UpsertStatus) Transient() bool {
	switch s {
	case StatusTimeout, StatusQueueFull, StatusConnection, StatusNoMoreConnections, StatusAsyncConnection, StatusCluster:
		return true
	default:
		return false
	}
}

// Existing reports whether status means the record was already present
// under create-only-if-absent semantics — not an error.
func (s UpsertStatus) Existing() bool {
	return s == StatusRecordExists || s == StatusRecordBusy
}

// Record is the materialized row handed to a Target: a partition key
// plus its live columns, already merged and deletion-filtered by
// internal/merge.
type Record struct {
	Key     []byte
	Columns map[string][]byte
}

// Target is the external key/value store contract a writer Pool drains
// into. Upsert must eventually invoke done exactly once, from any
// goroutine, with the write's outcome.
type Target interface {
	Upsert(ctx context.Context, namespace, set string, record *Record, ttlSeconds int64, done func(UpsertStatus))
}
