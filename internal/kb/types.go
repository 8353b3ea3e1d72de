package kb

import "errors"

// ErrInvalidQuery is returned for empty or blank queries, before any network call.
var ErrInvalidQuery = errors.New("invalid query")

// ErrBackendUnavailable wraps transport and upstream failures of the
// knowledge-base backend. Callers match it with errors.Is.
var ErrBackendUnavailable = errors.New("knowledge base unavailable")

// Passage is a retrieved text fragment with its relevance score and source
// metadata. Immutable once returned; PageNumber 0 means the backend reported
// no page for the passage.
type Passage struct {
	Text       string
	Score      float64
	SourceURI  string
	PageNumber int
}

// SearchMode selects the retrieval strategy on the backend.
type SearchMode string

const (
	SearchModeVector SearchMode = "vector"
	SearchModeHybrid SearchMode = "hybrid"
)

// JobStatus is the lifecycle state of a remote ingestion job.
type JobStatus string

const (
	JobStarting   JobStatus = "STARTING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobComplete   JobStatus = "COMPLETE"
	JobFailed     JobStatus = "FAILED"
	JobStopped    JobStatus = "STOPPED"
)

// Terminal reports whether the status ends the job's lifecycle. Polling must
// halt unconditionally on a terminal status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobComplete, JobFailed, JobStopped:
		return true
	}
	return false
}

// IngestionJob identifies a triggered knowledge-base refresh job.
type IngestionJob struct {
	ID     string
	Status JobStatus
}
