// Package apperr defines the sentinel errors shared across gleaner packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")

	ErrNoValidSelection     = errors.New("no valid selection")
	ErrCandidateUnavailable = errors.New("candidate unavailable")
	ErrEnrichmentFailed     = errors.New("enrichment failed")
	ErrPersistenceFailed    = errors.New("persistence failed")
	ErrBatchAborted         = errors.New("batch aborted")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNoValidSelection, "NoValidSelection"},
	{ErrCandidateUnavailable, "CandidateUnavailable"},
	{ErrEnrichmentFailed, "EnrichmentFailed"},
	{ErrPersistenceFailed, "PersistenceFailed"},
	{ErrBatchAborted, "BatchAborted"},
	{ErrNotFound, "NotFound"},
	{ErrInvalidRecord, "InvalidRecord"},
}

// Kind returns the taxonomy name of the first sentinel err wraps,
// or "Unknown" when it wraps none. A nil error has no kind.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}
