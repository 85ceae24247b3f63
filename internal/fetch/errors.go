package fetch

import (
	"fmt"

	"kabu/internal/domain"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// TransientError marks a failure worth retrying: network problems, server
// errors, truncated or unparseable payloads.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure retrying cannot fix, such as an unknown
// symbol or a market the source does not cover. The retry loop stops as
// soon as it sees one.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent reports that this error must not be retried.
func (e *PermanentError) Permanent() bool { return true }

// FetchError reports that no usable data could be obtained for a requested
// range, after the cache and all fetch attempts were exhausted. Callers
// treat it as a per-instrument failure rather than a fatal one.
type FetchError struct {
	Symbol   string
	Interval domain.Interval
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s %s: no data: %v", e.Symbol, e.Interval, e.Err)
	}
	return fmt.Sprintf("fetch %s %s: no data in requested range", e.Symbol, e.Interval)
}

func (e *FetchError) Unwrap() error { return e.Err }

func transientErr(op string, err error) error { return &TransientError{Op: op, Err: err} }

func permanentErr(op string, err error) error { return &PermanentError{Op: op, Err: err} }
