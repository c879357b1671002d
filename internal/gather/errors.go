package gather

import "errors"

// Error kinds of a sync run. Only ErrUpstreamUnavailable ends a run; the
// others become Failure outcomes of a single symbol.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrFetchFailed         = errors.New("fetch failed")
	ErrNoNewData           = errors.New("no new data")
	ErrPersistFailed       = errors.New("persist failed")
)

// Outcome messages.
const (
	MsgDelisted   = "Delisted"
	MsgUpToDate   = "Already up-to-date"
	MsgNoNewData  = "No new data"
	msgAddedRowsF = "Added %d rows"
)

// fetchError wraps a provider error. Its outcome message is the provider's
// own error text.
type fetchError struct {
	cause error
}

func (e *fetchError) Error() string   { return ErrFetchFailed.Error() + ": " + e.cause.Error() }
func (e *fetchError) Unwrap() []error { return []error{ErrFetchFailed, e.cause} }
