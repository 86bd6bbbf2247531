package xview

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyLabel rejects queries issued without a lookup key.
	ErrEmptyLabel = errors.New("xview: label must not be empty")

	// ErrUnsupportedQuery reports a command type with no bound query handler.
	ErrUnsupportedQuery = errors.New("xview: unsupported query type")

	// ErrOperationalState wraps backend/persistence failures so callers never
	// see a raw store error.
	ErrOperationalState = errors.New("xview: operational state failure")

	// ErrEngineClosed reports an operation against a closed engine.
	ErrEngineClosed = errors.New("xview: engine is closed")

	// ErrNilStore rejects construction without a persistence dependency.
	ErrNilStore = errors.New("xview: store must not be nil")

	// ErrNilWriteModel rejects construction without a write-model dependency.
	ErrNilWriteModel = errors.New("xview: write-model store must not be nil")

	// ErrObserverPoolShutdownTimeout reports that queued view-change events
	// could not be drained before the close deadline.
	ErrObserverPoolShutdownTimeout = errors.New("xview: observer pool shutdown timeout")
)

// ErrUnknownChannel reports a control-channel adapter name with no registered
// factory.
type ErrUnknownChannel struct{ name string }

func (e ErrUnknownChannel) Error() string { return fmt.Sprintf("unknown control channel: %s", e.name) }

// operational wraps a backend failure under ErrOperationalState, keeping the
// cause available to errors.Is/As.
func operational(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrOperationalState, op, cause)
}
