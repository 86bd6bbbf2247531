package xview

import (
	"context"
	"time"
)

// Handler processes a single change notification. Return error to have the
// boundary log-and-skip; one bad event never halts the pipeline.
type Handler func(ctx context.Context, e *DomainEvent) error

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// Subscription represents an active subscription that can be closed.
type Subscription interface {
	Close() error
}

// Repository is the generic persistence contract shared by every projection
// record type. Implementations must be safe for concurrent use.
type Repository[T any] interface {
	// Save persists the record and returns the stored form.
	Save(ctx context.Context, rec T) (T, error)
	// FindByID resolves one record by its key.
	FindByID(ctx context.Context, id string) (T, bool, error)
	// QueryWhere returns every record matching all filters.
	QueryWhere(ctx context.Context, filters map[string]string) ([]T, error)
	// DeleteByID removes a record; deleting a missing record is not an error.
	DeleteByID(ctx context.Context, id string) error
}

// ProjectionStore persists projection history collections.
type ProjectionStore = Repository[*Collection]

// AggregateState is the authoritative write-model snapshot of one aggregate,
// rehydrated in full before any view is computed.
type AggregateState struct {
	ID            string
	Label         string
	Active        bool
	CommitVersion uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WriteModelStore exposes the authoritative state the projection derives from.
type WriteModelStore interface {
	Rehydrate(ctx context.Context, id string) (AggregateState, bool, error)
}

// Subscribable is the optional push capability of a write-model store: the
// registry subscribes itself so every committed change is delivered without
// polling.
type Subscribable interface {
	Subscribe(h Handler) (Subscription, error)
}

// QueryHandler executes one bound query for a dispatched command.
type QueryHandler func(ctx context.Context, cmd *Command) (any, error)

// ControlPublisher emits control-channel messages. The router treats a nil
// publisher as notification disabled.
type ControlPublisher interface {
	Publish(ctx context.Context, topic string, msg *ControlMessage) error
}

// ControlChannel is a named pub/sub topic carrying presence announcements and
// routing notifications.
type ControlChannel interface {
	ControlPublisher
	Subscribe(ctx context.Context, topic string, handler func(*ControlMessage)) (Subscription, error)
	Close(ctx context.Context) error
}

// ViewObserver receives view-change notifications after a successful
// projection commit. Implementations should be non-blocking.
type ViewObserver interface {
	OnViewChange(ViewChange)
}
