package xview

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// DeletePolicy selects what a Transaction does with DELETED change events.
// The default keeps deletions out of the projection entirely.
type DeletePolicy uint8

const (
	// DeleteIgnore leaves the projection untouched.
	DeleteIgnore DeletePolicy = iota
	// DeleteTombstone marks the collection tombstoned but keeps its history.
	DeleteTombstone
	// DeleteRemove hard-deletes the collection from the projection store.
	DeleteRemove
)

// Transaction keeps one denormalized view family consistent with the
// write-model store. It always rehydrates full current state rather than
// applying event deltas, which makes duplicate and out-of-order delivery safe.
type Transaction struct {
	write  WriteModelStore
	store  ProjectionStore
	policy DeletePolicy
	clock  xclock.Clock
	logger *xlog.Logger

	// notify is invoked after each successful commit; nil disables it.
	notify func(ViewChange)
}

// TransactionOption configures a Transaction.
type TransactionOption func(*Transaction)

// WithDeletePolicy selects the DELETED handling policy.
func WithDeletePolicy(p DeletePolicy) TransactionOption {
	return func(t *Transaction) { t.policy = p }
}

// WithTransactionLogger injects a logger.
func WithTransactionLogger(l *xlog.Logger) TransactionOption {
	return func(t *Transaction) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTransactionClock injects a clock.
func WithTransactionClock(c xclock.Clock) TransactionOption {
	return func(t *Transaction) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithViewNotifier registers a callback invoked after each committed
// projection mutation.
func WithViewNotifier(fn func(ViewChange)) TransactionOption {
	return func(t *Transaction) { t.notify = fn }
}

// NewTransaction builds the write-path handler for one view family.
func NewTransaction(write WriteModelStore, store ProjectionStore, opts ...TransactionOption) (*Transaction, error) {
	if write == nil {
		return nil, ErrNilWriteModel
	}
	if store == nil {
		return nil, ErrNilStore
	}
	t := &Transaction{
		write:  write,
		store:  store,
		policy: DeleteIgnore,
		clock:  xclock.Default(),
		logger: xlog.Default(),
	}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	return t, nil
}

// OnChangeNotified consumes one write-model change notification. Nil events
// and unrecognized change kinds are ignored; backend failures surface as
// operational-state errors for the boundary to log and skip.
func (t *Transaction) OnChangeNotified(ctx context.Context, e *DomainEvent) error {
	if e == nil {
		return nil
	}
	switch e.ChangeKindOf() {
	case KindCreated:
		return t.onCreated(ctx, e)
	case KindChanged:
		return t.onChanged(ctx, e)
	case KindDeleted:
		return t.onDeleted(ctx, e)
	default:
		return nil
	}
}

// onCreated rehydrates the aggregate and writes its first projection version.
// A creation event for an aggregate not yet fully committed produces nothing:
// a partial record is never written.
func (t *Transaction) onCreated(ctx context.Context, e *DomainEvent) error {
	id := e.SourceAggregateID()
	if id == "" {
		t.logger.With(xlog.Str("event_id", e.ID)).Debug().Msg("xview: creation event without aggregate reference")
		return nil
	}
	state, ok, err := t.write.Rehydrate(ctx, id)
	if err != nil {
		return operational("rehydrate "+id, err)
	}
	if !ok || state.Label == "" {
		return nil
	}
	v, ok := t.viewVersion(e, state)
	if !ok {
		return nil
	}

	existing, found, err := t.store.FindByID(ctx, id)
	if err != nil {
		return operational("find collection "+id, err)
	}
	if found {
		// Duplicate or racing creation: fold into the existing history.
		if !existing.Append(v) {
			return nil
		}
		if _, err := t.store.Save(ctx, existing); err != nil {
			return operational("save collection "+id, err)
		}
		t.emit(ViewUpdated, existing.AggregateID, v, e.ID)
		return nil
	}

	col := NewCollection(id, v)
	if _, err := t.store.Save(ctx, col); err != nil {
		return operational("save collection "+id, err)
	}
	t.emit(ViewCreated, id, v, e.ID)
	return nil
}

// onChanged appends a new version to an existing collection. A CHANGED event
// arriving before any CREATED is dropped; there is no reordering buffer.
func (t *Transaction) onChanged(ctx context.Context, e *DomainEvent) error {
	id := e.SourceAggregateID()
	if id == "" {
		return nil
	}
	state, ok, err := t.write.Rehydrate(ctx, id)
	if err != nil {
		return operational("rehydrate "+id, err)
	}
	if !ok || state.Label == "" {
		return nil
	}
	col, found, err := t.store.FindByID(ctx, id)
	if err != nil {
		return operational("find collection "+id, err)
	}
	if !found {
		t.logger.With(xlog.Str("aggregate_id", id)).Debug().Msg("xview: change event before creation dropped")
		return nil
	}
	v, ok := t.viewVersion(e, state)
	if !ok {
		return nil
	}
	if !col.Append(v) {
		return nil
	}
	if _, err := t.store.Save(ctx, col); err != nil {
		return operational("save collection "+id, err)
	}
	t.emit(ViewUpdated, id, v, e.ID)
	return nil
}

func (t *Transaction) onDeleted(ctx context.Context, e *DomainEvent) error {
	id := e.SourceAggregateID()
	if id == "" {
		return nil
	}
	switch t.policy {
	case DeleteTombstone:
		col, found, err := t.store.FindByID(ctx, id)
		if err != nil {
			return operational("find collection "+id, err)
		}
		if !found || col.Tombstoned {
			return nil
		}
		col.Tombstoned = true
		if _, err := t.store.Save(ctx, col); err != nil {
			return operational("save collection "+id, err)
		}
		latest, _ := col.Latest()
		t.emit(ViewTombstoned, id, latest, e.ID)
		return nil
	case DeleteRemove:
		if err := t.store.DeleteByID(ctx, id); err != nil {
			return operational("delete collection "+id, err)
		}
		t.emit(ViewRemoved, id, RecordVersion{}, e.ID)
		return nil
	default:
		return nil
	}
}

// viewVersion computes the denormalized version for a rehydrated state. The
// view timestamp is the event's own, falling back to the aggregate's; when
// neither is resolvable the write is refused.
func (t *Transaction) viewVersion(e *DomainEvent, state AggregateState) (RecordVersion, bool) {
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = state.UpdatedAt
	}
	if ts.IsZero() {
		ts = state.CreatedAt
	}
	if ts.IsZero() {
		t.logger.With(xlog.Str("aggregate_id", state.ID)).Debug().Msg("xview: no resolvable view timestamp, write refused")
		return RecordVersion{}, false
	}
	return RecordVersion{
		Label:         state.Label,
		Active:        state.Active,
		CommitVersion: state.CommitVersion,
		VersionedAt:   ts,
	}, true
}

func (t *Transaction) emit(typ ViewChangeType, aggregateID string, v RecordVersion, causeID string) {
	if t.notify == nil {
		return
	}
	t.notify(ViewChange{
		Type:        typ,
		AggregateID: aggregateID,
		Label:       v.Label,
		Version:     v,
		CauseID:     causeID,
		At:          t.clock.Now(),
	})
}
