package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/trickstertwo/xview"
)

// WriteStore is an in-memory write-model store with the push capability:
// committed changes are delivered to every subscribed handler. Delivery runs
// in the committing goroutine, which keeps tests deterministic.
type WriteStore struct {
	mu      sync.RWMutex
	states  map[string]xview.AggregateState
	subs    map[int]xview.Handler
	nextSub int
}

var (
	_ xview.WriteModelStore = (*WriteStore)(nil)
	_ xview.Subscribable    = (*WriteStore)(nil)
)

// NewWriteStore creates an empty write-model store.
func NewWriteStore() *WriteStore {
	return &WriteStore{
		states: make(map[string]xview.AggregateState),
		subs:   make(map[int]xview.Handler),
	}
}

// Put seeds aggregate state without emitting a change notification.
func (w *WriteStore) Put(state xview.AggregateState) {
	w.mu.Lock()
	w.states[state.ID] = state
	w.mu.Unlock()
}

// Commit stores the aggregate state and pushes a change event of the given
// type name to every subscriber. The event references the aggregate through a
// changed-element reference carrying the change kind.
func (w *WriteStore) Commit(ctx context.Context, state xview.AggregateState, eventName string, kind xview.ChangeKind) (*xview.DomainEvent, error) {
	if state.ID == "" {
		return nil, errors.New("memory: aggregate state requires an id")
	}
	occurred := state.UpdatedAt
	if occurred.IsZero() {
		occurred = state.CreatedAt
	}
	ev, err := xview.NewDomainEvent(uuid.NewString(), eventName, kind, occurred, nil)
	if err != nil {
		return nil, err
	}
	ev.Changed = &xview.ElementReference{EntityID: state.ID, State: kind}

	w.mu.Lock()
	w.states[state.ID] = state
	handlers := make([]xview.Handler, 0, len(w.subs))
	for _, h := range w.subs {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	for _, h := range handlers {
		// Subscribers already log-and-skip; a handler error never blocks the commit.
		_ = h(ctx, ev)
	}
	return ev, nil
}

func (w *WriteStore) Rehydrate(_ context.Context, id string) (xview.AggregateState, bool, error) {
	w.mu.RLock()
	state, ok := w.states[id]
	w.mu.RUnlock()
	return state, ok, nil
}

// Subscribe registers a push handler for committed changes.
func (w *WriteStore) Subscribe(h xview.Handler) (xview.Subscription, error) {
	if h == nil {
		return nil, errors.New("memory: subscribe handler must not be nil")
	}
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = h
	w.mu.Unlock()

	return subscription{close: func() error {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
		return nil
	}}, nil
}

type subscription struct{ close func() error }

func (s subscription) Close() error {
	if s.close != nil {
		return s.close()
	}
	return nil
}
