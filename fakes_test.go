package xview

import (
	"context"
	"strconv"
	"sync"
)

// fakeWriteStore is a write-model double with optional failure injection.
type fakeWriteStore struct {
	mu     sync.Mutex
	states map[string]AggregateState
	err    error
}

func newFakeWriteStore() *fakeWriteStore {
	return &fakeWriteStore{states: make(map[string]AggregateState)}
}

func (f *fakeWriteStore) put(s AggregateState) {
	f.mu.Lock()
	f.states[s.ID] = s
	f.mu.Unlock()
}

func (f *fakeWriteStore) Rehydrate(_ context.Context, id string) (AggregateState, bool, error) {
	if f.err != nil {
		return AggregateState{}, false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	return s, ok, nil
}

// fakeProjectionStore is an in-package projection store double. It counts
// saves so tests can assert idempotent no-ops.
type fakeProjectionStore struct {
	mu    sync.Mutex
	cols  map[string]*Collection
	saves int
	err   error
}

func newFakeProjectionStore() *fakeProjectionStore {
	return &fakeProjectionStore{cols: make(map[string]*Collection)}
}

func (f *fakeProjectionStore) Save(_ context.Context, rec *Collection) (*Collection, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.cols[rec.AggregateID] = rec.Clone()
	return rec.Clone(), nil
}

func (f *fakeProjectionStore) FindByID(_ context.Context, id string) (*Collection, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.cols[id]
	if !ok {
		return nil, false, nil
	}
	return col.Clone(), true, nil
}

func (f *fakeProjectionStore) QueryWhere(_ context.Context, filters map[string]string) ([]*Collection, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Collection
	for _, col := range f.cols {
		if col.Tombstoned {
			continue
		}
		latest, ok := col.Latest()
		if !ok {
			continue
		}
		if want, has := filters[FilterLabel]; has && latest.Label != want {
			continue
		}
		if want, has := filters[FilterActive]; has && strconv.FormatBool(latest.Active) != want {
			continue
		}
		out = append(out, col.Clone())
	}
	return out, nil
}

func (f *fakeProjectionStore) DeleteByID(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	delete(f.cols, id)
	f.mu.Unlock()
	return nil
}

// fakePublisher captures control messages the router emits.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []*ControlMessage
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, msg *ControlMessage) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) published() []*ControlMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*ControlMessage, len(f.msgs))
	copy(out, f.msgs)
	return out
}
