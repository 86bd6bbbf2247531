package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/trickstertwo/xview"
)

// Store implements xview.ProjectionStore with a plain map (dev/testing).
// Collections are cloned on the way in and out so callers never share
// internal state.
type Store struct {
	mu   sync.RWMutex
	cols map[string]*xview.Collection
}

var _ xview.ProjectionStore = (*Store)(nil)

// NewStore creates an empty in-memory projection store.
func NewStore() *Store {
	return &Store{cols: make(map[string]*xview.Collection)}
}

func (s *Store) Save(_ context.Context, rec *xview.Collection) (*xview.Collection, error) {
	if rec == nil || rec.AggregateID == "" {
		return nil, errors.New("memory: collection requires an aggregate id")
	}
	stored := rec.Clone()
	s.mu.Lock()
	s.cols[rec.AggregateID] = stored
	s.mu.Unlock()
	return stored.Clone(), nil
}

func (s *Store) FindByID(_ context.Context, id string) (*xview.Collection, bool, error) {
	s.mu.RLock()
	col, ok := s.cols[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return col.Clone(), true, nil
}

// QueryWhere filters collections by their latest version. Understood filters:
// "label" (exact match) and "active" ("true"/"false"). Tombstoned collections
// never match.
func (s *Store) QueryWhere(_ context.Context, filters map[string]string) ([]*xview.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*xview.Collection
	for _, col := range s.cols {
		if col.Tombstoned {
			continue
		}
		latest, ok := col.Latest()
		if !ok {
			continue
		}
		if want, has := filters[xview.FilterLabel]; has && latest.Label != want {
			continue
		}
		if want, has := filters[xview.FilterActive]; has {
			if strconv.FormatBool(latest.Active) != want {
				continue
			}
		}
		out = append(out, col.Clone())
	}
	return out, nil
}

func (s *Store) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.cols, id)
	s.mu.Unlock()
	return nil
}
