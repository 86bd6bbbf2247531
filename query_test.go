package xview

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seedCollection(t *testing.T, store *fakeProjectionStore, id, label string, versions int, base time.Time) time.Time {
	t.Helper()

	stamps := make([]time.Time, 0, versions)
	for i := 0; i < versions; i++ {
		stamps = append(stamps, base.Add(time.Duration(i)*time.Minute))
	}
	newest := stamps[len(stamps)-1]
	rand.Shuffle(len(stamps), func(i, j int) { stamps[i], stamps[j] = stamps[j], stamps[i] })

	col := NewCollection(id, RecordVersion{Label: label, Active: true, VersionedAt: stamps[0]})
	for _, ts := range stamps[1:] {
		col.Append(RecordVersion{Label: label, Active: true, VersionedAt: ts})
	}
	_, err := store.Save(context.Background(), col)
	require.NoError(t, err)
	return newest
}

func TestFindReturnsLatestRegardlessOfInsertionOrder(t *testing.T) {
	store := newFakeProjectionStore()
	q, err := NewLabelQuery(store, nil)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var newest time.Time
	for i := 0; i < 5; i++ {
		ts := seedCollection(t, store, fmt.Sprintf("agg-%d", i), fmt.Sprintf("CYBNITY_%d", i), 15, base.Add(time.Duration(i)*time.Hour))
		if i == 4 {
			newest = ts
		}
	}

	got, err := q.Find(context.Background(), "CYBNITY_4", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.VersionedAt.Equal(newest))
}

func TestFindEmptyLabelRejected(t *testing.T) {
	q, err := NewLabelQuery(newFakeProjectionStore(), nil)
	require.NoError(t, err)

	_, err = q.Find(context.Background(), "  ", nil)
	require.ErrorIs(t, err, ErrEmptyLabel)
}

func TestFindNoMatchIsNotAnError(t *testing.T) {
	q, err := NewLabelQuery(newFakeProjectionStore(), nil)
	require.NoError(t, err)

	got, err := q.Find(context.Background(), "missing", nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindDuplicateLabelRefusesToGuess(t *testing.T) {
	store := newFakeProjectionStore()
	q, err := NewLabelQuery(store, nil)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedCollection(t, store, "agg-a", "CYBNITY", 3, base)
	seedCollection(t, store, "agg-b", "CYBNITY", 3, base.Add(time.Hour))

	got, err := q.Find(context.Background(), "CYBNITY", nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindActivityFilterNarrows(t *testing.T) {
	store := newFakeProjectionStore()
	q, err := NewLabelQuery(store, nil)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	col := NewCollection("u1", RecordVersion{Label: "CYBNITY", Active: true, VersionedAt: base})
	col.Append(RecordVersion{Label: "CYBNITY", Active: false, VersionedAt: base.Add(time.Minute)})
	_, err = store.Save(context.Background(), col)
	require.NoError(t, err)

	inactive := false
	got, err := q.Find(context.Background(), "CYBNITY", &inactive)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.False(t, got.Active)

	// The latest version is inactive, so an active-only lookup finds nothing.
	active := true
	got, err = q.Find(context.Background(), "CYBNITY", &active)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindStoreFailureSurfacesAsOperationalError(t *testing.T) {
	store := newFakeProjectionStore()
	store.err = fmt.Errorf("socket closed")
	q, err := NewLabelQuery(store, nil)
	require.NoError(t, err)

	_, err = q.Find(context.Background(), "CYBNITY", nil)
	require.ErrorIs(t, err, ErrOperationalState)
}
