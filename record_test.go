package xview

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollectionLatestByTimestampNotInsertionOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	versions := make([]RecordVersion, 0, 15)
	for i := 0; i < 15; i++ {
		versions = append(versions, RecordVersion{
			Label:       "CYBNITY",
			Active:      i%2 == 0,
			VersionedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	newest := versions[len(versions)-1]

	rand.Shuffle(len(versions), func(i, j int) { versions[i], versions[j] = versions[j], versions[i] })

	col := NewCollection("u1", versions[0])
	for _, v := range versions[1:] {
		require.True(t, col.Append(v))
	}

	latest, ok := col.Latest()
	require.True(t, ok)
	require.True(t, latest.VersionedAt.Equal(newest.VersionedAt))
}

func TestCollectionAppendIsIdempotent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := RecordVersion{Label: "CYBNITY", Active: true, VersionedAt: ts}

	col := NewCollection("u1", v)
	require.False(t, col.Append(v))
	require.Len(t, col.Versions, 1)

	// Same state but a different commit marker is still the same version.
	dup := v
	dup.CommitVersion = 42
	require.False(t, col.Append(dup))

	// A different timestamp is a new version.
	next := v
	next.VersionedAt = ts.Add(time.Second)
	require.True(t, col.Append(next))
	require.Len(t, col.Versions, 2)
}

func TestCollectionCloneIsIndependent(t *testing.T) {
	v := RecordVersion{Label: "a", VersionedAt: time.Now()}
	col := NewCollection("u1", v)

	cp := col.Clone()
	cp.Append(RecordVersion{Label: "b", VersionedAt: v.VersionedAt.Add(time.Hour)})

	require.Len(t, col.Versions, 1)
	require.Len(t, cp.Versions, 2)
}

func TestCollectionLatestEmpty(t *testing.T) {
	var col *Collection
	_, ok := col.Latest()
	require.False(t, ok)
}
