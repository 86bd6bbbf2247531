package redisview

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xview"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := Defaults()
	cfg.Addr = mr.Addr()
	cfg.KeyPrefix = "xviewtest"
	return cfg
}

func version(label string, active bool, at time.Time) xview.RecordVersion {
	return xview.RecordVersion{Label: label, Active: active, CommitVersion: 1, VersionedAt: at}
}

func TestStoreSaveAndFindByID(t *testing.T) {
	store, err := NewStore(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	col := xview.NewCollection("U1", version("CYBNITY", true, base))

	saved, err := store.Save(context.Background(), col)
	require.NoError(t, err)
	require.NotSame(t, col, saved)

	got, found, err := store.FindByID(context.Background(), "U1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "U1", got.AggregateID)
	latest, ok := got.Latest()
	require.True(t, ok)
	require.Equal(t, "CYBNITY", latest.Label)
	require.True(t, latest.VersionedAt.Equal(base))

	_, found, err = store.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreSaveRejectsInvalid(t *testing.T) {
	store, err := NewStore(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Save(context.Background(), nil)
	require.Error(t, err)
	_, err = store.Save(context.Background(), &xview.Collection{AggregateID: "U1"})
	require.Error(t, err)
}

func TestStoreQueryWhereByLabel(t *testing.T) {
	store, err := NewStore(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err = store.Save(context.Background(), xview.NewCollection("U1", version("CYBNITY", true, base)))
	require.NoError(t, err)
	_, err = store.Save(context.Background(), xview.NewCollection("U2", version("OTHER", true, base)))
	require.NoError(t, err)

	cols, err := store.QueryWhere(context.Background(), map[string]string{xview.FilterLabel: "CYBNITY"})
	require.NoError(t, err)
	require.Len(t, cols, 1)
	require.Equal(t, "U1", cols[0].AggregateID)

	// No label filter scans the whole keyspace.
	cols, err = store.QueryWhere(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, cols, 2)

	// Activity filter applies to the latest version.
	cols, err = store.QueryWhere(context.Background(), map[string]string{
		xview.FilterLabel:  "CYBNITY",
		xview.FilterActive: "false",
	})
	require.NoError(t, err)
	require.Empty(t, cols)
}

func TestStoreLabelReindexOnChange(t *testing.T) {
	store, err := NewStore(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	col := xview.NewCollection("U1", version("OLD", true, base))
	_, err = store.Save(context.Background(), col)
	require.NoError(t, err)

	require.True(t, col.Append(version("NEW", true, base.Add(time.Minute))))
	_, err = store.Save(context.Background(), col)
	require.NoError(t, err)

	cols, err := store.QueryWhere(context.Background(), map[string]string{xview.FilterLabel: "OLD"})
	require.NoError(t, err)
	require.Empty(t, cols)

	cols, err = store.QueryWhere(context.Background(), map[string]string{xview.FilterLabel: "NEW"})
	require.NoError(t, err)
	require.Len(t, cols, 1)
	require.Equal(t, "U1", cols[0].AggregateID)
}

func TestStoreSkipsTombstoned(t *testing.T) {
	store, err := NewStore(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	col := xview.NewCollection("U1", version("CYBNITY", true, time.Now()))
	col.Tombstoned = true
	_, err = store.Save(context.Background(), col)
	require.NoError(t, err)

	cols, err := store.QueryWhere(context.Background(), map[string]string{xview.FilterLabel: "CYBNITY"})
	require.NoError(t, err)
	require.Empty(t, cols)

	// The collection itself is still addressable by id.
	got, found, err := store.FindByID(context.Background(), "U1")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, got.Tombstoned)
}

func TestStoreDeleteByID(t *testing.T) {
	store, err := NewStore(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Save(context.Background(), xview.NewCollection("U1", version("CYBNITY", true, time.Now())))
	require.NoError(t, err)

	require.NoError(t, store.DeleteByID(context.Background(), "U1"))
	_, found, err := store.FindByID(context.Background(), "U1")
	require.NoError(t, err)
	require.False(t, found)

	cols, err := store.QueryWhere(context.Background(), map[string]string{xview.FilterLabel: "CYBNITY"})
	require.NoError(t, err)
	require.Empty(t, cols)

	// Deleting a missing id is a no-op.
	require.NoError(t, store.DeleteByID(context.Background(), "U1"))
}

func TestChannelPublishSubscribe(t *testing.T) {
	cfg := testConfig(t)
	ch, err := NewChannel(cfg)
	require.NoError(t, err)
	defer ch.Close(context.Background())

	got := make(chan *xview.ControlMessage, 1)
	sub, err := ch.Subscribe(context.Background(), "control", func(msg *xview.ControlMessage) {
		got <- msg
	})
	require.NoError(t, err)
	defer sub.Close()

	ann := &xview.Announcement{
		ID:          "ann-1",
		ServiceName: "unit-a",
		SessionID:   "s-1",
		State:       xview.PresenceAvailable,
		Routes:      []xview.RoutePair{{EventType: "tenant.created", Channel: "tenant-in"}},
	}
	require.NoError(t, ch.Publish(context.Background(), "control", ann.Encode()))

	select {
	case msg := <-got:
		require.Equal(t, xview.ControlAnnouncement, msg.Kind)
		decoded, err := xview.DecodeAnnouncement(msg)
		require.NoError(t, err)
		require.Equal(t, "unit-a", decoded.ServiceName)
		require.Equal(t, ann.Routes, decoded.Routes)
	case <-time.After(2 * time.Second):
		t.Fatal("no control message received")
	}
}

func TestChannelRejectsAfterClose(t *testing.T) {
	ch, err := NewChannel(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, ch.Close(context.Background()))

	err = ch.Publish(context.Background(), "control", &xview.ControlMessage{ID: "x"})
	require.Error(t, err)
	_, err = ch.Subscribe(context.Background(), "control", func(*xview.ControlMessage) {})
	require.Error(t, err)
}

func TestConfigValidateAndFromMap(t *testing.T) {
	require.NoError(t, Defaults().Validate())

	bad := Defaults()
	bad.Addr = ""
	require.Error(t, bad.Validate())

	cfg := ConfigFromMap(map[string]any{
		"addr":         "10.0.0.1:6379",
		"key_prefix":   "views",
		"db":           3,
		"dial_timeout": "2s",
	})
	require.Equal(t, "10.0.0.1:6379", cfg.Addr)
	require.Equal(t, "views", cfg.KeyPrefix)
	require.Equal(t, 3, cfg.DB)
	require.Equal(t, 2*time.Second, cfg.DialTimeout)
	require.Equal(t, "json", cfg.Codec)
}
