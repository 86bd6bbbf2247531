package xview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnnouncementRoundTrip(t *testing.T) {
	in := &Announcement{
		ID:            "ann-1",
		ServiceName:   "tenant-unit",
		SessionID:     "sess-7",
		State:         PresenceAvailable,
		CorrelationID: "corr-3",
		Routes: []RoutePair{
			{EventType: "tenant.created", Channel: "tenant-in"},
			{EventType: "tenant.changed", Channel: "tenant-in"},
		},
	}

	msg := in.Encode()
	require.Equal(t, ControlAnnouncement, msg.Kind)
	require.Equal(t, "announcement", msg.KindName)

	out, err := DecodeAnnouncement(msg)
	require.NoError(t, err)
	require.Equal(t, in.ID, out.ID)
	require.Equal(t, in.ServiceName, out.ServiceName)
	require.Equal(t, in.SessionID, out.SessionID)
	require.Equal(t, in.State, out.State)
	require.Equal(t, in.CorrelationID, out.CorrelationID)
	require.Equal(t, in.Routes, out.Routes)
}

func TestEncodeSkipsEmptyRouteTypes(t *testing.T) {
	a := &Announcement{
		ID:          "ann-1",
		ServiceName: "tenant-unit",
		State:       PresenceAvailable,
		Routes:      []RoutePair{{EventType: "  ", Channel: "x"}},
	}
	out, err := DecodeAnnouncement(a.Encode())
	require.NoError(t, err)
	require.Empty(t, out.Routes)
}

func TestDecodeAnnouncementRejectsOtherFamilies(t *testing.T) {
	_, err := DecodeAnnouncement(&ControlMessage{Kind: ControlCommand})
	require.ErrorIs(t, err, ErrNotAnnouncement)

	_, err = DecodeAnnouncement(nil)
	require.ErrorIs(t, err, ErrNotAnnouncement)
}

func TestDecodeAnnouncementRequiresServiceName(t *testing.T) {
	msg := &ControlMessage{
		ID:   "ann-1",
		Kind: ControlAnnouncement,
		Spec: NewSpecification(Attribute{Name: AttrPresenceState, Value: "available"}),
	}
	_, err := DecodeAnnouncement(msg)
	require.Error(t, err)
}

func TestControlKindRoundTrip(t *testing.T) {
	for _, k := range []ControlKind{ControlAnnouncement, ControlRegistered, ControlCommand} {
		require.Equal(t, k, ParseControlKind(k.String()))
	}
	require.Equal(t, ControlUnknown, ParseControlKind("gossip"))
}

func TestAnnouncerLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	an, err := NewAnnouncer(pub, "control", "tenant-unit",
		[]RoutePair{{EventType: "tenant.created", Channel: "tenant-in"}}, 0, nil, nil)
	require.NoError(t, err)

	require.NoError(t, an.Start(context.Background()))
	require.NoError(t, an.Close(context.Background()))
	// Close is idempotent.
	require.NoError(t, an.Close(context.Background()))

	msgs := pub.published()
	require.Len(t, msgs, 2)

	first, err := DecodeAnnouncement(msgs[0])
	require.NoError(t, err)
	require.Equal(t, PresenceAvailable, first.State)
	require.Equal(t, "tenant-unit", first.ServiceName)
	require.NotEmpty(t, first.SessionID)

	second, err := DecodeAnnouncement(msgs[1])
	require.NoError(t, err)
	require.Equal(t, PresenceWithdrawn, second.State)
	require.Equal(t, first.SessionID, second.SessionID)
	require.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestNewAnnouncerValidation(t *testing.T) {
	_, err := NewAnnouncer(nil, "control", "svc", nil, 0, nil, nil)
	require.Error(t, err)

	_, err = NewAnnouncer(&fakePublisher{}, "control", " ", nil, 0, nil, nil)
	require.Error(t, err)
}
