package xview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// PresenceState is a processing unit's declared availability.
type PresenceState uint8

const (
	PresenceUnknown PresenceState = iota
	PresenceAvailable
	PresenceWithdrawn
)

func (s PresenceState) String() string {
	switch s {
	case PresenceAvailable:
		return "available"
	case PresenceWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// ParsePresenceState decodes a wire-level presence token.
func ParsePresenceState(s string) PresenceState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "available":
		return PresenceAvailable
	case "withdrawn":
		return PresenceWithdrawn
	default:
		return PresenceUnknown
	}
}

// RoutePair declares one event type a processing unit handles and the channel
// it wants deliveries on.
type RoutePair struct {
	EventType string
	Channel   string
}

// Announcement is a processing unit's self-description: which event types it
// handles, where to reach it, and whether it is arriving or leaving.
type Announcement struct {
	ID            string
	ServiceName   string
	SessionID     string
	State         PresenceState
	Routes        []RoutePair
	CorrelationID string
}

// Encode seals the announcement into a control envelope. Route pairs travel
// as prefixed attributes so the envelope stays a flat attribute bag.
func (a *Announcement) Encode() *ControlMessage {
	spec := NewSpecification(
		Attribute{Name: AttrServiceName, Value: a.ServiceName},
		Attribute{Name: AttrPresenceState, Value: a.State.String()},
	)
	if a.SessionID != "" {
		spec = spec.With(AttrSessionID, a.SessionID)
	}
	for _, r := range a.Routes {
		if strings.TrimSpace(r.EventType) == "" {
			continue
		}
		spec = spec.With(attrRoutePrefix+r.EventType, r.Channel)
	}
	msg := &ControlMessage{
		ID:            a.ID,
		CorrelationID: a.CorrelationID,
		Kind:          ControlAnnouncement,
		Spec:          spec,
	}
	return msg.Sealed()
}

// ErrNotAnnouncement rejects control envelopes of another message family.
var ErrNotAnnouncement = errors.New("xview: control message is not a presence announcement")

// DecodeAnnouncement extracts an announcement from a control envelope.
func DecodeAnnouncement(msg *ControlMessage) (*Announcement, error) {
	if msg == nil || msg.Kind != ControlAnnouncement {
		return nil, ErrNotAnnouncement
	}
	a := &Announcement{
		ID:            msg.ID,
		CorrelationID: msg.CorrelationID,
		State:         PresenceUnknown,
	}
	for _, attr := range msg.Spec {
		switch {
		case attr.Name == AttrServiceName:
			a.ServiceName = attr.Value
		case attr.Name == AttrPresenceState:
			a.State = ParsePresenceState(attr.Value)
		case attr.Name == AttrSessionID:
			a.SessionID = attr.Value
		case strings.HasPrefix(attr.Name, attrRoutePrefix):
			a.Routes = append(a.Routes, RoutePair{
				EventType: strings.TrimPrefix(attr.Name, attrRoutePrefix),
				Channel:   attr.Value,
			})
		}
	}
	if a.ServiceName == "" {
		return nil, errors.New("xview: announcement without service name")
	}
	return a, nil
}

// Announcer is the processing-unit side of the presence protocol: it declares
// availability on start, re-announces on an interval, and withdraws on close.
type Announcer struct {
	publisher ControlPublisher
	topic     string
	service   string
	session   string
	routes    []RoutePair
	interval  time.Duration
	clock     xclock.Clock
	logger    *xlog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAnnouncer builds an announcer for one processing unit. interval <= 0
// disables periodic re-announcement (announce on start and withdraw on close
// only).
func NewAnnouncer(publisher ControlPublisher, topic, service string, routes []RoutePair, interval time.Duration, logger *xlog.Logger, clock xclock.Clock) (*Announcer, error) {
	if publisher == nil {
		return nil, errors.New("xview: announcer publisher must not be nil")
	}
	if strings.TrimSpace(service) == "" {
		return nil, errors.New("xview: announcer service name must not be empty")
	}
	if clock == nil {
		clock = xclock.Default()
	}
	if logger == nil {
		logger = xlog.Default()
	}
	return &Announcer{
		publisher: publisher,
		topic:     topic,
		service:   service,
		session:   uuid.NewString(),
		routes:    routes,
		interval:  interval,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Start announces availability immediately and keeps re-announcing on the
// configured interval until the context ends or Close is called.
func (an *Announcer) Start(ctx context.Context) error {
	if err := an.announce(ctx, PresenceAvailable); err != nil {
		return err
	}
	if an.interval <= 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	an.cancel = cancel
	an.wg.Add(1)
	go func() {
		defer an.wg.Done()
		ticker := time.NewTicker(an.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := an.announce(runCtx, PresenceAvailable); err != nil {
					an.logger.Warn().Err(err).Msg("xview: presence re-announce failed")
				}
			}
		}
	}()
	return nil
}

// Close withdraws the unit's presence and stops periodic announcements.
func (an *Announcer) Close(ctx context.Context) error {
	var err error
	an.closeOnce.Do(func() {
		if an.cancel != nil {
			an.cancel()
		}
		an.wg.Wait()
		err = an.announce(ctx, PresenceWithdrawn)
	})
	return err
}

func (an *Announcer) announce(ctx context.Context, state PresenceState) error {
	a := &Announcement{
		ID:          uuid.NewString(),
		ServiceName: an.service,
		SessionID:   an.session,
		State:       state,
		Routes:      an.routes,
	}
	return an.publisher.Publish(ctx, an.topic, a.Encode())
}
