package xview

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/trickstertwo/xlog"
)

// RecipientList is the dynamic router: the live event-type to destination
// channel table, fed by presence announcements on the control channel.
//
// Routes are keyed by event type, not by announcing unit: a later announcement
// from a different unit for the same event type overwrites the former
// (last-writer-wins delegation).
type RecipientList struct {
	mu     sync.Mutex
	routes map[string]string
	units  map[string]PresenceState

	// publisher may be nil: notification is then silently disabled.
	publisher ControlPublisher
	topic     string

	logger  *xlog.Logger
	metrics *routerMetrics
}

type routerMetrics struct {
	routesChanged      atomic.Uint64
	announcements      atomic.Uint64
	protocolViolations atomic.Uint64
	notifications      atomic.Uint64
}

// RouterStats is a snapshot of router telemetry.
type RouterStats struct {
	RoutesChanged      uint64
	Announcements      uint64
	ProtocolViolations uint64
	Notifications      uint64
}

// NewRecipientList builds a router. publisher may be nil when no registration
// acknowledgements should be emitted; topic names the control channel the
// router listens on (propagated as the notification source).
func NewRecipientList(publisher ControlPublisher, topic string, logger *xlog.Logger) *RecipientList {
	if logger == nil {
		logger = xlog.Default()
	}
	return &RecipientList{
		routes:    make(map[string]string),
		units:     make(map[string]PresenceState),
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		metrics:   &routerMetrics{},
	}
}

// AddRoute inserts or overwrites the mapping for an event type, reporting
// whether the table content actually changed. Empty event types are ignored.
// The read-modify-write is serialized so concurrent announcements cannot lose
// the delta signal.
func (r *RecipientList) AddRoute(eventType, path string) bool {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.routes[eventType]
	if exists && prev == path {
		return false
	}
	r.routes[eventType] = path
	r.metrics.routesChanged.Add(1)
	return true
}

// Route resolves the destination channel for an event type.
func (r *RecipientList) Route(eventType string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.routes[eventType]
	return path, ok
}

// Routes returns a snapshot of the recipient table.
func (r *RecipientList) Routes() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.routes))
	for k, v := range r.routes {
		out[k] = v
	}
	return out
}

// PresenceOf reports the last announced state of a processing unit.
func (r *RecipientList) PresenceOf(service string) PresenceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.units[service]
}

// OnControlMessage is the control-channel boundary. The channel is
// single-purpose: only presence announcements are accepted. Commands and
// unrecognized shapes are protocol violations, logged and dropped.
func (r *RecipientList) OnControlMessage(ctx context.Context, msg *ControlMessage) {
	if msg == nil {
		return
	}
	switch msg.Kind {
	case ControlAnnouncement:
		ann, err := DecodeAnnouncement(msg)
		if err != nil {
			r.metrics.protocolViolations.Add(1)
			r.logger.Warn().Err(err).Msg("xview: malformed presence announcement dropped")
			return
		}
		r.onAnnounced(ctx, ann)
	case ControlRegistered:
		// Our own acknowledgements echo back on the shared topic; not a violation.
	case ControlCommand:
		r.metrics.protocolViolations.Add(1)
		r.logger.With(xlog.Str("message_id", msg.ID)).
			Warn().Msg("xview: command rejected on presence channel")
	default:
		r.metrics.protocolViolations.Add(1)
		r.logger.With(xlog.Str("message_id", msg.ID)).
			Warn().Msg("xview: unrecognized control message dropped")
	}
}

// onAnnounced folds an announcement into the recipient table and, when at
// least one route changed, acknowledges with a routing-paths-registered
// notification causally linked to the announcement.
func (r *RecipientList) onAnnounced(ctx context.Context, ann *Announcement) {
	r.metrics.announcements.Add(1)

	r.mu.Lock()
	r.units[ann.ServiceName] = ann.State
	r.mu.Unlock()

	changed := false
	for _, route := range ann.Routes {
		if r.AddRoute(route.EventType, route.Channel) {
			changed = true
		}
	}
	if !changed || r.publisher == nil {
		return
	}

	spec := NewSpecification(
		Attribute{Name: AttrServiceName, Value: ann.ServiceName},
		Attribute{Name: AttrSourceChannel, Value: r.topic},
		Attribute{Name: AttrCauseID, Value: ann.ID},
	)
	note := &ControlMessage{
		ID:            uuid.NewString(),
		CorrelationID: ann.CorrelationID,
		Kind:          ControlRegistered,
		Spec:          spec,
	}
	if err := r.publisher.Publish(ctx, r.topic, note.Sealed()); err != nil {
		r.logger.Warn().Err(err).Msg("xview: routing registration notify failed")
		return
	}
	r.metrics.notifications.Add(1)
}

// Stats returns current router telemetry.
func (r *RecipientList) Stats() RouterStats {
	return RouterStats{
		RoutesChanged:      r.metrics.routesChanged.Load(),
		Announcements:      r.metrics.announcements.Load(),
		ProtocolViolations: r.metrics.protocolViolations.Load(),
		Notifications:      r.metrics.notifications.Load(),
	}
}
