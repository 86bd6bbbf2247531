package xview

import (
	"time"

	"github.com/trickstertwo/xlog"
)

// ViewChangeType enumerates projection lifecycle notifications.
type ViewChangeType string

const (
	ViewCreated    ViewChangeType = "view_created"
	ViewUpdated    ViewChangeType = "view_updated"
	ViewTombstoned ViewChangeType = "view_tombstoned"
	ViewRemoved    ViewChangeType = "view_removed"
)

// ViewChange describes one committed projection mutation for observers.
type ViewChange struct {
	Type        ViewChangeType
	AggregateID string
	Label       string
	Version     RecordVersion
	CauseID     string
	At          time.Time

	// attached for async dispatch
	observers []ViewObserver
}

// ObserverFunc is an Adapter that lets a plain function satisfy ViewObserver.
type ObserverFunc func(vc ViewChange)

func (f ObserverFunc) OnViewChange(vc ViewChange) { f(vc) }

// LoggingObserver emits view changes via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnViewChange(vc ViewChange) {
	if o.Logger == nil {
		return
	}
	o.Logger.With(
		xlog.Str("type", string(vc.Type)),
		xlog.Str("aggregate_id", vc.AggregateID),
		xlog.Str("label", vc.Label),
		xlog.Str("cause_id", vc.CauseID),
	).Debug().Msg("xview view change")
}
