package xview

import (
	"context"
	"strconv"
	"strings"

	"github.com/trickstertwo/xlog"
)

// FilterLabel and FilterActive are the generic queryWhere filter keys every
// projection store adapter understands.
const (
	FilterLabel  = "label"
	FilterActive = "active"
)

// LabelQuery answers "what is the latest view for this label" without
// touching the write-model. It never mutates the projection store.
type LabelQuery struct {
	store  ProjectionStore
	logger *xlog.Logger
}

// NewLabelQuery builds the read-path handler.
func NewLabelQuery(store ProjectionStore, logger *xlog.Logger) (*LabelQuery, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = xlog.Default()
	}
	return &LabelQuery{store: store, logger: logger}, nil
}

// Find returns the most recent version matching the label, optionally
// narrowed by activity status. A missing match returns (nil, nil). A label
// mapped to more than one distinct collection is a uniqueness violation:
// logged, and reported as not found rather than guessing.
func (q *LabelQuery) Find(ctx context.Context, label string, active *bool) (*RecordVersion, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyLabel
	}

	filters := map[string]string{FilterLabel: label}
	if active != nil {
		filters[FilterActive] = strconv.FormatBool(*active)
	}
	cols, err := q.store.QueryWhere(ctx, filters)
	if err != nil {
		return nil, operational("query label "+label, err)
	}

	distinct := make(map[string]*Collection, 1)
	for _, c := range cols {
		if c == nil || len(c.Versions) == 0 {
			continue
		}
		distinct[c.AggregateID] = c
	}
	switch len(distinct) {
	case 0:
		return nil, nil
	case 1:
	default:
		q.logger.With(xlog.Str("label", label)).
			Error().Msg("xview: label conformity violation, multiple collections share one label")
		return nil, nil
	}

	for _, c := range distinct {
		latest, ok := c.Latest()
		if !ok {
			return nil, nil
		}
		return &latest, nil
	}
	return nil, nil
}
