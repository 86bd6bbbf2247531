package xview

import "time"

// RecordVersion is one committed state of a projection record: the
// denormalized attributes of an aggregate at a point in time. Versions are
// comparable by VersionedAt; insertion order carries no meaning.
type RecordVersion struct {
	Label         string    `json:"label"`
	Active        bool      `json:"active"`
	CommitVersion uint64    `json:"commit_version"`
	VersionedAt   time.Time `json:"versioned_at"`
}

// Equal reports whether two versions describe the same committed state.
// CommitVersion is deliberately excluded: duplicate deliveries of the same
// change may carry differing commit markers from retried writers.
func (v RecordVersion) Equal(o RecordVersion) bool {
	return v.Label == o.Label && v.Active == o.Active && v.VersionedAt.Equal(o.VersionedAt)
}

// Collection is the projection history for one aggregate: every observed
// version of its denormalized view, keyed by the aggregate identifier.
// Only the owning Transaction mutates a collection.
type Collection struct {
	AggregateID string          `json:"aggregate_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Versions    []RecordVersion `json:"versions"`
	Tombstoned  bool            `json:"tombstoned,omitempty"`
}

// NewCollection starts a history for an aggregate with its first version.
func NewCollection(aggregateID string, first RecordVersion) *Collection {
	return &Collection{
		AggregateID: aggregateID,
		CreatedAt:   first.VersionedAt,
		Versions:    []RecordVersion{first},
	}
}

// Contains reports whether an equal version is already recorded.
func (c *Collection) Contains(v RecordVersion) bool {
	if c == nil {
		return false
	}
	for i := range c.Versions {
		if c.Versions[i].Equal(v) {
			return true
		}
	}
	return false
}

// Append records a new version, reporting whether the collection changed.
// An equal version already present makes this an idempotent no-op, which
// protects against duplicate delivery.
func (c *Collection) Append(v RecordVersion) bool {
	if c.Contains(v) {
		return false
	}
	c.Versions = append(c.Versions, v)
	return true
}

// Latest returns the version with the maximum VersionedAt. Writers may arrive
// out of order, so the newest entry is found by timestamp, never by position.
func (c *Collection) Latest() (RecordVersion, bool) {
	if c == nil || len(c.Versions) == 0 {
		return RecordVersion{}, false
	}
	latest := c.Versions[0]
	for _, v := range c.Versions[1:] {
		if v.VersionedAt.After(latest.VersionedAt) {
			latest = v
		}
	}
	return latest, true
}

// Clone deep-copies the collection so stores can hand out snapshots without
// exposing their internal state to callers.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	out := *c
	out.Versions = make([]RecordVersion, len(c.Versions))
	copy(out.Versions, c.Versions)
	return &out
}
