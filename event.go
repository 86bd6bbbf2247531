package xview

import (
	"errors"
	"strings"
	"time"
)

// Attribute is a single named value carried by an event or command
// specification. Values are stringly typed on the wire; typed views are
// decoded at the boundary.
type Attribute struct {
	Name  string
	Value string
}

// Specification is an ordered attribute set with unique names. Order is
// insertion order; setting an existing name overwrites in place
// (last write wins).
type Specification []Attribute

// NewSpecification builds a specification from attribute pairs, collapsing
// duplicate names.
func NewSpecification(attrs ...Attribute) Specification {
	var s Specification
	for _, a := range attrs {
		s = s.With(a.Name, a.Value)
	}
	return s
}

// With returns a specification with the attribute set. Empty names are ignored.
func (s Specification) With(name, value string) Specification {
	name = strings.TrimSpace(name)
	if name == "" {
		return s
	}
	for i := range s {
		if s[i].Name == name {
			out := make(Specification, len(s))
			copy(out, s)
			out[i].Value = value
			return out
		}
	}
	out := make(Specification, len(s), len(s)+1)
	copy(out, s)
	return append(out, Attribute{Name: name, Value: value})
}

// Get returns the value for a name, reporting whether it is present.
func (s Specification) Get(name string) (string, bool) {
	for i := range s {
		if s[i].Name == name {
			return s[i].Value, true
		}
	}
	return "", false
}

// ChangeKind is the closed set of write-model change natures. It is decoded
// once at the boundary; everything downstream switches on the enum, never on
// attribute strings.
type ChangeKind uint8

const (
	KindUnknown ChangeKind = iota
	KindCreated
	KindChanged
	KindDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindChanged:
		return "changed"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ParseChangeKind decodes a wire-level kind token. Unrecognized tokens map to
// KindUnknown; callers treat unknown kinds as not-of-interest, not as errors.
func ParseChangeKind(s string) ChangeKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "create":
		return KindCreated
	case "changed", "change", "updated":
		return KindChanged
	case "deleted", "delete", "removed":
		return KindDeleted
	default:
		return KindUnknown
	}
}

// ElementReference points at the aggregate a change event is about: its
// identifier, the relation under which it was touched, and the history state
// of the referenced commit.
type ElementReference struct {
	EntityID string
	Relation string
	State    ChangeKind
}

// DomainEvent is an immutable fact: something that happened to an aggregate.
// Name is never empty (enforced by NewDomainEvent). ParentID links to the
// causal fact or request, when one exists.
type DomainEvent struct {
	ID            string
	ParentID      string
	Name          string
	Kind          ChangeKind
	OccurredAt    time.Time
	CorrelationID string
	Changed       *ElementReference
	Spec          Specification
}

// ErrEmptyEventName rejects events constructed without a type name.
var ErrEmptyEventName = errors.New("xview: event name must not be empty")

// NewDomainEvent constructs an event, rejecting an empty type name.
func NewDomainEvent(id, name string, kind ChangeKind, occurredAt time.Time, spec Specification) (*DomainEvent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyEventName
	}
	return &DomainEvent{
		ID:         id,
		Name:       name,
		Kind:       kind,
		OccurredAt: occurredAt,
		Spec:       spec,
	}, nil
}

// ChangeKindOf resolves the declared change nature of the event: the decoded
// Kind when set, else the history state of the changed-element reference.
func (e *DomainEvent) ChangeKindOf() ChangeKind {
	if e == nil {
		return KindUnknown
	}
	if e.Kind != KindUnknown {
		return e.Kind
	}
	if e.Changed != nil {
		return e.Changed.State
	}
	return KindUnknown
}

// AttrChangeSourceID names the fallback attribute carrying the identifier of
// the aggregate a change originated from, used when no changed-element
// reference is attached.
const AttrChangeSourceID = "change_source_id"

// SourceAggregateID resolves the aggregate the event is about: the explicit
// changed-element reference wins, then the change-source attribute.
func (e *DomainEvent) SourceAggregateID() string {
	if e == nil {
		return ""
	}
	if e.Changed != nil && e.Changed.EntityID != "" {
		return e.Changed.EntityID
	}
	if v, ok := e.Spec.Get(AttrChangeSourceID); ok {
		return v
	}
	return ""
}

// AttrCommandType names the default attribute a command declares its handler
// lookup key under. The registry can be configured with another convention.
const AttrCommandType = "type"

// Command is a request envelope: same shape as an event but it asks for work
// rather than stating a fact.
type Command struct {
	ID            string
	Name          string
	OccurredAt    time.Time
	CorrelationID string
	Spec          Specification
}

// TypeAttribute reads the command's declared type under the given attribute
// name (empty name falls back to the default convention).
func (c *Command) TypeAttribute(attr string) (string, bool) {
	if c == nil {
		return "", false
	}
	if attr == "" {
		attr = AttrCommandType
	}
	return c.Spec.Get(attr)
}
