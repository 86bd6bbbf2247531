package xview

// ControlKind is the closed set of message families a control channel
// carries. Like ChangeKind it is decoded once at the boundary.
type ControlKind uint8

const (
	ControlUnknown ControlKind = iota
	// ControlAnnouncement is a processing unit declaring its presence and
	// supported event types.
	ControlAnnouncement
	// ControlRegistered acknowledges that announced routing paths were folded
	// into the recipient table.
	ControlRegistered
	// ControlCommand marks a request envelope. The presence channel is
	// single-purpose and rejects these.
	ControlCommand
)

func (k ControlKind) String() string {
	switch k {
	case ControlAnnouncement:
		return "announcement"
	case ControlRegistered:
		return "routing_paths_registered"
	case ControlCommand:
		return "command"
	default:
		return "unknown"
	}
}

// ParseControlKind decodes a wire-level family token.
func ParseControlKind(s string) ControlKind {
	switch s {
	case "announcement":
		return ControlAnnouncement
	case "routing_paths_registered":
		return ControlRegistered
	case "command":
		return ControlCommand
	default:
		return ControlUnknown
	}
}

// ControlMessage is the control-channel envelope: an identifier, an optional
// correlation identifier, and an attribute bag. The family tag travels as the
// Kind and is the only thing the router branches on.
type ControlMessage struct {
	ID            string        `json:"id"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Kind          ControlKind   `json:"-"`
	KindName      string        `json:"kind"`
	Spec          Specification `json:"specification,omitempty"`
}

// Sealed finalizes the wire form: the family tag is serialized from Kind.
func (m *ControlMessage) Sealed() *ControlMessage {
	m.KindName = m.Kind.String()
	return m
}

// Decoded finalizes the in-memory form after unmarshalling.
func (m *ControlMessage) Decoded() *ControlMessage {
	m.Kind = ParseControlKind(m.KindName)
	return m
}

// Attribute names used inside control envelopes.
const (
	AttrServiceName   = "service_name"
	AttrPresenceState = "presence_state"
	AttrSessionID     = "session_id"
	AttrSourceChannel = "source_channel"
	AttrCauseID       = "cause_id"
	attrRoutePrefix   = "route:"
)
