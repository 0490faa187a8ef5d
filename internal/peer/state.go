package peer

// State tracks where a session is in the two-party negotiation lifecycle.
type State int

const (
	// StateIdle: constructed, local media not yet acquired.
	StateIdle State = iota
	// StateWaiting: in a room, no remote peer connected.
	StateWaiting
	// StateOffering: offer sent, waiting for the answer.
	StateOffering
	// StateAnswering: remote offer received, producing the answer.
	StateAnswering
	// StateActive: descriptions exchanged on both sides.
	StateActive
	// StateEnded: session closed, terminal.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
