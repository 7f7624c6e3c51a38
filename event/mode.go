package event

import "fmt"

// Mode specifies how an observer is run during Emit.
// Sync observers run one at a time in priority order. Async observers run
// concurrently after the sync stage, and Emit waits for all of them.
type Mode int

const (
	// ModeSync runs the observer in priority order, blocking the next one.
	ModeSync Mode = iota

	// ModeAsync runs the observer concurrently with the other async observers.
	ModeAsync
)

// String returns the string representation of the Mode.
func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// IsValid checks if the mode is valid.
func (m Mode) IsValid() bool {
	return m >= ModeSync && m <= ModeAsync
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "sync", "Sync":
		*m = ModeSync
	case "async", "Async":
		*m = ModeAsync
	default:
		return ModeError{Value: string(text)}
	}
	return nil
}
