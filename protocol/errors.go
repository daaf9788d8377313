package protocol

import "fmt"

// ProtocolError reports a command that could not be decoded. The surface drops
// such commands and reports them with an error event.
type ProtocolError struct {
	Command string // empty when the tag itself is missing
	Field   string
	Reason  string
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Command == "":
		return "protocol: " + e.Reason
	case e.Field == "":
		return fmt.Sprintf("protocol: %s: %s", e.Command, e.Reason)
	default:
		return fmt.Sprintf("protocol: %s: field %q: %s", e.Command, e.Field, e.Reason)
	}
}

func fieldErr(cmd, field, reason string) *ProtocolError {
	return &ProtocolError{Command: cmd, Field: field, Reason: reason}
}
