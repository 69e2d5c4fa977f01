// Package ocpp implements the OCPP-J wire framing: the three frame shapes,
// their array encoding, and the null-stripping serialization the
// conformance rules require.
package ocpp

import (
	"encoding/json"
	"fmt"
)

// MessageType is the leading tag of an OCPP-J frame.
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// UnknownCorrelationID is sent on a CallError when the frame was too
// malformed to recover the correlation id.
const UnknownCorrelationID = "-1"

// Frame is the sum of the three OCPP-J frame shapes. The concrete types are
// Call, CallResult and CallError; anything else on the wire is a
// FrameError.
type Frame interface {
	CorrelationID() string
	MarshalFrame() ([]byte, error)
}

type Call struct {
	ID      string
	Action  string
	Payload json.RawMessage
}

type CallResult struct {
	ID      string
	Payload json.RawMessage
}

type CallError struct {
	ID           string
	Code         ErrorCode
	Description  string
	Details      json.RawMessage
}

func (c Call) CorrelationID() string       { return c.ID }
func (c CallResult) CorrelationID() string { return c.ID }
func (c CallError) CorrelationID() string  { return c.ID }

// FrameError describes why an inbound frame could not be decoded. The
// recovered correlation id (or "-1") lets the caller build a CallError
// reply.
type FrameError struct {
	ID     string
	Code   ErrorCode
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// ParseFrame decodes a raw text frame into one of the three frame shapes.
// Errors are always *FrameError with a best-effort correlation id.
func ParseFrame(data []byte) (Frame, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, &FrameError{ID: UnknownCorrelationID, Code: ErrorCodeFormatViolation, Reason: "frame is not a JSON array"}
	}
	if len(elements) < 3 {
		return nil, &FrameError{ID: UnknownCorrelationID, Code: ErrorCodeFormatViolation, Reason: "frame has fewer than three elements"}
	}

	var messageType MessageType
	if err := json.Unmarshal(elements[0], &messageType); err != nil {
		return nil, &FrameError{ID: UnknownCorrelationID, Code: ErrorCodeFormatViolation, Reason: "message type tag is not a number"}
	}

	var correlationID string
	if err := json.Unmarshal(elements[1], &correlationID); err != nil {
		return nil, &FrameError{ID: UnknownCorrelationID, Code: ErrorCodeFormatViolation, Reason: "correlation id is not a string"}
	}

	switch messageType {
	case MessageTypeCall:
		if len(elements) != 4 {
			return nil, &FrameError{ID: correlationID, Code: ErrorCodeFormatViolation, Reason: "call frame must have four elements"}
		}
		var action string
		if err := json.Unmarshal(elements[2], &action); err != nil {
			return nil, &FrameError{ID: correlationID, Code: ErrorCodeFormatViolation, Reason: "action is not a string"}
		}
		return Call{ID: correlationID, Action: action, Payload: elements[3]}, nil
	case MessageTypeCallResult:
		if len(elements) != 3 {
			return nil, &FrameError{ID: correlationID, Code: ErrorCodeFormatViolation, Reason: "call result frame must have three elements"}
		}
		return CallResult{ID: correlationID, Payload: elements[2]}, nil
	case MessageTypeCallError:
		if len(elements) != 5 {
			return nil, &FrameError{ID: correlationID, Code: ErrorCodeFormatViolation, Reason: "call error frame must have five elements"}
		}
		var code string
		if err := json.Unmarshal(elements[2], &code); err != nil {
			return nil, &FrameError{ID: correlationID, Code: ErrorCodeFormatViolation, Reason: "error code is not a string"}
		}
		var description string
		if err := json.Unmarshal(elements[3], &description); err != nil {
			return nil, &FrameError{ID: correlationID, Code: ErrorCodeFormatViolation, Reason: "error description is not a string"}
		}
		return CallError{ID: correlationID, Code: ErrorCode(code), Description: description, Details: elements[4]}, nil
	default:
		return nil, &FrameError{ID: correlationID, Code: ErrorCodeFormatViolation, Reason: fmt.Sprintf("unknown message type tag %d", messageType)}
	}
}

func (c Call) MarshalFrame() ([]byte, error) {
	payload, err := stripNulls(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to strip nulls from call payload: %w", err)
	}
	return json.Marshal([]any{MessageTypeCall, c.ID, c.Action, json.RawMessage(payload)})
}

func (c CallResult) MarshalFrame() ([]byte, error) {
	payload, err := stripNulls(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to strip nulls from call result payload: %w", err)
	}
	return json.Marshal([]any{MessageTypeCallResult, c.ID, json.RawMessage(payload)})
}

func (c CallError) MarshalFrame() ([]byte, error) {
	details := c.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	stripped, err := stripNulls(details)
	if err != nil {
		return nil, fmt.Errorf("failed to strip nulls from call error details: %w", err)
	}
	return json.Marshal([]any{MessageTypeCallError, c.ID, string(c.Code), c.Description, json.RawMessage(stripped)})
}

// stripNulls removes null-valued object members at every depth. OCPP
// conformance requires absent optional fields to be omitted, never sent as
// null. Stripping is a fixed point: stripping already-stripped JSON is a
// no-op.
func stripNulls(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage("{}"), nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return json.Marshal(stripNullsValue(value))
}

func stripNullsValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, member := range v {
			if member == nil {
				delete(v, key)
				continue
			}
			v[key] = stripNullsValue(member)
		}
		return v
	case []any:
		for i, member := range v {
			v[i] = stripNullsValue(member)
		}
		return v
	default:
		return value
	}
}
