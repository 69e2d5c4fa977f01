package ocpp

import "errors"

// ErrorCode is the machine-readable code carried by a CallError frame.
type ErrorCode string

const (
	ErrorCodeFormatViolation    ErrorCode = "FormatViolation"
	ErrorCodeSecurityError      ErrorCode = "SecurityError"
	ErrorCodeRPCFramework       ErrorCode = "RpcFrameworkError"
	ErrorCodeInternalError      ErrorCode = "InternalError"
	ErrorCodeNotImplemented     ErrorCode = "NotImplemented"
	ErrorCodeGenericError       ErrorCode = "GenericError"
)

// Retryable conditions are distinct from the CallError taxonomy: the same
// operation may succeed if attempted again.
var (
	// ErrCallInProgress means the per-station pending-call slot is held.
	ErrCallInProgress = errors.New("call already in progress")
	// ErrBootRejected means outbound calls are gated by a rejected boot
	// sequence.
	ErrBootRejected = errors.New("boot status rejected, call refused")
	// ErrNotDelivered means the socket write failed; the frame was not
	// delivered.
	ErrNotDelivered = errors.New("message was not delivered")
	// ErrUnmatchedReply means no pending call matches the reply's
	// correlation id.
	ErrUnmatchedReply = errors.New("reply does not match a pending call")
)

// IsRetryable reports whether err signals a transient condition the caller
// may retry, as opposed to a permanent failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCallInProgress)
}
