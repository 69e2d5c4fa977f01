// Package router is the RPC state machine between station sockets and the
// message bus: framing, schema validation, action gating, and the
// one-call-in-flight reservation per station and direction.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voltbridge/ocpp-gateway/internal/bus"
	"github.com/voltbridge/ocpp-gateway/internal/cache"
	"github.com/voltbridge/ocpp-gateway/internal/config"
	"github.com/voltbridge/ocpp-gateway/internal/metrics"
	"github.com/voltbridge/ocpp-gateway/internal/ocpp"
	"github.com/voltbridge/ocpp-gateway/internal/schemas"
)

// NetworkSender is the thin hook into the connection manager. A failed send
// means the frame was not queued; the router never retries it.
type NetworkSender interface {
	Send(stationID string, data []byte) error
}

// pendingCall is the JSON record reserved in the cache while a call awaits
// its reply.
type pendingCall struct {
	Action        string `json:"action"`
	CorrelationID string `json:"correlationId"`
}

// bootRetriggerActions may still be sent to a station whose boot sequence
// was rejected; everything else waits for the boot workflow to clear the
// flag.
var bootRetriggerActions = map[string]bool{
	"TriggerMessage":   true,
	"BootNotification": true,
}

type Router struct {
	config    *config.Config
	cache     cache.Cache
	sender    bus.Sender
	receiver  bus.Receiver
	validator *schemas.Validator
	network   NetworkSender
	metrics   *metrics.Metrics
}

func New(cfg *config.Config, stationCache cache.Cache, sender bus.Sender, receiver bus.Receiver, validator *schemas.Validator, network NetworkSender, metrics *metrics.Metrics) *Router {
	return &Router{
		config:    cfg,
		cache:     stationCache,
		sender:    sender,
		receiver:  receiver,
		validator: validator,
		network:   network,
		metrics:   metrics,
	}
}

func (r *Router) callTimeout() time.Duration {
	return time.Duration(r.config.OCPP.CallTimeoutSeconds) * time.Second
}

// Pending-call reservations are held per station and direction. A station
// waiting on our call can still send its own call in the meantime.
func pendingKey(stationID string, origin bus.Origin) string {
	return stationID + ":" + string(origin)
}

func gateKey(stationID, action string) string {
	return stationID + ":" + action
}

// OnConnect subscribes the station to backend-originated bus traffic:
// requests become calls on the socket, responses complete calls the station
// initiated.
func (r *Router) OnConnect(ctx context.Context, stationID string) {
	err := r.receiver.Subscribe(ctx, stationID, bus.Filter{Origin: bus.OriginBackend}, func(ctx context.Context, msg bus.Message) error {
		switch msg.State {
		case bus.StateRequest:
			_, err := r.SendCall(ctx, stationID, msg.Action, msg.Context.CorrelationID, msg.Payload)
			if err != nil {
				if ocpp.IsRetryable(err) {
					return errors.Join(bus.ErrRetryable, err)
				}
				return err
			}
			return nil
		case bus.StateResponse:
			if code, description, details, isError := errorReply(msg.Payload); isError {
				return r.SendCallError(ctx, stationID, msg.Context.CorrelationID, msg.Action, code, description, details)
			}
			return r.SendCallResult(ctx, stationID, msg.Context.CorrelationID, msg.Action, msg.Payload)
		default:
			return fmt.Errorf("unknown bus message state: %s", msg.State)
		}
	})
	if err != nil {
		slog.Error("Failed to subscribe station to bus", "station", stationID, "error", err)
	}
}

func (r *Router) OnDisconnect(_ context.Context, stationID string) {
	if err := r.receiver.Unsubscribe(stationID); err != nil {
		slog.Warn("Failed to unsubscribe station from bus", "station", stationID, "error", err)
	}
}

// OnMessage handles one raw frame from a station. Every malformed Call gets
// a deterministic CallError back; reply frames that cannot be attributed
// are dropped with a log and a metric.
func (r *Router) OnMessage(ctx context.Context, stationID string, msg []byte) {
	frame, err := ocpp.ParseFrame(msg)
	if err != nil {
		var frameErr *ocpp.FrameError
		if errors.As(err, &frameErr) {
			r.metrics.IncrementRPCErrors(stationID, "frame_parse")
			slog.Warn("Malformed frame", "station", stationID, "error", frameErr)
			r.replyError(stationID, ocpp.CallError{
				ID:          frameErr.ID,
				Code:        frameErr.Code,
				Description: frameErr.Reason,
			})
		}
		return
	}

	switch frame := frame.(type) {
	case ocpp.Call:
		r.handleCall(ctx, stationID, frame)
	case ocpp.CallResult:
		r.handleReply(ctx, stationID, frame.ID, frame.Payload, nil)
	case ocpp.CallError:
		r.handleReply(ctx, stationID, frame.ID, nil, &frame)
	}
}

func (r *Router) handleCall(ctx context.Context, stationID string, call ocpp.Call) {
	// The gate is checked before validation so a forbidden action is
	// reported as such even when its payload is garbage.
	gate, found, err := r.cache.Get(ctx, cache.NamespaceActionGate, gateKey(stationID, call.Action))
	if err != nil {
		r.internalError(stationID, call.ID, "action gate lookup failed", err)
		return
	}
	if found && gate == cache.Blacklisted {
		r.metrics.IncrementRPCErrors(stationID, "action_gated")
		r.replyError(stationID, ocpp.CallError{
			ID:          call.ID,
			Code:        ocpp.ErrorCodeSecurityError,
			Description: fmt.Sprintf("action %s is not allowed for this station", call.Action),
		})
		return
	}

	if err := r.validator.ValidateRequest(call.Action, call.Payload); err != nil {
		switch {
		case errors.Is(err, schemas.ErrUnknownAction):
			r.metrics.IncrementRPCErrors(stationID, "unknown_action")
			r.replyError(stationID, ocpp.CallError{
				ID:          call.ID,
				Code:        ocpp.ErrorCodeNotImplemented,
				Description: fmt.Sprintf("action %s is not supported", call.Action),
			})
		default:
			r.metrics.IncrementRPCErrors(stationID, "invalid_request_payload")
			r.replyError(stationID, ocpp.CallError{
				ID:          call.ID,
				Code:        ocpp.ErrorCodeFormatViolation,
				Description: err.Error(),
			})
		}
		return
	}

	record, err := json.Marshal(pendingCall{Action: call.Action, CorrelationID: call.ID})
	if err != nil {
		r.internalError(stationID, call.ID, "failed to marshal pending call", err)
		return
	}
	reserved, err := r.cache.SetIfNotExist(ctx, cache.NamespacePendingCalls, pendingKey(stationID, bus.OriginStation), string(record), r.callTimeout())
	if err != nil {
		r.internalError(stationID, call.ID, "pending call reservation failed", err)
		return
	}
	if !reserved {
		r.metrics.IncrementRPCErrors(stationID, "call_in_progress")
		r.replyError(stationID, ocpp.CallError{
			ID:          call.ID,
			Code:        ocpp.ErrorCodeRPCFramework,
			Description: "a call is already in progress for this station",
		})
		return
	}

	err = r.sender.Send(ctx, bus.Message{
		Origin:     bus.OriginStation,
		EventGroup: bus.EventGroupGeneral,
		Action:     call.Action,
		State:      bus.StateRequest,
		Context: bus.Context{
			CorrelationID: call.ID,
			StationID:     stationID,
			TenantID:      r.config.OCPP.TenantID,
		},
		Payload: call.Payload,
	})
	if err != nil {
		// Free the slot so the station can retry; it gets an InternalError
		// either way.
		if _, removeErr := r.cache.Remove(ctx, cache.NamespacePendingCalls, pendingKey(stationID, bus.OriginStation)); removeErr != nil {
			slog.Error("Failed to release pending call", "station", stationID, "error", removeErr)
		}
		r.metrics.IncrementBusFailures(stationID, string(bus.StateRequest))
		r.internalError(stationID, call.ID, "failed to publish request", err)
	}
}

// handleReply completes a backend-originated pending call with either a
// CallResult payload or a CallError.
func (r *Router) handleReply(ctx context.Context, stationID, correlationID string, payload json.RawMessage, callError *ocpp.CallError) {
	key := pendingKey(stationID, bus.OriginBackend)
	value, found, err := r.cache.Get(ctx, cache.NamespacePendingCalls, key)
	if err != nil {
		slog.Error("Pending call lookup failed", "station", stationID, "error", err)
		return
	}
	if !found {
		r.metrics.IncrementUnmatchedReplies(stationID)
		slog.Warn("Reply without pending call", "station", stationID, "correlation_id", correlationID)
		return
	}
	var pending pendingCall
	if err := json.Unmarshal([]byte(value), &pending); err != nil {
		slog.Error("Corrupt pending call record", "station", stationID, "error", err)
		return
	}
	// A mismatched correlation id never unblocks the waiting side; the
	// reservation stays until the real reply or the TTL.
	if pending.CorrelationID != correlationID {
		r.metrics.IncrementUnmatchedReplies(stationID)
		slog.Warn("Reply correlation id does not match pending call",
			"station", stationID, "correlation_id", correlationID, "pending", pending.CorrelationID)
		return
	}

	if _, err := r.cache.Remove(ctx, cache.NamespacePendingCalls, key); err != nil {
		slog.Error("Failed to clear pending call", "station", stationID, "error", err)
	}

	if callError != nil {
		payload, err = json.Marshal(map[string]any{
			"errorCode":        callError.Code,
			"errorDescription": callError.Description,
			"errorDetails":     callError.Details,
		})
		if err != nil {
			slog.Error("Failed to marshal call error payload", "station", stationID, "error", err)
			return
		}
	} else if err := r.validator.ValidateResponse(pending.Action, payload); err != nil {
		// There is no error-about-an-error frame in this direction; the
		// violation is logged and the reply still unblocks the caller.
		r.metrics.IncrementRPCErrors(stationID, "invalid_response_payload")
		slog.Warn("Schema-invalid reply payload", "station", stationID, "action", pending.Action, "error", err)
	}

	err = r.sender.Send(ctx, bus.Message{
		Origin:     bus.OriginStation,
		EventGroup: bus.EventGroupGeneral,
		Action:     pending.Action,
		State:      bus.StateResponse,
		Context: bus.Context{
			CorrelationID: correlationID,
			StationID:     stationID,
			TenantID:      r.config.OCPP.TenantID,
		},
		Payload: payload,
	})
	if err != nil {
		r.metrics.IncrementBusFailures(stationID, string(bus.StateResponse))
		slog.Error("Failed to publish reply", "station", stationID, "error", err)
	}
}

// SendCall reserves the backend-direction slot for the station and puts a
// Call frame on its socket. An empty correlationID generates one. The
// returned error is retryable exactly when the slot is already held.
func (r *Router) SendCall(ctx context.Context, stationID, action, correlationID string, payload json.RawMessage) (string, error) {
	status, found, err := r.cache.Get(ctx, cache.NamespaceBootStatus, stationID)
	if err != nil {
		return "", fmt.Errorf("boot status lookup failed: %w", err)
	}
	if found && status == cache.BootRejected && !bootRetriggerActions[action] {
		return "", fmt.Errorf("%s refused for station %s: %w", action, stationID, ocpp.ErrBootRejected)
	}

	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	record, err := json.Marshal(pendingCall{Action: action, CorrelationID: correlationID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal pending call: %w", err)
	}
	reserved, err := r.cache.SetIfNotExist(ctx, cache.NamespacePendingCalls, pendingKey(stationID, bus.OriginBackend), string(record), r.callTimeout())
	if err != nil {
		return "", fmt.Errorf("pending call reservation failed: %w", err)
	}
	if !reserved {
		return "", ocpp.ErrCallInProgress
	}

	frame, err := ocpp.Call{ID: correlationID, Action: action, Payload: payload}.MarshalFrame()
	if err != nil {
		r.release(ctx, stationID, bus.OriginBackend)
		return "", fmt.Errorf("failed to marshal call frame: %w", err)
	}
	if err := r.network.Send(stationID, frame); err != nil {
		r.release(ctx, stationID, bus.OriginBackend)
		return "", fmt.Errorf("failed to deliver call to %s: %w", stationID, errors.Join(ocpp.ErrNotDelivered, err))
	}
	r.metrics.IncrementCallsSent(stationID, action)
	return correlationID, nil
}

// SendCallResult answers a station-originated call. The reservation must
// still exist and match both action and correlation id.
func (r *Router) SendCallResult(ctx context.Context, stationID, correlationID, action string, payload json.RawMessage) error {
	pending, err := r.matchPending(ctx, stationID, correlationID)
	if err != nil {
		return err
	}
	if pending.Action != action {
		r.metrics.IncrementUnmatchedReplies(stationID)
		return fmt.Errorf("reply action %s does not match pending call %s: %w", action, pending.Action, ocpp.ErrUnmatchedReply)
	}
	if err := r.validator.ValidateResponse(action, payload); err != nil {
		return fmt.Errorf("response payload for %s is invalid: %w", action, err)
	}

	frame, err := ocpp.CallResult{ID: correlationID, Payload: payload}.MarshalFrame()
	if err != nil {
		return fmt.Errorf("failed to marshal call result frame: %w", err)
	}
	if err := r.network.Send(stationID, frame); err != nil {
		return fmt.Errorf("failed to deliver call result to %s: %w", stationID, errors.Join(ocpp.ErrNotDelivered, err))
	}
	r.release(ctx, stationID, bus.OriginStation)
	return nil
}

// SendCallError answers a station-originated call with an error frame. Like
// SendCallResult, the reservation must match both action and correlation id.
func (r *Router) SendCallError(ctx context.Context, stationID, correlationID, action string, code ocpp.ErrorCode, description string, details json.RawMessage) error {
	pending, err := r.matchPending(ctx, stationID, correlationID)
	if err != nil {
		return err
	}
	if pending.Action != action {
		r.metrics.IncrementUnmatchedReplies(stationID)
		return fmt.Errorf("reply action %s does not match pending call %s: %w", action, pending.Action, ocpp.ErrUnmatchedReply)
	}
	frame, err := ocpp.CallError{ID: correlationID, Code: code, Description: description, Details: details}.MarshalFrame()
	if err != nil {
		return fmt.Errorf("failed to marshal call error frame: %w", err)
	}
	if err := r.network.Send(stationID, frame); err != nil {
		return fmt.Errorf("failed to deliver call error to %s: %w", stationID, errors.Join(ocpp.ErrNotDelivered, err))
	}
	r.release(ctx, stationID, bus.OriginStation)
	return nil
}

func (r *Router) matchPending(ctx context.Context, stationID, correlationID string) (pendingCall, error) {
	value, found, err := r.cache.Get(ctx, cache.NamespacePendingCalls, pendingKey(stationID, bus.OriginStation))
	if err != nil {
		return pendingCall{}, fmt.Errorf("pending call lookup failed: %w", err)
	}
	if !found {
		r.metrics.IncrementUnmatchedReplies(stationID)
		return pendingCall{}, fmt.Errorf("no pending call for station %s: %w", stationID, ocpp.ErrUnmatchedReply)
	}
	var pending pendingCall
	if err := json.Unmarshal([]byte(value), &pending); err != nil {
		return pendingCall{}, fmt.Errorf("corrupt pending call record: %w", err)
	}
	if pending.CorrelationID != correlationID {
		r.metrics.IncrementUnmatchedReplies(stationID)
		return pendingCall{}, fmt.Errorf("correlation id %s does not match pending call %s: %w", correlationID, pending.CorrelationID, ocpp.ErrUnmatchedReply)
	}
	return pending, nil
}

func (r *Router) release(ctx context.Context, stationID string, origin bus.Origin) {
	if _, err := r.cache.Remove(ctx, cache.NamespacePendingCalls, pendingKey(stationID, origin)); err != nil {
		slog.Error("Failed to release pending call", "station", stationID, "error", err)
	}
}

func (r *Router) internalError(stationID, correlationID, description string, err error) {
	r.metrics.IncrementRPCErrors(stationID, "internal")
	slog.Error("Internal error handling call", "station", stationID, "description", description, "error", err)
	r.replyError(stationID, ocpp.CallError{
		ID:          correlationID,
		Code:        ocpp.ErrorCodeInternalError,
		Description: description,
	})
}

func (r *Router) replyError(stationID string, callError ocpp.CallError) {
	frame, err := callError.MarshalFrame()
	if err != nil {
		slog.Error("Failed to marshal call error frame", "station", stationID, "error", err)
		return
	}
	if err := r.network.Send(stationID, frame); err != nil {
		slog.Warn("Failed to deliver call error", "station", stationID, "error", err)
	}
}

// errorReply recognizes the bus convention for module error replies: a
// payload whose top level carries errorCode instead of action fields.
func errorReply(payload json.RawMessage) (ocpp.ErrorCode, string, json.RawMessage, bool) {
	var probe struct {
		ErrorCode        string          `json:"errorCode"`
		ErrorDescription string          `json:"errorDescription"`
		ErrorDetails     json.RawMessage `json:"errorDetails"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.ErrorCode == "" {
		return "", "", nil, false
	}
	return ocpp.ErrorCode(probe.ErrorCode), probe.ErrorDescription, probe.ErrorDetails, true
}
