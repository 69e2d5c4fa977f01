package ocpp_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltbridge/ocpp-gateway/internal/ocpp"
)

func TestParseCall(t *testing.T) {
	t.Parallel()
	frame, err := ocpp.ParseFrame([]byte(`[2,"19223201","BootNotification",{"reason":"PowerUp"}]`))
	require.NoError(t, err)

	call, ok := frame.(ocpp.Call)
	require.True(t, ok)
	assert.Equal(t, "19223201", call.ID)
	assert.Equal(t, "BootNotification", call.Action)
	assert.JSONEq(t, `{"reason":"PowerUp"}`, string(call.Payload))
}

func TestParseCallResult(t *testing.T) {
	t.Parallel()
	frame, err := ocpp.ParseFrame([]byte(`[3,"19223201",{"currentTime":"2026-01-01T00:00:00Z"}]`))
	require.NoError(t, err)

	result, ok := frame.(ocpp.CallResult)
	require.True(t, ok)
	assert.Equal(t, "19223201", result.ID)
}

func TestParseCallError(t *testing.T) {
	t.Parallel()
	frame, err := ocpp.ParseFrame([]byte(`[4,"19223201","NotImplemented","Unknown action",{}]`))
	require.NoError(t, err)

	callError, ok := frame.(ocpp.CallError)
	require.True(t, ok)
	assert.Equal(t, ocpp.ErrorCodeNotImplemented, callError.Code)
	assert.Equal(t, "Unknown action", callError.Description)
}

func TestParseMalformedFrames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		input  string
		wantID string
	}{
		{"not json", `garbage`, ocpp.UnknownCorrelationID},
		{"not an array", `{"method":"x"}`, ocpp.UnknownCorrelationID},
		{"too short", `[2,"id"]`, ocpp.UnknownCorrelationID},
		{"numeric correlation id", `[2,42,"Heartbeat",{}]`, ocpp.UnknownCorrelationID},
		{"unknown tag", `[9,"id","Heartbeat",{}]`, "id"},
		{"call missing payload", `[2,"id","Heartbeat"]`, "id"},
		{"call error too short", `[4,"id","GenericError","oops"]`, "id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ocpp.ParseFrame([]byte(tt.input))
			require.Error(t, err)
			var frameErr *ocpp.FrameError
			require.True(t, errors.As(err, &frameErr))
			assert.Equal(t, ocpp.ErrorCodeFormatViolation, frameErr.Code)
			assert.Equal(t, tt.wantID, frameErr.ID)
		})
	}
}

func TestMarshalCallStripsNulls(t *testing.T) {
	t.Parallel()
	call := ocpp.Call{
		ID:     "1",
		Action: "SetVariables",
		Payload: json.RawMessage(`{
			"setVariableData": [
				{"attributeType": null, "attributeValue": "5", "nested": {"a": null, "b": 1}}
			],
			"customData": null
		}`),
	}
	data, err := call.MarshalFrame()
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"1","SetVariables",{"setVariableData":[{"attributeValue":"5","nested":{"b":1}}]}]`, string(data))
}

func TestNullStrippingIsIdempotent(t *testing.T) {
	t.Parallel()
	result := ocpp.CallResult{ID: "7", Payload: json.RawMessage(`{"status":"Accepted","statusInfo":null}`)}
	first, err := result.MarshalFrame()
	require.NoError(t, err)

	// Re-parse and re-serialize: the output must be a fixed point.
	frame, err := ocpp.ParseFrame(first)
	require.NoError(t, err)
	second, err := frame.(ocpp.CallResult).MarshalFrame()
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
	assert.NotContains(t, string(second), "statusInfo")
}

func TestMarshalCallErrorDefaultsDetails(t *testing.T) {
	t.Parallel()
	callError := ocpp.CallError{ID: "-1", Code: ocpp.ErrorCodeFormatViolation, Description: "bad frame"}
	data, err := callError.MarshalFrame()
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"-1","FormatViolation","bad frame",{}]`, string(data))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	original := ocpp.Call{ID: "abc", Action: "Heartbeat", Payload: json.RawMessage(`{}`)}
	data, err := original.MarshalFrame()
	require.NoError(t, err)

	parsed, err := ocpp.ParseFrame(data)
	require.NoError(t, err)
	call, ok := parsed.(ocpp.Call)
	require.True(t, ok)
	assert.Equal(t, original.ID, call.ID)
	assert.Equal(t, original.Action, call.Action)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, ocpp.IsRetryable(ocpp.ErrCallInProgress))
	assert.False(t, ocpp.IsRetryable(ocpp.ErrNotDelivered))
	assert.False(t, ocpp.IsRetryable(ocpp.ErrBootRejected))
}
