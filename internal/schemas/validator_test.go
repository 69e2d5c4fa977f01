package schemas_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltbridge/ocpp-gateway/internal/schemas"
)

func TestValidatorCompilesAllSchemas(t *testing.T) {
	t.Parallel()
	v, err := schemas.NewValidator()
	require.NoError(t, err)

	for _, action := range []string{"BootNotification", "Heartbeat", "StatusNotification", "Authorize", "Reset", "TransactionEvent", "UnlockConnector", "TriggerMessage"} {
		assert.True(t, v.Known(action), "expected schema for %s", action)
	}
	assert.False(t, v.Known("DataTransfer"))
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()
	v, err := schemas.NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		action  string
		payload string
		wantErr error
	}{
		{"valid heartbeat", "Heartbeat", `{}`, nil},
		{"empty payload defaults to object", "Heartbeat", ``, nil},
		{"valid boot", "BootNotification", `{"reason":"PowerUp","chargingStation":{"model":"X1","vendorName":"Volt"}}`, nil},
		{"boot missing reason", "BootNotification", `{"chargingStation":{"model":"X1","vendorName":"Volt"}}`, schemas.ErrInvalidPayload},
		{"boot bad enum", "BootNotification", `{"reason":"Sideways","chargingStation":{"model":"X1","vendorName":"Volt"}}`, schemas.ErrInvalidPayload},
		{"reset missing type", "Reset", `{}`, schemas.ErrInvalidPayload},
		{"reset extra property", "Reset", `{"type":"Immediate","bogus":true}`, schemas.ErrInvalidPayload},
		{"not json", "Heartbeat", `{`, schemas.ErrInvalidPayload},
		{"unknown action", "DataTransfer", `{}`, schemas.ErrUnknownAction},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.ValidateRequest(tt.action, json.RawMessage(tt.payload))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestValidateResponse(t *testing.T) {
	t.Parallel()
	v, err := schemas.NewValidator()
	require.NoError(t, err)

	err = v.ValidateResponse("Heartbeat", json.RawMessage(`{"currentTime":"2026-01-01T00:00:00Z"}`))
	assert.NoError(t, err)

	err = v.ValidateResponse("Heartbeat", json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, schemas.ErrInvalidPayload))

	err = v.ValidateResponse("BootNotification", json.RawMessage(`{"currentTime":"2026-01-01T00:00:00Z","interval":300,"status":"Accepted"}`))
	assert.NoError(t, err)
}
