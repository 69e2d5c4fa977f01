package cmd_test

import (
	"testing"

	"github.com/voltbridge/ocpp-gateway/cmd"
)

var requiredFlags = []string{
	"--ocpp.instance_id", "gw-test",
}

func TestDefault(t *testing.T) {
	t.Parallel()
	baseCmd := cmd.NewCommand("testing", "default")
	// Avoid port conflict
	baseCmd.SetArgs(append([]string{"--listener.port", "8093", "--http.metrics.port", "8084"}, requiredFlags...))
	err := baseCmd.Execute()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
