package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/voltbridge/ocpp-gateway/cmd"
	"github.com/voltbridge/ocpp-gateway/internal/config"
)

//nolint:golint,gochecknoglobals
var requiredFlags = []string{
	"--ocpp.instance_id", "gw-test",
}

func TestExampleConfig(t *testing.T) {
	t.Parallel()
	cmd := cmd.NewCommand("testing", "deadbeef")
	cmd.SetContext(context.Background())
	err := cmd.ParseFlags([]string{"--config", "../../config.example.yaml"})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	testConfig, err := config.LoadConfig(cmd)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := testConfig.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMissingInstanceID(t *testing.T) {
	t.Parallel()
	cmd := cmd.NewCommand("testing", "deadbeef")
	cmd.SetContext(context.Background())
	err := cmd.ParseFlags([]string{})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	testConfig, err := config.LoadConfig(cmd)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := testConfig.Validate(); !errors.Is(err, config.ErrInstanceIDRequired) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMissingOTLPEndpoint(t *testing.T) {
	t.Parallel()

	cmd := cmd.NewCommand("testing", "deadbeef")
	cmd.SetContext(context.Background())
	err := cmd.ParseFlags(append([]string{"--http.tracing.enabled", "true"}, requiredFlags...))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	testConfig, err := config.LoadConfig(cmd)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := testConfig.Validate(); !errors.Is(err, config.ErrOTLPEndpointRequired) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTLSProfileRequiresCert(t *testing.T) {
	t.Parallel()
	cmd := cmd.NewCommand("testing", "deadbeef")
	cmd.SetContext(context.Background())
	err := cmd.ParseFlags(append([]string{"--listener.security_profile", "2"}, requiredFlags...))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	testConfig, err := config.LoadConfig(cmd)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := testConfig.Validate(); !errors.Is(err, config.ErrTLSCertRequired) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMutualTLSRequiresClientCA(t *testing.T) {
	t.Parallel()
	cmd := cmd.NewCommand("testing", "deadbeef")
	cmd.SetContext(context.Background())
	err := cmd.ParseFlags(append([]string{
		"--listener.security_profile", "3",
		"--listener.tls_cert", "server.crt",
		"--listener.tls_key", "server.key",
	}, requiredFlags...))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	testConfig, err := config.LoadConfig(cmd)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := testConfig.Validate(); !errors.Is(err, config.ErrClientCARequired) {
		t.Errorf("unexpected error: %v", err)
	}
}

// Parallel tests are not allowed with t.Setenv
//
//nolint:golint,paralleltest
func TestEnvConfig(t *testing.T) {
	cmd := cmd.NewCommand("testing", "deadbeef")
	cmd.SetContext(context.Background())
	t.Setenv("OCPP__SUBPROTOCOL", "ocpp1.6")
	t.Setenv("OCPP__INSTANCE_ID", "gw-1")
	t.Setenv("OCPP__TENANT_ID", "acme")
	t.Setenv("OCPP__PING_INTERVAL", "30")
	t.Setenv("OCPP__CALL_TIMEOUT", "15")
	t.Setenv("LISTENER__PORT", "9000")
	t.Setenv("LISTENER__IPV4_HOST", "127.0.0.1")
	t.Setenv("NATS__ENABLED", "true")
	t.Setenv("NATS__URL", "nats://localhost:4222")
	t.Setenv("REDIS__ENABLED", "true")
	t.Setenv("REDIS__ADDRESS", "localhost:6379")
	t.Setenv("HTTP__METRICS__ENABLED", "true")
	t.Setenv("HTTP__METRICS__PORT", "8088")
	t.Setenv("PERSISTENCE__DATABASE__DRIVER", "postgres")
	t.Setenv("PERSISTENCE__DATABASE__DATABASE", "gateway")
	t.Setenv("PERSISTENCE__DATABASE__HOST", "host")
	t.Setenv("PERSISTENCE__DATABASE__PORT", "5432")

	config, err := config.LoadConfig(cmd)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if config.OCPP.Subprotocol != "ocpp1.6" {
		t.Errorf("unexpected subprotocol: %s", config.OCPP.Subprotocol)
	}
	if config.OCPP.InstanceID != "gw-1" {
		t.Errorf("unexpected instance ID: %s", config.OCPP.InstanceID)
	}
	if config.OCPP.TenantID != "acme" {
		t.Errorf("unexpected tenant ID: %s", config.OCPP.TenantID)
	}
	if config.OCPP.PingIntervalSeconds != 30 {
		t.Errorf("unexpected ping interval: %d", config.OCPP.PingIntervalSeconds)
	}
	if config.OCPP.CallTimeoutSeconds != 15 {
		t.Errorf("unexpected call timeout: %d", config.OCPP.CallTimeoutSeconds)
	}
	if len(config.Listeners) != 1 {
		t.Fatalf("unexpected listeners: %v", config.Listeners)
	}
	if config.Listeners[0].Port != 9000 {
		t.Errorf("unexpected listener port: %d", config.Listeners[0].Port)
	}
	if config.Listeners[0].IPV4Host != "127.0.0.1" {
		t.Errorf("unexpected listener IPv4 host: %s", config.Listeners[0].IPV4Host)
	}
	if !config.NATS.Enabled {
		t.Error("unexpected NATS enabled")
	}
	if config.NATS.URL != "nats://localhost:4222" {
		t.Errorf("unexpected NATS URL: %s", config.NATS.URL)
	}
	if !config.Redis.Enabled {
		t.Error("unexpected Redis enabled")
	}
	if config.Redis.Address != "localhost:6379" {
		t.Errorf("unexpected Redis address: %s", config.Redis.Address)
	}
	if !config.HTTP.Metrics.Enabled {
		t.Error("unexpected metrics enabled")
	}
	if config.HTTP.Metrics.Port != 8088 {
		t.Errorf("unexpected metrics port: %d", config.HTTP.Metrics.Port)
	}
	if config.Persistence.Database.Driver != "postgres" {
		t.Errorf("unexpected persistence driver: %s", config.Persistence.Database.Driver)
	}
	if config.Persistence.Database.Host != "host" {
		t.Errorf("unexpected persistence host: %s", config.Persistence.Database.Host)
	}
	if config.Persistence.Database.Port != 5432 {
		t.Errorf("unexpected persistence port: %d", config.Persistence.Database.Port)
	}
}
