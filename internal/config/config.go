package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP        HTTP        `json:"http"`
	OCPP        OCPP        `json:"ocpp"`
	Listeners   []Listener  `json:"listeners"`
	NATS        NATS        `json:"nats"`
	Redis       Redis       `json:"redis"`
	Persistence Persistence `json:"persistence"`
}

type OCPP struct {
	Subprotocol         string `json:"subprotocol"`
	InstanceID          string `json:"instance_id" yaml:"instance_id"`
	TenantID            string `json:"tenant_id" yaml:"tenant_id"`
	PingIntervalSeconds uint   `json:"ping_interval" yaml:"ping_interval"`
	CallTimeoutSeconds  uint   `json:"call_timeout" yaml:"call_timeout"`
}

// SecurityProfile is the OCPP transport/auth tier of a listener.
type SecurityProfile uint8

const (
	SecurityProfileOpen         SecurityProfile = 0
	SecurityProfileBasicAuth    SecurityProfile = 1
	SecurityProfileTLSBasicAuth SecurityProfile = 2
	SecurityProfileMutualTLS    SecurityProfile = 3
)

type Listener struct {
	IPV4Host        string          `json:"ipv4_host" yaml:"ipv4_host"`
	IPV6Host        string          `json:"ipv6_host" yaml:"ipv6_host"`
	Port            uint16          `json:"port"`
	SecurityProfile SecurityProfile `json:"security_profile" yaml:"security_profile"`
	TLSCert         string          `json:"tls_cert" yaml:"tls_cert"`
	TLSKey          string          `json:"tls_key" yaml:"tls_key"`
	ClientCA        string          `json:"client_ca" yaml:"client_ca"`
}

type NATS struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

type Redis struct {
	Enabled  bool     `json:"enabled"`
	Address  string   `json:"address"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Database int      `json:"database"`
	Sentinel Sentinel `json:"sentinel"`
}

type Sentinel struct {
	Enabled    bool     `json:"enabled"`
	MasterName string   `json:"master_name" yaml:"master_name"`
	Addresses  []string `json:"addresses"`
	Password   string   `json:"password"`
}

type Persistence struct {
	Database Database `json:"database"`
}

type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
)

type Database struct {
	Driver          DatabaseDriver `json:"driver"`
	Database        string         `json:"database"`
	Username        string         `json:"username"`
	Password        string         `json:"password"`
	Host            string         `json:"host"`
	Port            uint16         `json:"port"`
	ExtraParameters string         `json:"extra_parameters" yaml:"extra_parameters"`
}

type Tracing struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

type PProf struct {
	Enabled bool `json:"enabled"`
}

type HTTPListener struct {
	IPV4Host string `json:"ipv4_host" yaml:"ipv4_host"`
	IPV6Host string `json:"ipv6_host" yaml:"ipv6_host"`
	Port     uint16 `json:"port"`
}

type Metrics struct {
	HTTPListener
	Enabled bool `json:"enabled"`
}

type HTTP struct {
	Tracing        Tracing  `json:"tracing"`
	PProf          PProf    `json:"pprof"`
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
	Metrics        Metrics  `json:"metrics"`
}

//nolint:golint,gochecknoglobals
var (
	ConfigFileKey                         = "config"
	OCPPSubprotocolKey                    = "ocpp.subprotocol"
	OCPPInstanceIDKey                     = "ocpp.instance_id"
	OCPPTenantIDKey                       = "ocpp.tenant_id"
	OCPPPingIntervalKey                   = "ocpp.ping_interval"
	OCPPCallTimeoutKey                    = "ocpp.call_timeout"
	ListenerIPV4HostKey                   = "listener.ipv4_host"
	ListenerIPV6HostKey                   = "listener.ipv6_host"
	ListenerPortKey                       = "listener.port"
	ListenerProfileKey                    = "listener.security_profile"
	ListenerTLSCertKey                    = "listener.tls_cert"
	ListenerTLSKeyKey                     = "listener.tls_key"
	ListenerClientCAKey                   = "listener.client_ca"
	NATSEnabledKey                        = "nats.enabled"
	NATSURLKey                            = "nats.url"
	RedisEnabledKey                       = "redis.enabled"
	RedisAddressKey                       = "redis.address"
	RedisUsernameKey                      = "redis.username"
	//nolint:golint,gosec
	RedisPasswordKey                      = "redis.password"
	RedisDatabaseKey                      = "redis.database"
	HTTPTracingEnabledKey                 = "http.tracing.enabled"
	HTTPTracingOTLPEndKey                 = "http.tracing.otlp_endpoint"
	HTTPPProfEnabledKey                   = "http.pprof.enabled"
	HTTPTrustedProxiesKey                 = "http.trusted_proxies"
	HTTPMetricsEnabledKey                 = "http.metrics.enabled"
	HTTPMetricsIPV4HostKey                = "http.metrics.ipv4_host"
	HTTPMetricsIPV6HostKey                = "http.metrics.ipv6_host"
	HTTPMetricsPortKey                    = "http.metrics.port"
	PersistenceDatabaseDriverKey          = "persistence.database.driver"
	PersistenceDatabaseDatabaseKey        = "persistence.database.database"
	PersistenceDatabaseUsernameKey        = "persistence.database.username"
	//nolint:golint,gosec
	PersistenceDatabasePasswordKey        = "persistence.database.password"
	PersistenceDatabaseHostKey            = "persistence.database.host"
	PersistenceDatabasePortKey            = "persistence.database.port"
	PersistenceDatabaseExtraParametersKey = "persistence.database.extra_parameters"
)

const (
	DefaultConfigPath                  = "config.yaml"
	DefaultOCPPSubprotocol             = "ocpp2.0.1"
	DefaultOCPPTenantID                = "default"
	DefaultOCPPPingInterval            = 60
	DefaultOCPPCallTimeout             = 30
	DefaultListenerIPV4Host            = "0.0.0.0"
	DefaultListenerIPV6Host            = "::"
	DefaultListenerPort                = 8092
	DefaultHTTPMetricsIPV4Host         = "127.0.0.1"
	DefaultHTTPMetricsIPV6Host         = "::1"
	DefaultHTTPMetricsPort             = 8081
	DefaultPersistenceDatabaseDriver   = DatabaseDriverSQLite
	DefaultPersistenceDatabaseDatabase = "gateway.db"
)

func RegisterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(ConfigFileKey, "c", DefaultConfigPath, "Config file path")
	cmd.Flags().String(OCPPSubprotocolKey, DefaultOCPPSubprotocol, "WebSocket subprotocol accepted at the handshake")
	cmd.Flags().String(OCPPInstanceIDKey, "", "Unique identifier of this gateway instance")
	cmd.Flags().String(OCPPTenantIDKey, DefaultOCPPTenantID, "Tenant identifier stamped on bus messages")
	cmd.Flags().Uint(OCPPPingIntervalKey, DefaultOCPPPingInterval, "Seconds between liveness pings")
	cmd.Flags().Uint(OCPPCallTimeoutKey, DefaultOCPPCallTimeout, "Seconds before a pending call expires")
	cmd.Flags().String(ListenerIPV4HostKey, DefaultListenerIPV4Host, "Station listener IPv4 host")
	cmd.Flags().String(ListenerIPV6HostKey, DefaultListenerIPV6Host, "Station listener IPv6 host")
	cmd.Flags().Uint16(ListenerPortKey, DefaultListenerPort, "Station listener port")
	cmd.Flags().Uint8(ListenerProfileKey, 0, "Station listener security profile (0-3)")
	cmd.Flags().String(ListenerTLSCertKey, "", "Station listener TLS certificate path")
	cmd.Flags().String(ListenerTLSKeyKey, "", "Station listener TLS key path")
	cmd.Flags().String(ListenerClientCAKey, "", "CA bundle for client certificate verification")
	cmd.Flags().Bool(NATSEnabledKey, false, "Enable the NATS message bus")
	cmd.Flags().String(NATSURLKey, "", "NATS server URL")
	cmd.Flags().Bool(RedisEnabledKey, false, "Enable the Redis shared cache")
	cmd.Flags().String(RedisAddressKey, "", "Redis address")
	cmd.Flags().String(RedisUsernameKey, "", "Redis username")
	cmd.Flags().String(RedisPasswordKey, "", "Redis password")
	cmd.Flags().Int(RedisDatabaseKey, 0, "Redis database number")
	cmd.Flags().Bool(HTTPTracingEnabledKey, false, "Enable Open Telemetry tracing")
	cmd.Flags().String(HTTPTracingOTLPEndKey, "", "Open Telemetry endpoint")
	cmd.Flags().Bool(HTTPPProfEnabledKey, false, "Enable pprof")
	cmd.Flags().StringSlice(HTTPTrustedProxiesKey, []string{}, "Comma-separated list of trusted proxies")
	cmd.Flags().Bool(HTTPMetricsEnabledKey, false, "Enable metrics server")
	cmd.Flags().String(HTTPMetricsIPV4HostKey, DefaultHTTPMetricsIPV4Host, "Metrics server IPv4 host")
	cmd.Flags().String(HTTPMetricsIPV6HostKey, DefaultHTTPMetricsIPV6Host, "Metrics server IPv6 host")
	cmd.Flags().Uint16(HTTPMetricsPortKey, DefaultHTTPMetricsPort, "Metrics server port")
	cmd.Flags().String(PersistenceDatabaseDriverKey, string(DefaultPersistenceDatabaseDriver), "Database driver")
	cmd.Flags().String(PersistenceDatabaseDatabaseKey, DefaultPersistenceDatabaseDatabase, "Database path")
	cmd.Flags().String(PersistenceDatabaseUsernameKey, "", "Database username")
	cmd.Flags().String(PersistenceDatabasePasswordKey, "", "Database password")
	cmd.Flags().String(PersistenceDatabaseHostKey, "", "Database host")
	cmd.Flags().Uint16(PersistenceDatabasePortKey, 0, "Database port")
	cmd.Flags().String(PersistenceDatabaseExtraParametersKey, "", "Database extra parameters")
}

var (
	ErrSubprotocolRequired    = errors.New("OCPP subprotocol is required")
	ErrInstanceIDRequired     = errors.New("Instance ID is required")
	ErrListenerRequired       = errors.New("At least one station listener is required")
	ErrInvalidSecurityProfile = errors.New("Security profile must be between 0 and 3")
	ErrTLSCertRequired        = errors.New("TLS certificate and key are required for security profiles 2 and 3")
	ErrClientCARequired       = errors.New("Client CA bundle is required for security profile 3")
	ErrNATSURLRequired        = errors.New("NATS URL is required when NATS is enabled")
	ErrRedisAddressRequired   = errors.New("Redis address is required when Redis is enabled")
	ErrOTLPEndpointRequired   = errors.New("OTLP endpoint is required when tracing is enabled")
	ErrDBHostRequired         = errors.New("Database host is required")
	ErrDBDatabaseRequired     = errors.New("Database name is required")
	ErrDatabaseDriverRequired = errors.New("Database driver is required")
)

func (c *Config) Validate() error {
	if c.OCPP.Subprotocol == "" {
		return ErrSubprotocolRequired
	}
	if c.OCPP.InstanceID == "" {
		return ErrInstanceIDRequired
	}
	if len(c.Listeners) == 0 {
		return ErrListenerRequired
	}
	for _, listener := range c.Listeners {
		if listener.SecurityProfile > SecurityProfileMutualTLS {
			return ErrInvalidSecurityProfile
		}
		if listener.SecurityProfile >= SecurityProfileTLSBasicAuth && (listener.TLSCert == "" || listener.TLSKey == "") {
			return ErrTLSCertRequired
		}
		if listener.SecurityProfile == SecurityProfileMutualTLS && listener.ClientCA == "" {
			return ErrClientCARequired
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return ErrNATSURLRequired
	}
	if c.Redis.Enabled && !c.Redis.Sentinel.Enabled && c.Redis.Address == "" {
		return ErrRedisAddressRequired
	}
	if c.HTTP.Tracing.Enabled && c.HTTP.Tracing.OTLPEndpoint == "" {
		return ErrOTLPEndpointRequired
	}
	if c.Persistence.Database.Driver == "" {
		return ErrDatabaseDriverRequired
	}
	if c.Persistence.Database.Driver != DatabaseDriverSQLite && c.Persistence.Database.Host == "" {
		return ErrDBHostRequired
	}
	if c.Persistence.Database.Database == "" {
		return ErrDBDatabaseRequired
	}

	return nil
}

func LoadConfig(cmd *cobra.Command) (*Config, error) {
	var config Config

	// Load flags from envs
	ctx, cancel := context.WithCancelCause(cmd.Context())
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if ctx.Err() != nil {
			return
		}
		optName := strings.ReplaceAll(strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_"), ".", "__")
		if val, ok := os.LookupEnv(optName); !f.Changed && ok {
			if err := f.Value.Set(val); err != nil {
				cancel(err)
			}
			f.Changed = true
		}
	})
	if ctx.Err() != nil {
		return &config, fmt.Errorf("failed to load env: %w", context.Cause(ctx))
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return &config, fmt.Errorf("failed to get config path: %w", err)
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return &config, fmt.Errorf("failed to read config: %w", err)
		} else if err == nil {
			if err := yaml.Unmarshal(data, &config); err != nil {
				return &config, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	err = overrideFlags(&config, cmd)
	if err != nil {
		return &config, fmt.Errorf("failed to override flags: %w", err)
	}

	// Defaults
	if config.OCPP.Subprotocol == "" {
		config.OCPP.Subprotocol = DefaultOCPPSubprotocol
	}
	if config.OCPP.TenantID == "" {
		config.OCPP.TenantID = DefaultOCPPTenantID
	}
	if config.OCPP.PingIntervalSeconds == 0 {
		config.OCPP.PingIntervalSeconds = DefaultOCPPPingInterval
	}
	if config.OCPP.CallTimeoutSeconds == 0 {
		config.OCPP.CallTimeoutSeconds = DefaultOCPPCallTimeout
	}
	if config.HTTP.Metrics.IPV4Host == "" {
		config.HTTP.Metrics.IPV4Host = DefaultHTTPMetricsIPV4Host
	}
	if config.HTTP.Metrics.IPV6Host == "" {
		config.HTTP.Metrics.IPV6Host = DefaultHTTPMetricsIPV6Host
	}
	if config.HTTP.Metrics.Port == 0 {
		config.HTTP.Metrics.Port = DefaultHTTPMetricsPort
	}
	if config.Persistence.Database.Driver == "" {
		config.Persistence.Database.Driver = DefaultPersistenceDatabaseDriver
	}
	if config.Persistence.Database.Database == "" {
		config.Persistence.Database.Database = DefaultPersistenceDatabaseDatabase
	}
	for i := range config.Listeners {
		if config.Listeners[i].IPV4Host == "" {
			config.Listeners[i].IPV4Host = DefaultListenerIPV4Host
		}
		if config.Listeners[i].IPV6Host == "" {
			config.Listeners[i].IPV6Host = DefaultListenerIPV6Host
		}
		if config.Listeners[i].Port == 0 {
			config.Listeners[i].Port = DefaultListenerPort
		}
	}

	return &config, nil
}

//nolint:golint,gocyclo
func overrideFlags(config *Config, cmd *cobra.Command) error {
	var err error
	if cmd.Flags().Changed(OCPPSubprotocolKey) {
		config.OCPP.Subprotocol, err = cmd.Flags().GetString(OCPPSubprotocolKey)
		if err != nil {
			return fmt.Errorf("failed to get OCPP subprotocol: %w", err)
		}
	}

	if cmd.Flags().Changed(OCPPInstanceIDKey) {
		config.OCPP.InstanceID, err = cmd.Flags().GetString(OCPPInstanceIDKey)
		if err != nil {
			return fmt.Errorf("failed to get instance ID: %w", err)
		}
	}

	if cmd.Flags().Changed(OCPPTenantIDKey) {
		config.OCPP.TenantID, err = cmd.Flags().GetString(OCPPTenantIDKey)
		if err != nil {
			return fmt.Errorf("failed to get tenant ID: %w", err)
		}
	}

	if cmd.Flags().Changed(OCPPPingIntervalKey) {
		config.OCPP.PingIntervalSeconds, err = cmd.Flags().GetUint(OCPPPingIntervalKey)
		if err != nil {
			return fmt.Errorf("failed to get ping interval: %w", err)
		}
	}

	if cmd.Flags().Changed(OCPPCallTimeoutKey) {
		config.OCPP.CallTimeoutSeconds, err = cmd.Flags().GetUint(OCPPCallTimeoutKey)
		if err != nil {
			return fmt.Errorf("failed to get call timeout: %w", err)
		}
	}

	// The flags describe a single listener; additional listeners come from
	// the config file.
	if cmd.Flags().Changed(ListenerPortKey) || cmd.Flags().Changed(ListenerProfileKey) || len(config.Listeners) == 0 {
		listener := Listener{}
		listener.IPV4Host, err = cmd.Flags().GetString(ListenerIPV4HostKey)
		if err != nil {
			return fmt.Errorf("failed to get listener IPv4 host: %w", err)
		}
		listener.IPV6Host, err = cmd.Flags().GetString(ListenerIPV6HostKey)
		if err != nil {
			return fmt.Errorf("failed to get listener IPv6 host: %w", err)
		}
		listener.Port, err = cmd.Flags().GetUint16(ListenerPortKey)
		if err != nil {
			return fmt.Errorf("failed to get listener port: %w", err)
		}
		profile, err := cmd.Flags().GetUint8(ListenerProfileKey)
		if err != nil {
			return fmt.Errorf("failed to get listener security profile: %w", err)
		}
		listener.SecurityProfile = SecurityProfile(profile)
		listener.TLSCert, err = cmd.Flags().GetString(ListenerTLSCertKey)
		if err != nil {
			return fmt.Errorf("failed to get listener TLS certificate: %w", err)
		}
		listener.TLSKey, err = cmd.Flags().GetString(ListenerTLSKeyKey)
		if err != nil {
			return fmt.Errorf("failed to get listener TLS key: %w", err)
		}
		listener.ClientCA, err = cmd.Flags().GetString(ListenerClientCAKey)
		if err != nil {
			return fmt.Errorf("failed to get listener client CA: %w", err)
		}
		config.Listeners = append(config.Listeners, listener)
	}

	if cmd.Flags().Changed(NATSEnabledKey) {
		config.NATS.Enabled, err = cmd.Flags().GetBool(NATSEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get NATS enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(NATSURLKey) {
		config.NATS.URL, err = cmd.Flags().GetString(NATSURLKey)
		if err != nil {
			return fmt.Errorf("failed to get NATS URL: %w", err)
		}
	}

	if cmd.Flags().Changed(RedisEnabledKey) {
		config.Redis.Enabled, err = cmd.Flags().GetBool(RedisEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get Redis enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(RedisAddressKey) {
		config.Redis.Address, err = cmd.Flags().GetString(RedisAddressKey)
		if err != nil {
			return fmt.Errorf("failed to get Redis address: %w", err)
		}
	}

	if cmd.Flags().Changed(RedisUsernameKey) {
		config.Redis.Username, err = cmd.Flags().GetString(RedisUsernameKey)
		if err != nil {
			return fmt.Errorf("failed to get Redis username: %w", err)
		}
	}

	if cmd.Flags().Changed(RedisPasswordKey) {
		config.Redis.Password, err = cmd.Flags().GetString(RedisPasswordKey)
		if err != nil {
			return fmt.Errorf("failed to get Redis password: %w", err)
		}
	}

	if cmd.Flags().Changed(RedisDatabaseKey) {
		config.Redis.Database, err = cmd.Flags().GetInt(RedisDatabaseKey)
		if err != nil {
			return fmt.Errorf("failed to get Redis database: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTracingEnabledKey) {
		config.HTTP.Tracing.Enabled, err = cmd.Flags().GetBool(HTTPTracingEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get tracing enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTracingOTLPEndKey) {
		config.HTTP.Tracing.OTLPEndpoint, err = cmd.Flags().GetString(HTTPTracingOTLPEndKey)
		if err != nil {
			return fmt.Errorf("failed to get tracing OTLP endpoint: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPPProfEnabledKey) {
		config.HTTP.PProf.Enabled, err = cmd.Flags().GetBool(HTTPPProfEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get pprof enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTrustedProxiesKey) {
		config.HTTP.TrustedProxies, err = cmd.Flags().GetStringSlice(HTTPTrustedProxiesKey)
		if err != nil {
			return fmt.Errorf("failed to get trusted proxies: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsEnabledKey) {
		config.HTTP.Metrics.Enabled, err = cmd.Flags().GetBool(HTTPMetricsEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsIPV4HostKey) {
		config.HTTP.Metrics.IPV4Host, err = cmd.Flags().GetString(HTTPMetricsIPV4HostKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics IPv4 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsIPV6HostKey) {
		config.HTTP.Metrics.IPV6Host, err = cmd.Flags().GetString(HTTPMetricsIPV6HostKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics IPv6 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsPortKey) {
		config.HTTP.Metrics.Port, err = cmd.Flags().GetUint16(HTTPMetricsPortKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics port: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabaseDriverKey) {
		drvr, err := cmd.Flags().GetString(PersistenceDatabaseDriverKey)
		if err != nil {
			return fmt.Errorf("failed to get database driver: %w", err)
		}
		config.Persistence.Database.Driver = DatabaseDriver(strings.ToLower(drvr))
	}

	if cmd.Flags().Changed(PersistenceDatabaseDatabaseKey) {
		config.Persistence.Database.Database, err = cmd.Flags().GetString(PersistenceDatabaseDatabaseKey)
		if err != nil {
			return fmt.Errorf("failed to get database name: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabaseUsernameKey) {
		config.Persistence.Database.Username, err = cmd.Flags().GetString(PersistenceDatabaseUsernameKey)
		if err != nil {
			return fmt.Errorf("failed to get database username: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabasePasswordKey) {
		config.Persistence.Database.Password, err = cmd.Flags().GetString(PersistenceDatabasePasswordKey)
		if err != nil {
			return fmt.Errorf("failed to get database password: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabaseHostKey) {
		config.Persistence.Database.Host, err = cmd.Flags().GetString(PersistenceDatabaseHostKey)
		if err != nil {
			return fmt.Errorf("failed to get database host: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabasePortKey) {
		config.Persistence.Database.Port, err = cmd.Flags().GetUint16(PersistenceDatabasePortKey)
		if err != nil {
			return fmt.Errorf("failed to get database port: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabaseExtraParametersKey) {
		config.Persistence.Database.ExtraParameters, err = cmd.Flags().GetString(PersistenceDatabaseExtraParametersKey)
		if err != nil {
			return fmt.Errorf("failed to get database extra parameters: %w", err)
		}
	}

	return nil
}
