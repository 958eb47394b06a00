// Package config loads the typed configuration cmd/fabrik's subcommands
// run against: a YAML file with environment-variable overrides, the same
// two-layer shape as warren's cmd/warren flag defaults, but in an
// env-decodable struct form (adopted from r3e-network-service_layer's
// pkg/config, which is the pack's only repo carrying a YAML+env config
// loader).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GatewayConfig controls a `serve gateway` process.
type GatewayConfig struct {
	ListenAddr      string `yaml:"listen_addr" env:"GATEWAY_LISTEN_ADDR"`
	RegistryAddr    string `yaml:"registry_addr" env:"GATEWAY_REGISTRY_ADDR"`
	FabricAddr      string `yaml:"fabric_addr" env:"GATEWAY_FABRIC_ADDR"`
	OverlayDir      string `yaml:"overlay_dir" env:"GATEWAY_OVERLAY_DIR"`
	SessionRedisURL string `yaml:"session_redis_url" env:"GATEWAY_SESSION_REDIS_URL"`
	OAuthClientID   string `yaml:"oauth_client_id" env:"GATEWAY_OAUTH_CLIENT_ID"`
	OAuthSecret     string `yaml:"oauth_client_secret" env:"GATEWAY_OAUTH_CLIENT_SECRET"`
	OAuthIssuer     string `yaml:"oauth_issuer" env:"GATEWAY_OAUTH_ISSUER"`
	StateSigningKey string `yaml:"state_signing_key" env:"GATEWAY_STATE_SIGNING_KEY"`
}

// ClusterConfig controls a control-plane node's Raft identity and store.
type ClusterConfig struct {
	NodeID   string `yaml:"node_id" env:"CLUSTER_NODE_ID"`
	BindAddr string `yaml:"bind_addr" env:"CLUSTER_BIND_ADDR"`
	DataDir  string `yaml:"data_dir" env:"CLUSTER_DATA_DIR"`
	RPCAddr  string `yaml:"rpc_addr" env:"CLUSTER_RPC_ADDR"`
}

// RuntimeConfig controls a `serve runtime-host` worker process.
type RuntimeConfig struct {
	NodeID        string `yaml:"node_id" env:"RUNTIME_NODE_ID"`
	DataDir       string `yaml:"data_dir" env:"RUNTIME_DATA_DIR"`
	RPCAddr       string `yaml:"rpc_addr" env:"RUNTIME_RPC_ADDR"`
	DefaultFuel   uint64 `yaml:"default_fuel" env:"RUNTIME_DEFAULT_FUEL"`
	SnapshotEvery int    `yaml:"snapshot_every" env:"RUNTIME_SNAPSHOT_EVERY"`
}

// RegistryConfig controls the metadata service (`serve registry` /
// `registry migrate`).
type RegistryConfig struct {
	Backend    string `yaml:"backend" env:"REGISTRY_BACKEND"` // "bolt" or "postgres"
	DSN        string `yaml:"dsn" env:"REGISTRY_DSN"`
	DataDir    string `yaml:"data_dir" env:"REGISTRY_DATA_DIR"`
	ListenAddr string `yaml:"listen_addr" env:"REGISTRY_LISTEN_ADDR"`
}

// LoggingConfig controls the process-wide zerolog setup (pkg/log).
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	JSONOutput bool   `yaml:"json" env:"LOG_JSON"`
}

// TracingConfig controls the OTLP exporter pkg/tracing builds from.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string `yaml:"otlp_endpoint" env:"TRACING_OTLP_ENDPOINT"`
	Insecure    bool   `yaml:"insecure" env:"TRACING_OTLP_INSECURE"`
	ServiceName string `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
}

// Config is the top-level document cmd/fabrik reads; every subcommand
// reads only the section(s) relevant to the server it starts.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Registry RegistryConfig `yaml:"registry"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// Defaults returns a Config with every field set to a value sufficient
// for a single-node, all-in-one local run.
func Defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ListenAddr: "0.0.0.0:8080",
			OverlayDir: "./fabrik-data/overlay",
		},
		Cluster: ClusterConfig{
			NodeID:   "node-1",
			BindAddr: "127.0.0.1:7946",
			DataDir:  "./fabrik-data/cluster",
			RPCAddr:  "127.0.0.1:7950",
		},
		Runtime: RuntimeConfig{
			NodeID:        "node-1",
			DataDir:       "./fabrik-data/runtime",
			RPCAddr:       "127.0.0.1:7951",
			DefaultFuel:   10_000_000,
			SnapshotEvery: 100,
		},
		Registry: RegistryConfig{
			Backend:    "bolt",
			DataDir:    "./fabrik-data/registry",
			ListenAddr: "127.0.0.1:7952",
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{ServiceName: "fabrik"},
	}
}

// Load reads configFile (if non-empty and present) over the defaults,
// then applies any environment variable overrides tagged on the struct.
// A missing file is not an error — flags/env/defaults alone are a valid
// configuration for local development.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := strings.TrimSpace(configFile); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
