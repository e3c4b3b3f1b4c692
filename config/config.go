// Package config describes how a validator's safety rules are deployed.
//
// Configuration is resolved in this order (later wins):
//  1. Defaults
//  2. YAML file
//  3. Environment variables (SAFETY_RULES_*)
//
// The resolved config is validated once and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"xdao.co/safetyrules/keys"
	"xdao.co/safetyrules/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SAFETY_RULES_"

// ServiceKind selects the deployment topology.
type ServiceKind string

const (
	ServiceLocal      ServiceKind = "local"
	ServiceProcess    ServiceKind = "process"
	ServiceSerializer ServiceKind = "serializer"
	ServiceThread     ServiceKind = "thread"
)

// Valid reports whether k names an implemented topology.
func (k ServiceKind) Valid() bool {
	switch k {
	case ServiceLocal, ServiceProcess, ServiceSerializer, ServiceThread:
		return true
	}
	return false
}

func (k ServiceKind) String() string { return string(k) }

func (k *ServiceKind) UnmarshalText(text []byte) error {
	kind := ServiceKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !kind.Valid() {
		return fmt.Errorf("config: unknown service kind %q", string(text))
	}
	*k = kind
	return nil
}

func (k ServiceKind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

// Backend names a storage/kvregistry backend and its backend-specific keys.
//
// Example:
//
//	backend:
//	  type: on_disk
//	  config:
//	    path: /var/lib/validator/secure_storage.json
type Backend struct {
	Type   string            `yaml:"type" env:"TYPE"`
	Config map[string]string `yaml:"config,omitempty" env:"CONFIG"`
}

// ServiceConfig selects the topology; ServerAddress is only used by the
// process topology.
type ServiceConfig struct {
	Kind          ServiceKind `yaml:"type" env:"KIND"`
	ServerAddress string      `yaml:"server_address,omitempty" env:"SERVER_ADDRESS"`
}

// TestConfig seeds storage unconditionally at every start. Only for tests
// and local networks.
type TestConfig struct {
	Author       types.Author     `yaml:"author"`
	ConsensusKey *keys.PrivateKey `yaml:"consensus_key,omitempty"`
	ExecutionKey *keys.PrivateKey `yaml:"execution_key,omitempty"`
	Waypoint     *types.Waypoint  `yaml:"waypoint,omitempty"`
}

// InitialSafetyRulesConfig is used once, when storage holds no identity yet.
type InitialSafetyRulesConfig struct {
	IdentityBlobPath string         `yaml:"identity_blob_path"`
	Waypoint         types.Waypoint `yaml:"waypoint"`
}

// SafetyRulesConfig is the full safety rules configuration.
type SafetyRulesConfig struct {
	Backend Backend       `yaml:"backend" envPrefix:"BACKEND_"`
	Service ServiceConfig `yaml:"service" envPrefix:"SERVICE_"`

	NetworkTimeoutMs            uint64 `yaml:"network_timeout_ms" env:"NETWORK_TIMEOUT_MS"`
	VerifyVoteProposalSignature bool   `yaml:"verify_vote_proposal_signature" env:"VERIFY_VOTE_PROPOSAL_SIGNATURE"`
	ExportConsensusKey          bool   `yaml:"export_consensus_key" env:"EXPORT_CONSENSUS_KEY"`
	EnableCachedSafetyData      bool   `yaml:"enable_cached_safety_data" env:"ENABLE_CACHED_SAFETY_DATA"`

	Test               *TestConfig               `yaml:"test,omitempty" envPrefix:"TEST_"`
	InitialSafetyRules *InitialSafetyRulesConfig `yaml:"initial_safety_rules_config,omitempty" envPrefix:"INITIAL_"`
}

// Default config values.
const (
	DefaultNetworkTimeoutMs = 30_000
	DefaultBackend          = "in_memory"
)

// Default returns a local, in-memory configuration.
func Default() SafetyRulesConfig {
	return SafetyRulesConfig{
		Backend:                     Backend{Type: DefaultBackend},
		Service:                     ServiceConfig{Kind: ServiceLocal},
		NetworkTimeoutMs:            DefaultNetworkTimeoutMs,
		VerifyVoteProposalSignature: true,
		ExportConsensusKey:          true,
		EnableCachedSafetyData:      true,
	}
}

// NetworkTimeout is NetworkTimeoutMs as a duration.
func (c SafetyRulesConfig) NetworkTimeout() time.Duration {
	return time.Duration(c.NetworkTimeoutMs) * time.Millisecond
}

// Validate checks structural problems only. Missing key material is
// reported at bootstrap, where it is fatal.
func (c SafetyRulesConfig) Validate() error {
	if !c.Service.Kind.Valid() {
		return fmt.Errorf("config: unknown service kind %q", c.Service.Kind)
	}
	if c.Service.Kind == ServiceProcess {
		if strings.TrimSpace(c.Service.ServerAddress) == "" {
			return errors.New("config: service.server_address is required for the process service")
		}
	} else if strings.TrimSpace(c.Backend.Type) == "" {
		return errors.New("config: backend.type is required")
	}
	if c.NetworkTimeoutMs == 0 {
		return errors.New("config: network_timeout_ms must be positive")
	}
	if c.InitialSafetyRules != nil && strings.TrimSpace(c.InitialSafetyRules.IdentityBlobPath) == "" {
		return errors.New("config: initial_safety_rules_config.identity_blob_path is required")
	}
	return nil
}

// Parse decodes YAML on top of Default and applies environment overrides.
func Parse(data []byte) (SafetyRulesConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Load reads and parses the YAML file at path.
func Load(path string) (SafetyRulesConfig, error) {
	if path == "" {
		return SafetyRulesConfig{}, errors.New("config: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return SafetyRulesConfig{}, err
	}
	return Parse(b)
}

// ApplyEnv overrides cfg from SAFETY_RULES_* environment variables.
func ApplyEnv(cfg *SafetyRulesConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
