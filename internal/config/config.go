// Package config loads Repo configuration from YAML, grounded on the
// teacher's reliance on go.yaml.in/yaml/v2 (an indirect dependency in the
// teacher's go.mod promoted here to the thing that actually decodes a
// config file) rather than inventing a flag-based or env-based loader.
package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v2"
)

// Identity is the handshake identity a Repo advertises to every peer.
type Identity struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "user" or "service"
}

// PermissionPolicy configures the default-allow/default-deny behavior of
// the three synchronous permission hooks for network channels. Storage
// channels always default-allow regardless of these settings (Testable
// Property 7) — that default is enforced in internal/middleware, not here.
type PermissionPolicy struct {
	MayListNetwork           bool `yaml:"mayListNetwork"`
	MayRevealNetwork         bool `yaml:"mayRevealNetwork"`
	MayReceiveUpdateNetwork  bool `yaml:"mayReceiveUpdateNetwork"`
}

// MiddlewareConfig toggles the optional domain middlewares shipped with the
// runtime.
type MiddlewareConfig struct {
	RequireAuthToken bool   `yaml:"requireAuthToken"`
	AuthSecretKey    string `yaml:"authSecretKey"`
	RequirePQCSignature bool `yaml:"requirePqcSignature"`
	MaxInboundBytes  int    `yaml:"maxInboundBytes"`
}

// StorageConfig configures the on-disk storage adapter, when used.
type StorageConfig struct {
	Directory        string `yaml:"directory"`
	EncryptAtRest     bool   `yaml:"encryptAtRest"`
	EncryptPassphrase string `yaml:"encryptPassphrase"`
}

// Options is the full set of Repo configuration loaded from YAML, mapping
// onto spec §6's configuration options table.
type Options struct {
	Identity            Identity          `yaml:"identity"`
	Permissions         PermissionPolicy  `yaml:"permissions"`
	Middleware          MiddlewareConfig  `yaml:"middleware"`
	Storage             StorageConfig     `yaml:"storage"`
	HeartbeatIntervalMs int               `yaml:"heartbeatIntervalMs"`
}

// DefaultOptions returns the options a Repo uses when no config file is
// supplied: a service identity, default-deny network permissions, no
// middleware, and the spec's default heartbeat interval of 10s.
func DefaultOptions() Options {
	return Options{
		Identity:            Identity{Name: "syncmesh-peer", Kind: "service"},
		HeartbeatIntervalMs: 10000,
	}
}

// Load reads and decodes a YAML config file, filling in DefaultOptions()
// for anything the file leaves at its zero value.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into Options, applying the heartbeat default
// when the document doesn't set one.
func Parse(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if opts.HeartbeatIntervalMs <= 0 {
		opts.HeartbeatIntervalMs = 10000
	}
	return opts, nil
}
