package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Identity.Kind != "service" {
		t.Errorf("Expected default identity kind 'service', got %s", opts.Identity.Kind)
	}
	if opts.HeartbeatIntervalMs != 10000 {
		t.Errorf("Expected default heartbeat interval 10000, got %d", opts.HeartbeatIntervalMs)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	doc := []byte(`
identity:
  name: alice
  kind: user
permissions:
  mayListNetwork: true
  mayRevealNetwork: true
  mayReceiveUpdateNetwork: true
middleware:
  requireAuthToken: true
  authSecretKey: shh
heartbeatIntervalMs: 5000
`)

	opts, err := Parse(doc)
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if opts.Identity.Name != "alice" || opts.Identity.Kind != "user" {
		t.Errorf("Expected identity alice/user, got %+v", opts.Identity)
	}
	if !opts.Permissions.MayListNetwork {
		t.Error("Expected mayListNetwork true")
	}
	if !opts.Middleware.RequireAuthToken {
		t.Error("Expected requireAuthToken true")
	}
	if opts.Middleware.AuthSecretKey != "shh" {
		t.Errorf("Expected authSecretKey 'shh', got %s", opts.Middleware.AuthSecretKey)
	}
	if opts.HeartbeatIntervalMs != 5000 {
		t.Errorf("Expected heartbeatIntervalMs 5000, got %d", opts.HeartbeatIntervalMs)
	}
}

func TestParseAppliesHeartbeatDefaultWhenZero(t *testing.T) {
	opts, err := Parse([]byte(`identity:
  name: bob
  kind: service
`))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	if opts.HeartbeatIntervalMs != 10000 {
		t.Errorf("Expected heartbeat default to be applied, got %d", opts.HeartbeatIntervalMs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("identity:\n  name: carol\n  kind: user\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if opts.Identity.Name != "carol" {
		t.Errorf("Expected identity name 'carol', got %s", opts.Identity.Name)
	}
}
