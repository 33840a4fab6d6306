package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Web.Port != 8080 || cfg.DatabasePath != "capstation.db" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capstation.yaml")

	cfg := Defaults()
	cfg.Remote.Endpoint = "https://example.com/exec"
	cfg.Vault.PasscodeHash = "$2a$10$example"
	cfg.Selected.MachineID = "m1"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Remote.Endpoint != cfg.Remote.Endpoint {
		t.Errorf("endpoint = %q", loaded.Remote.Endpoint)
	}
	if loaded.Vault.PasscodeHash != cfg.Vault.PasscodeHash {
		t.Errorf("passcode hash = %q", loaded.Vault.PasscodeHash)
	}
	if loaded.Selected.MachineID != "m1" {
		t.Errorf("selected machine = %q", loaded.Selected.MachineID)
	}
}

func TestClientIDFallback(t *testing.T) {
	cfg := Defaults()
	if got := cfg.ClientID(); got != "capstation-1" {
		t.Errorf("ClientID = %q", got)
	}
	cfg.Messaging.MQTT.ClientID = "bus-7"
	if got := cfg.ClientID(); got != "bus-7" {
		t.Errorf("ClientID = %q", got)
	}
}
