package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultAddress matches the server's default listen port.
const defaultAddress = "http://127.0.0.1:8300"

// CLIConfig is the persisted vaultctl state: where the vault lives and
// the token to talk to it with.
type CLIConfig struct {
	Address   string `yaml:"address"`
	Token     string `yaml:"token"`
	TLSCACert string `yaml:"tls_ca_cert"`
}

var cfg CLIConfig

// configPath returns ~/.docvault/config.yaml.
func configPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".docvault", "config.yaml")
}

// loadConfig reads the saved config, falling back to defaults when none
// has been written yet.
func loadConfig() {
	cfg = CLIConfig{Address: defaultAddress}
	data, err := os.ReadFile(configPath())
	if err != nil {
		return
	}
	yaml.Unmarshal(data, &cfg) //nolint:errcheck
}

// saveConfig writes the config with owner-only permissions; the token is
// a bearer credential.
func saveConfig() error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
