package hkvac

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration, loaded from YAML. Every field is a
// named, typed option; absence of a bridge connection field is a non fatal
// configuration error handled at connect time.
type Config struct {
	Name    string `yaml:"name"`
	Pin     string `yaml:"pin"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	Bridge  BridgeSettings  `yaml:"bridge"`
	Match   MatchSettings   `yaml:"match"`
	Logging LoggingSettings `yaml:"logging"`
}

// BridgeSettings locates the secondary bridge. PairingFile points at the
// JSON artifact the pairing utility produced; its contents are read at load
// time and handed to the remote client untouched.
type BridgeSettings struct {
	ID          string `yaml:"id"`
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"`
	PairingFile string `yaml:"pairing_file"`

	pairingData []byte
}

func (s BridgeSettings) bridgeConfig() BridgeConfig {
	return BridgeConfig{
		ID:          s.ID,
		Address:     s.Address,
		Port:        s.Port,
		PairingData: s.pairingData,
	}
}

// MatchSettings carries the optional accessory filter expression, evaluated
// against each candidate accessory before its signature coverage is tested.
type MatchSettings struct {
	Filter string `yaml:"filter"`
}

type LoggingSettings struct {
	Level string `yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Name:    "hkvac",
		Pin:     "00102003",
		DataDir: "./data",
	}
}

// LoadConfig reads the YAML configuration and, when configured, the pairing
// artifact it references. A missing pairing artifact is not an error here;
// the session manager reports it as a configuration problem and the bridge
// starts without remote connectivity.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("configuration read: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("configuration parse: %w", err)
	}

	if cfg.Bridge.PairingFile != "" {
		if pairingData, err := os.ReadFile(cfg.Bridge.PairingFile); err == nil {
			cfg.Bridge.pairingData = pairingData
		}
	}

	return cfg, nil
}

// HubStorePath is where the hub side accessory server keeps its pairing
// state.
func (c Config) HubStorePath() string {
	return filepath.Join(c.DataDir, "hub")
}

// RegistryPath is where the persisted local accessory registry lives.
func (c Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "registry.json")
}
