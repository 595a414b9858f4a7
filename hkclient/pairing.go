package hkclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hkontrol/hkontroller"
)

const pairingArtifactVersion = 1

// pairingArtifact is the portable form of a controller pairing: every entry
// of the controller's filesystem store, bundled into one JSON document that
// can be moved between hosts and referenced from configuration.
type pairingArtifact struct {
	Version  int               `json:"version"`
	DeviceID string            `json:"device_id"`
	Entries  map[string]string `json:"entries"`
}

func bundleStore(dir string, deviceID string) ([]byte, error) {
	artifact := pairingArtifact{
		Version:  pairingArtifactVersion,
		DeviceID: deviceID,
		Entries:  map[string]string{},
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read store entry %s: %w", f.Name(), err)
		}

		artifact.Entries[f.Name()] = base64.StdEncoding.EncodeToString(data)
	}

	return json.MarshalIndent(artifact, "", "  ")
}

func unpackArtifact(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty pairing artifact")
	}

	var artifact pairingArtifact

	if err := json.Unmarshal(data, &artifact); err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}

	if artifact.Version != pairingArtifactVersion {
		return "", fmt.Errorf("unsupported artifact version %d", artifact.Version)
	}

	dir, err := os.MkdirTemp("", "hkvac-pairing-")
	if err != nil {
		return "", fmt.Errorf("store directory: %w", err)
	}

	for name, encoded := range artifact.Entries {
		if name != filepath.Base(name) || strings.Contains(name, "..") {
			return "", fmt.Errorf("invalid artifact entry name %q", name)
		}

		entry, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", fmt.Errorf("decode artifact entry %s: %w", name, err)
		}

		if err := os.WriteFile(filepath.Join(dir, name), entry, 0600); err != nil {
			return "", fmt.Errorf("write store entry %s: %w", name, err)
		}
	}

	return dir, nil
}

// Pair performs the one time setup against the secondary bridge and returns
// a pairing artifact for later sessions. The bridge must be in pairing mode
// and not already paired with another controller.
func Pair(ctx context.Context, deviceID string, pin string) ([]byte, error) {
	storeDir, err := os.MkdirTemp("", "hkvac-pairing-")
	if err != nil {
		return nil, fmt.Errorf("store directory: %w", err)
	}
	defer os.RemoveAll(storeDir)

	controller, err := hkontroller.NewController(hkontroller.NewFsStore(storeDir), controllerName)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	if err := controller.LoadPairings(); err != nil {
		return nil, fmt.Errorf("load pairings: %w", err)
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, DefaultDiscoveryTimeout)
	defer cancel()

	device, err := waitForDevice(discoveryCtx, controller, deviceID)
	if err != nil {
		return nil, err
	}

	if err := device.PairSetup(pin); err != nil {
		return nil, fmt.Errorf("pair setup: %w", err)
	}

	if err := device.PairVerify(); err != nil {
		return nil, fmt.Errorf("pair verify: %w", err)
	}

	return bundleStore(storeDir, deviceID)
}
