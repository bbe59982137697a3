package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arpoise/arclient/internal/config"
	"github.com/google/uuid"
)

// deviceID returns the configured user id, or the id stored in the device
// id file. A missing or empty file gets a fresh UUID.
func deviceID(cfg config.ClientConfig) (string, error) {
	if cfg.UserID != "" {
		return cfg.UserID, nil
	}
	if cfg.DeviceIDFile == "" {
		return uuid.NewString(), nil
	}

	data, err := os.ReadFile(cfg.DeviceIDFile)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := uuid.NewString()
	if dir := filepath.Dir(cfg.DeviceIDFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create device id dir: %w", err)
		}
	}
	if err := os.WriteFile(cfg.DeviceIDFile, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}
