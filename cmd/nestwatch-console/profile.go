// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// Profile is the console's persistent configuration. The profile file
// is JSONC so operators can annotate it; comments are stripped before
// parsing.
type Profile struct {
	// Server is the relay base URL, e.g. "http://relay.example:8080".
	Server string `json:"server"`

	// Device is the device ID storage operations address. Empty lets
	// the relay fall back to its configured default device.
	Device string `json:"device"`

	// AdminSocket is the relay's local admin socket path, for the
	// status subcommand. Only works on the relay host itself.
	AdminSocket string `json:"adminSocket"`
}

// defaultProfilePath returns ~/.config/nestwatch/console.jsonc.
func defaultProfilePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	return filepath.Join(configDir, "nestwatch", "console.jsonc"), nil
}

// loadProfile reads the profile at path, or the default location when
// path is empty. A missing default profile is not an error — flags can
// supply everything — but a missing explicit path is.
func loadProfile(path string) (*Profile, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = defaultProfilePath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	var profile Profile
	if err := json.Unmarshal(jsonc.ToJSON(data), &profile); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return &profile, nil
}
