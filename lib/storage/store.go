// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zeebo/blake3"

	"github.com/nestwatch-project/nestwatch/lib/schema"
)

// ErrNotFound reports a missing file or device directory. Surfaced by
// the HTTP layer as a 404; never fatal.
var ErrNotFound = errors.New("storage: not found")

// Store is the filesystem-backed device store. Safe for concurrent
// use: appends to the same (device, kind) log are serialized by a
// named lock, and writes to different devices proceed independently.
type Store struct {
	root   string
	logger *slog.Logger

	// lockMu guards the lock table itself; each value serializes the
	// read-modify-write cycle for one (device, kind) log file. Entries
	// are never removed — the table is bounded by devices × telemetry
	// kinds.
	lockMu   sync.Mutex
	logLocks map[string]*sync.Mutex

	// dirMu guards createdDirs, which exists so lazy directory
	// creation is logged exactly once per device.
	dirMu       sync.Mutex
	createdDirs map[string]bool

	telemetryRecords atomic.Uint64
	mediaArtifacts   atomic.Uint64
}

// Stats is a snapshot of the store's write counters since startup.
type Stats struct {
	TelemetryRecords uint64
	MediaArtifacts   uint64
}

// Open creates a store rooted at the given directory, creating the
// root if needed. Failure to create the root is a startup error — the
// process cannot run without durable storage.
func Open(root string, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating root %s: %w", root, err)
	}
	return &Store{
		root:        root,
		logger:      logger,
		logLocks:    make(map[string]*sync.Mutex),
		createdDirs: make(map[string]bool),
	}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Stats returns the write counters since startup.
func (s *Store) Stats() Stats {
	return Stats{
		TelemetryRecords: s.telemetryRecords.Load(),
		MediaArtifacts:   s.mediaArtifacts.Load(),
	}
}

// validName reports whether name is usable as a single path element
// under the store root. Rejects empty names, path separators, and the
// dot entries — anything that could escape a device directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}

// devicePath validates the device ID and returns its directory path.
func (s *Store) devicePath(deviceID string) (string, error) {
	if !validName(deviceID) {
		return "", fmt.Errorf("storage: invalid device id %q: %w", deviceID, ErrNotFound)
	}
	return filepath.Join(s.root, deviceID), nil
}

// ensureDeviceDir lazily creates the device directory. MkdirAll is
// idempotent; the createdDirs table only keeps the log line to once
// per device.
func (s *Store) ensureDeviceDir(deviceID string) (string, error) {
	dir, err := s.devicePath(deviceID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: creating device directory %s: %w", dir, err)
	}

	s.dirMu.Lock()
	if !s.createdDirs[deviceID] {
		s.createdDirs[deviceID] = true
		s.logger.Info("device storage directory ready", "device", deviceID, "dir", dir)
	}
	s.dirMu.Unlock()

	return dir, nil
}

// logLock returns the mutex serializing appends for one (device,
// kind) log file.
func (s *Store) logLock(deviceID, dataType string) *sync.Mutex {
	key := deviceID + "/" + dataType
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.logLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.logLocks[key] = lock
	}
	return lock
}

// AppendTelemetry appends one record to the device's log for its data
// kind. The whole file is read, extended, and rewritten under the
// per-(device, kind) lock. A missing or unreadable log starts over as
// an empty array.
func (s *Store) AppendTelemetry(record schema.TelemetryRecord) error {
	dir, err := s.ensureDeviceDir(record.DeviceID)
	if err != nil {
		return err
	}

	lock := s.logLock(record.DeviceID, record.DataType)
	lock.Lock()
	defer lock.Unlock()

	logPath := filepath.Join(dir, record.DataType+".json")

	var records []schema.TelemetryRecord
	data, err := os.ReadFile(logPath)
	if err == nil {
		if err := json.Unmarshal(data, &records); err != nil {
			s.logger.Warn("telemetry log unreadable, starting fresh",
				"path", logPath,
				"error", err,
			)
			records = nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("telemetry log unreadable, starting fresh",
			"path", logPath,
			"error", err,
		)
	}

	records = append(records, record)

	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encoding telemetry log %s: %w", logPath, err)
	}

	// Write-then-rename so a crash mid-write never leaves a truncated
	// log behind.
	tmpPath := logPath + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return fmt.Errorf("storage: writing telemetry log %s: %w", logPath, err)
	}
	if err := os.Rename(tmpPath, logPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: replacing telemetry log %s: %w", logPath, err)
	}

	s.telemetryRecords.Add(1)
	s.logger.Info("telemetry appended",
		"device", record.DeviceID,
		"kind", record.DataType,
		"records", len(records),
	)
	return nil
}

// WriteMedia stores a decoded media artifact under its deterministic
// filename and returns the filename and the blake3 content checksum.
// Artifacts are immutable: an artifact with the same type and
// timestamp overwrites byte-identically or not at all in practice,
// since filenames embed the capture timestamp.
func (s *Store) WriteMedia(artifact schema.MediaArtifact) (filename, checksum string, err error) {
	if !artifact.Type.IsMedia() {
		return "", "", fmt.Errorf("storage: %s is not a media type", artifact.Type)
	}

	dir, err := s.ensureDeviceDir(artifact.DeviceID)
	if err != nil {
		return "", "", err
	}

	filename = artifact.Filename()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, artifact.Bytes, 0o644); err != nil {
		return "", "", fmt.Errorf("storage: writing media %s: %w", path, err)
	}

	sum := blake3.Sum256(artifact.Bytes)
	checksum = hex.EncodeToString(sum[:])

	s.mediaArtifacts.Add(1)
	s.logger.Info("media stored",
		"device", artifact.DeviceID,
		"file", filename,
		"bytes", len(artifact.Bytes),
		"blake3", checksum,
	)
	return filename, checksum, nil
}

// entryType classifies a stored file by suffix for the query-time
// projection.
func entryType(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return "log"
	case strings.HasSuffix(name, ".opus"):
		return "audio"
	case strings.HasSuffix(name, ".mp4"):
		return "video"
	default:
		return "image"
	}
}

// ListDevice returns the current contents of a device's directory as
// storage entries, ordered by filename. The listing is computed fresh
// on every call. A device directory that does not exist yet lists as
// empty — directories are created lazily, so absence just means no
// data has arrived.
func (s *Store) ListDevice(deviceID string) ([]schema.StorageEntry, error) {
	dir, err := s.devicePath(deviceID)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []schema.StorageEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: listing %s: %w", dir, err)
	}

	entries := make([]schema.StorageEntry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		name := dirEntry.Name()
		if strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			// Deleted between ReadDir and Info — the listing
			// reflects current state, so just skip it.
			continue
		}
		entries = append(entries, schema.StorageEntry{
			Name: name,
			Path: "/storage/" + name,
			Size: info.Size(),
			Type: entryType(name),
		})
	}
	return entries, nil
}

// OpenArtifact opens a stored file for download. The filename must be
// a plain name inside the device directory — path-escape sequences
// resolve to ErrNotFound, never to a file outside the device
// directory.
func (s *Store) OpenArtifact(deviceID, filename string) (*os.File, fs.FileInfo, error) {
	dir, err := s.devicePath(deviceID)
	if err != nil {
		return nil, nil, err
	}
	if !validName(filename) {
		return nil, nil, fmt.Errorf("storage: invalid filename %q: %w", filename, ErrNotFound)
	}

	path := filepath.Join(dir, filename)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("storage: %s/%s: %w", deviceID, filename, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("storage: opening %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return file, info, nil
}
