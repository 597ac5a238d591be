// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nestwatch-project/nestwatch/lib/storage"
)

// CommandDispatcher broadcasts an operator command to connected child
// devices, reporting whether anyone received it.
type CommandDispatcher interface {
	DispatchCommand(command string) bool
}

// Config configures the HTTP API handler.
type Config struct {
	// Store answers storage queries and downloads. Required.
	Store *storage.Store

	// Dispatcher handles POST /api/command. Required.
	Dispatcher CommandDispatcher

	// WS serves WebSocket upgrade requests. Required.
	WS http.Handler

	// DefaultDevice is the device whose storage is queried when a
	// request names none. Required — the dashboard and console mostly
	// run single-device deployments and rarely pass ?device=.
	DefaultDevice string

	// DashboardDir is the dashboard's static build directory. Empty
	// disables dashboard serving; non-API paths then 404.
	DashboardDir string

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

type handler struct {
	store         *storage.Store
	dispatcher    CommandDispatcher
	ws            http.Handler
	defaultDevice string
	dashboardDir  string
	logger        *slog.Logger
}

// NewHandler builds the route table.
func NewHandler(cfg Config) http.Handler {
	if cfg.Store == nil {
		panic("httpapi: Store is required")
	}
	if cfg.Dispatcher == nil {
		panic("httpapi: Dispatcher is required")
	}
	if cfg.WS == nil {
		panic("httpapi: WS is required")
	}
	if cfg.DefaultDevice == "" {
		panic("httpapi: DefaultDevice is required")
	}
	if cfg.Logger == nil {
		panic("httpapi: Logger is required")
	}

	h := &handler{
		store:         cfg.Store,
		dispatcher:    cfg.Dispatcher,
		ws:            cfg.WS,
		defaultDevice: cfg.DefaultDevice,
		dashboardDir:  cfg.DashboardDir,
		logger:        cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/storage", h.listStorage)
	mux.HandleFunc("GET /storage/{filename}", h.download)
	mux.HandleFunc("POST /api/command", h.command)
	mux.HandleFunc("/", h.root)
	return mux
}

// writeJSON encodes a response body. Encode failures after the header
// is out can only be logged.
func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("response encode failed", "error", err)
	}
}

// device resolves the device a storage request addresses: explicit
// ?device= wins, otherwise the configured default.
func (h *handler) device(r *http.Request) string {
	if device := r.URL.Query().Get("device"); device != "" {
		return device
	}
	return h.defaultDevice
}

// listStorage serves GET /api/storage: the current contents of the
// device's storage directory, listed fresh on every call.
func (h *handler) listStorage(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListDevice(h.device(r))
	if err != nil {
		h.logger.Error("storage listing failed", "device", h.device(r), "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list storage"})
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// download serves GET /storage/{filename} as an attachment. Unknown
// files and path-escape attempts both answer 404.
func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	file, info, err := h.store.OpenArtifact(h.device(r), filename)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}
	if err != nil {
		h.logger.Error("artifact open failed", "file", filename, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read file"})
		return
	}
	defer file.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeContent(w, r, filename, info.ModTime(), file)
}

// command serves POST /api/command. A request without a command is the
// caller's error; a command that reaches no child is reported in the
// body but is not an HTTP failure.
func (h *handler) command(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Command required"})
		return
	}

	if h.dispatcher.DispatchCommand(req.Command) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "Command sent"})
	} else {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "No child clients connected"})
	}
}

// isUpgrade reports whether the request asks for a WebSocket upgrade.
func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// root handles everything the explicit routes do not: WebSocket
// upgrades on any path, then the dashboard. Unknown dashboard paths
// fall back to index.html so client-side routing works after a page
// reload.
func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	if isUpgrade(r) {
		h.ws.ServeHTTP(w, r)
		return
	}

	if h.dashboardDir == "" {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.dashboardDir, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		http.ServeFile(w, r, path)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.dashboardDir, "index.html"))
}
