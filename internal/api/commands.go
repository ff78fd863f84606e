package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/vault-core/internal/protocol"
)

// dispatchRequest is the body for POST /hubs/{id}/commands.
type dispatchRequest struct {
	// CommandName is the fully qualified name, e.g. "config.update".
	CommandName string `json:"command_name"`

	// Fields are merged into the command payload alongside command_id.
	Fields map[string]any `json:"fields"`

	// TimeoutSeconds overrides the configured ack timeout when positive.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`

	// MaxRetries overrides the configured retry count when non-negative.
	MaxRetries *int `json:"max_retries,omitempty"`
}

// handleDispatchCommand publishes a command to a hub and tracks it for acks.
func (s *Server) handleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	hubID := chi.URLParam(r, "id")

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CommandName == "" {
		writeBadRequest(w, "command_name is required")
		return
	}

	timeout := s.commands.DefaultTimeoutDuration()
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	retries := s.commands.MaxRetries
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		retries = *req.MaxRetries
	}

	commandID, err := s.dispatcher.Dispatch(
		hubID, s.coordinator.Version(), req.CommandName, req.Fields, timeout, retries,
	)
	if err != nil {
		if errors.Is(err, protocol.ErrAddressing) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to dispatch command")
		return
	}

	cmd, _ := s.dispatcher.Get(hubID, commandID)
	writeJSON(w, http.StatusAccepted, cmd)
}

// handleListCommands returns tracked commands for a hub, newest first.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	hubID := chi.URLParam(r, "id")

	commands := s.dispatcher.List(hubID)
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].IssuedAt.After(commands[j].IssuedAt)
	})
	writeJSON(w, http.StatusOK, map[string]any{"commands": commands, "count": len(commands)})
}

// handleGetCommand returns a single tracked command by ID.
//
// Terminal commands are purged after the ack grace window, so a 404 here
// can mean either "never dispatched" or "completed long ago".
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	hubID := chi.URLParam(r, "id")
	commandID := chi.URLParam(r, "commandID")

	cmd, ok := s.dispatcher.Get(hubID, commandID)
	if !ok {
		writeNotFound(w, "command not found")
		return
	}

	writeJSON(w, http.StatusOK, cmd)
}

// broadcastRequest is the body for POST /broadcast.
type broadcastRequest struct {
	// Command is the broadcast command token, e.g. "ping".
	Command string `json:"command"`

	// Fields are merged into the command payload alongside command_id.
	Fields map[string]any `json:"fields"`
}

// handleBroadcast publishes a fire-and-forget command to every hub.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	commandID, err := s.dispatcher.DispatchBroadcast(s.coordinator.Version(), req.Command, req.Fields)
	if err != nil {
		if errors.Is(err, protocol.ErrAddressing) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to broadcast command")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"command_id": commandID,
		"command":    req.Command,
	})
}
