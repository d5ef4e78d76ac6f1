// Package handlers is the HTTP ingress above the pipeline. Per the transport
// contract, a structurally invalid submission is refused before entering the
// pipeline; every command that enters always resolves as accepted, and the
// outcome (success or rejection) is surfaced only as an asynchronous event.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/paystream-au/railcore/services/orchestrator-service/internal/command"
)

type CommandHandler struct {
	pipeline *command.Handler
	logger   *slog.Logger
}

func NewCommandHandler(pipeline *command.Handler, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{pipeline: pipeline, logger: logger}
}

type submitResponse struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
}

// Submit accepts POST /api/v1/commands.
func (h *CommandHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd command.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	cmd.ID = strings.TrimSpace(cmd.ID)
	cmd.Type = strings.TrimSpace(cmd.Type)
	if cmd.ID == "" || cmd.Type == "" {
		http.Error(w, "command_id and command_type are required", http.StatusBadRequest)
		return
	}

	// The pipeline is awaited here: when Handle returns, the resulting fact
	// is already with the publisher.
	result, err := h.pipeline.Handle(r.Context(), &cmd)
	if err != nil {
		if errors.Is(err, command.ErrInconclusive) {
			w.Header().Set("Retry-After", "30")
			http.Error(w, "command outcome inconclusive, retry later", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("command handling failed", "command_id", cmd.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("command resolved",
		"command_id", cmd.ID,
		"command_type", cmd.Type,
		"success", result.Success,
	)

	// Accepted regardless of the business outcome; callers learn the outcome
	// from the emitted event, never from an error status.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(submitResponse{CommandID: cmd.ID, Status: "accepted"})
}
