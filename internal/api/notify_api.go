package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-chat-fanout/internal/fanout"
	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// NotifyAPI exposes the user-initiated notification entry points. These are
// explicit requests by an authenticated caller, so unlike the trigger-driven
// fan-out they target exactly the named recipient and skip presence
// suppression.
type NotifyAPI struct {
	Coordinator *fanout.Coordinator
	Logger      *slog.Logger
}

func NewNotifyAPI(coordinator *fanout.Coordinator, logger *slog.Logger) *NotifyAPI {
	return &NotifyAPI{
		Coordinator: coordinator,
		Logger:      logger,
	}
}

type sendRequest struct {
	RecipientID string `json:"recipient_id"`
	Title       string `json:"title,omitempty"`
	Message     string `json:"message,omitempty"`
	ChatID      string `json:"chat_id,omitempty"`
}

type sendResponse struct {
	Sent int `json:"sent"`
}

// Send delivers a caller-supplied notification to one recipient.
func (api *NotifyAPI) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	caller, err := urn.Parse(callerID)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid user identity")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	recipient, err := urn.Parse(req.RecipientID)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid recipient_id")
		return
	}

	sent, err := api.Coordinator.SendDirect(ctx, caller, fanout.DirectRequest{
		Recipient: recipient,
		Title:     req.Title,
		Body:      req.Message,
		ChatID:    req.ChatID,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "recipient not found")
			return
		}
		api.Logger.Error("direct send failed", "caller", caller.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	writeJSON(w, sendResponse{Sent: sent})
}

// SendTest delivers a test notification to the caller's own devices.
func (api *NotifyAPI) SendTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	caller, err := urn.Parse(callerID)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid user identity")
		return
	}

	sent, err := api.Coordinator.SendTest(ctx, caller)
	if err != nil {
		api.Logger.Error("test send failed", "caller", caller.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	writeJSON(w, sendResponse{Sent: sent})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
