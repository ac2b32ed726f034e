package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"bankconn/internal/domain/banksync"
	"bankconn/internal/domain/connection"
	"bankconn/internal/shared/middleware"
)

// ManualSyncer runs a user-triggered sync. Implemented by *banksync.Orchestrator.
type ManualSyncer interface {
	ManualSync(ctx context.Context, callerID int64, itemID string) (*banksync.Outcome, error)
}

// SyncEnqueuer schedules a background sync. Implemented by *scheduler.Dispatcher.
type SyncEnqueuer interface {
	EnqueueItemSync(userID int64, itemID, source string) error
}

// BankConnectionHandler serves the bank connection endpoints.
type BankConnectionHandler struct {
	connections *connection.Service
	syncer      ManualSyncer
	enqueuer    SyncEnqueuer
}

// NewBankConnectionHandler creates the handler. enqueuer may be nil, in which
// case no initial sync is scheduled after a link.
func NewBankConnectionHandler(connections *connection.Service, syncer ManualSyncer, enqueuer SyncEnqueuer) *BankConnectionHandler {
	return &BankConnectionHandler{
		connections: connections,
		syncer:      syncer,
		enqueuer:    enqueuer,
	}
}

// CreateConnectionRequest is sent by the client after the aggregator's link
// widget reports success.
type CreateConnectionRequest struct {
	ItemID   string `json:"itemId"`
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

// ActionRequiredResponse is returned with 428 when the user must act at the
// aggregator before a sync can proceed.
type ActionRequiredResponse struct {
	Error      string                `json:"error"`
	Code       string                `json:"code"`
	ItemStatus connection.ItemStatus `json:"itemStatus"`
	Outcome    *banksync.Outcome     `json:"outcome"`
}

// SyncResponse is returned for completed syncs.
type SyncResponse struct {
	Status  string            `json:"status"` // "success" or "partial"
	Outcome *banksync.Outcome `json:"outcome"`
}

// HandleCreate links an item to the caller.
func (h *BankConnectionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	conn, err := h.connections.Link(r.Context(), connection.LinkParams{
		UserID:   userID,
		ItemID:   req.ItemID,
		Status:   req.Status,
		Provider: req.Provider,
	})
	if err != nil {
		switch {
		case errors.Is(err, connection.ErrItemOwnedByAnotherUser):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, connection.ErrInvalidItemID),
			errors.Is(err, connection.ErrInvalidStatus),
			errors.Is(err, connection.ErrUnsupportedProvider):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, connection.ErrInvalidUserID):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		default:
			log.Printf("User %d: Failed to link item %s: %v", userID, req.ItemID, err)
			http.Error(w, "Failed to create bank connection", http.StatusInternalServerError)
		}
		return
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueItemSync(userID, conn.ItemID, banksync.SourceLink); err != nil {
			log.Printf("User %d: Initial sync of item %s not scheduled: %v", userID, conn.ItemID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conn)
}

// HandleList returns the caller's connections.
func (h *BankConnectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conns, err := h.connections.List(r.Context(), userID)
	if err != nil {
		log.Printf("User %d: Failed to list bank connections: %v", userID, err)
		http.Error(w, "Failed to list bank connections", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conns)
}

// HandleDelete unlinks ?itemId= from the caller.
func (h *BankConnectionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	itemID := strings.TrimSpace(r.URL.Query().Get("itemId"))
	if itemID == "" {
		http.Error(w, "itemId is required", http.StatusBadRequest)
		return
	}

	if err := h.connections.Unlink(r.Context(), itemID, userID); err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			http.Error(w, "Bank connection not found", http.StatusNotFound)
			return
		}
		log.Printf("User %d: Failed to unlink item %s: %v", userID, itemID, err)
		http.Error(w, "Failed to delete bank connection", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSync refreshes ?itemId= and reconciles it into the ledger. The
// request blocks for at most the configured poll budget.
func (h *BankConnectionHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	itemID := strings.TrimSpace(r.URL.Query().Get("itemId"))
	if itemID == "" {
		http.Error(w, "itemId is required", http.StatusBadRequest)
		return
	}

	out, err := h.syncer.ManualSync(r.Context(), userID, itemID)
	if err != nil {
		switch {
		case errors.Is(err, banksync.ErrUnauthorized):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		case errors.Is(err, banksync.ErrMissingItemID):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, banksync.ErrConnectionNotFound):
			http.Error(w, "Bank connection not found", http.StatusNotFound)
		default:
			log.Printf("User %d: Manual sync of item %s failed: %v", userID, itemID, err)
			http.Error(w, "Failed to sync bank connection", http.StatusInternalServerError)
		}
		return
	}

	switch out.Kind {
	case banksync.OutcomeActionRequired:
		writeJSON(w, http.StatusPreconditionRequired, ActionRequiredResponse{
			Error:      "Action required at the bank connection",
			Code:       out.Code,
			ItemStatus: out.ItemStatus,
			Outcome:    out,
		})
	case banksync.OutcomeSuccess:
		writeJSON(w, http.StatusOK, SyncResponse{Status: "success", Outcome: out})
	case banksync.OutcomePartialFailure:
		writeJSON(w, http.StatusOK, SyncResponse{Status: "partial", Outcome: out})
	default:
		writeJSON(w, http.StatusInternalServerError, SyncResponse{Status: "failed", Outcome: out})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
