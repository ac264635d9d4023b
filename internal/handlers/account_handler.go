package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/contentforge/backend/internal/models"
	"github.com/contentforge/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// AccountHandler exposes balances, ledger history and credit entrypoints for
// purchases and bonuses. Refunds are not reachable here: only the coordinator
// refunds, and only its own charges.
type AccountHandler struct {
	ledger    *services.TokenLedgerService
	validator *services.ValidationHelper
}

func NewAccountHandler(ledger *services.TokenLedgerService) *AccountHandler {
	return &AccountHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

// GetAccount returns the account for a user, creating it on first contact.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	account, err := h.ledger.GetAccount(r.Context(), userID)
	if err != nil {
		log.Printf("[ACCOUNT] Fetch failed for user %s: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// GetLedger lists recent ledger entries for a user's account.
func (h *AccountHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	account, err := h.ledger.GetAccount(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}

	entries, err := h.ledger.ListEntries(r.Context(), account.ID, limit)
	if err != nil {
		log.Printf("[ACCOUNT] Ledger listing failed for user %s: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch ledger", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// Credit applies a purchase or bonus to a user's balance.
func (h *AccountHandler) Credit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req struct {
		Amount int64  `json:"amount" validate:"required,gt=0"`
		Kind   string `json:"kind" validate:"required,oneof=PURCHASE BONUS"`
		Note   string `json:"note" validate:"max=200"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := h.ledger.GetAccount(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}

	newBalance, err := h.ledger.Credit(r.Context(), account, req.Amount, models.EntryKind(req.Kind), req.Note)
	if err != nil {
		log.Printf("[ACCOUNT] Credit failed for user %s: %v", userID, err)
		services.SendErrorResponse(w, "Failed to credit account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"balance": newBalance,
	})
}
