/**
 * @description
 * This file contains the HTTP handlers for the payment service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * Commit-phase failures deliberately map to a generic 500 with a retry hint:
 * the caller learns nothing about storage internals and is expected to check
 * transaction history before retrying, because the transfer operation is not
 * idempotent.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/krishnaprince7/payment/internal/app"
	"github.com/krishnaprince7/payment/internal/domain"
	"github.com/krishnaprince7/payment/internal/store"
)

// TransactionHandlers holds the application service that handlers will use.
type TransactionHandlers struct {
	service *app.Service
}

// NewTransactionHandlers creates a new instance of TransactionHandlers.
func NewTransactionHandlers(service *app.Service) *TransactionHandlers {
	return &TransactionHandlers{service: service}
}

// transferResponse mirrors the success envelope the web client expects after a
// confirmed transfer.
type transferResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    *domain.TransferResult `json:"data,omitempty"`
}

type historyResponse struct {
	Success  bool        `json:"success"`
	Sent     historySide `json:"sent"`
	Received historySide `json:"received"`
}

type historySide struct {
	Count        int                   `json:"count"`
	Transactions []domain.HistoryEntry `json:"transactions"`
}

// TransferHandler handles the second step of the send-money flow: the caller
// has already entered an amount and now confirms with their password.
func (h *TransactionHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	senderID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.Transfer(r.Context(), senderID, req)
	if err != nil {
		h.writeTransferError(w, senderID, err)
		return
	}

	log.Printf("level=info component=api endpoint=transfer outcome=success sender_id=%s serial=%d amount=%d",
		senderID, result.Serial, result.Amount)
	h.writeJSON(w, http.StatusOK, transferResponse{
		Success: true,
		Message: fmt.Sprintf("Money sent successfully to %s!", result.RecipientName),
		Data:    result,
	})
}

func (h *TransactionHandlers) writeTransferError(w http.ResponseWriter, senderID any, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidRecipient),
		errors.Is(err, app.ErrCredentialRequired),
		errors.Is(err, app.ErrSelfTransfer),
		errors.Is(err, app.ErrNoteTooLong):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrAuthenticationFailed):
		h.writeError(w, http.StatusUnauthorized, "Wrong password. Try again.")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, "Insufficient balance")
	case errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "Sender or recipient not found")
	case errors.Is(err, app.ErrTooManyTransfers):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		// Commit-phase failure: already logged with detail by the service.
		log.Printf("level=warn component=api endpoint=transfer outcome=failed sender_id=%v err=%v", senderID, err)
		h.writeError(w, http.StatusInternalServerError, app.ErrTransferFailed.Error())
	}
}

// HistoryHandler returns the caller's sent and received transfers in one response.
func (h *TransactionHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	history, err := h.service.History(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=history outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, historyResponse{
		Success:  true,
		Sent:     historySide{Count: len(history.Sent), Transactions: history.Sent},
		Received: historySide{Count: len(history.Received), Transactions: history.Received},
	})
}

// ReceivedCountHandler returns how many transfers the caller has received.
func (h *TransactionHandlers) ReceivedCountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	count, err := h.service.ReceivedCount(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=received_count outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to count transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"received": count,
	})
}

func (h *TransactionHandlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *TransactionHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
