/**
 * @description
 * This file defines the ledger record and the request/response DTOs for the
 * transfer API. A Transaction is the immutable audit record of one completed
 * transfer: it carries a strictly increasing serial, display-name snapshots of
 * both parties, and the post-commit balance of each side.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (paise), which
 *   avoids floating-point inaccuracies with financial data.
 * - Sender and recipient names are intentionally denormalized onto the record
 *   so that history stays readable after a user renames their profile.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxNoteLength bounds the free-text note attached to a transfer.
const MaxNoteLength = 200

// Transaction is the immutable ledger record for one committed transfer.
// It is created exactly once, inside the transfer's atomic commit, and is
// never updated or deleted afterwards.
type Transaction struct {
	ID                    uuid.UUID `json:"id"`
	Serial                int64     `json:"serial"`
	SenderID              uuid.UUID `json:"sender_id"`
	SenderName            string    `json:"sender_name"`
	RecipientID           uuid.UUID `json:"recipient_id"`
	RecipientName         string    `json:"recipient_name"`
	Amount                int64     `json:"amount"` // in paise
	Fee                   int64     `json:"fee"`    // reserved, currently always 0
	Note                  string    `json:"note,omitempty"`
	SenderBalanceAfter    int64     `json:"sender_balance_after"`
	RecipientBalanceAfter int64     `json:"recipient_balance_after"`
	CreatedAt             time.Time `json:"created_at"`
}

// TransferRequest is the DTO for incoming transfer API requests. The password
// is the sender's credential confirming the second step of the send-money flow.
type TransferRequest struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Amount      int64     `json:"amount"` // in paise
	Password    string    `json:"password"`
	Note        string    `json:"note,omitempty"`
}

// TransferResult is returned to the caller after a successful transfer.
type TransferResult struct {
	TransactionID    uuid.UUID `json:"transaction_id"`
	Serial           int64     `json:"serial"`
	Amount           int64     `json:"amount"`
	NewSenderBalance int64     `json:"new_balance"`
	RecipientName    string    `json:"recipient"`
}

// HistoryEntry is one row of a user's transaction history. BalanceAfter is the
// caller's own balance snapshot for that record: the sender's snapshot on sent
// rows, the recipient's snapshot on received rows.
type HistoryEntry struct {
	Serial           int64     `json:"serial"`
	TransactionID    uuid.UUID `json:"id"`
	CounterpartyName string    `json:"counterparty"`
	Amount           int64     `json:"amount"`
	Note             string    `json:"note,omitempty"`
	Date             time.Time `json:"date"`
	BalanceAfter     int64     `json:"balance_after"`
}

// History groups a user's sent and received transfers, newest first.
type History struct {
	Sent     []HistoryEntry `json:"sent"`
	Received []HistoryEntry `json:"received"`
}
