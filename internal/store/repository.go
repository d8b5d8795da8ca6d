/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the payment service. By defining an
 * interface, we decouple the transfer engine from the specific database
 * implementation (PostgreSQL in production, an in-memory store in tests),
 * making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/krishnaprince7/payment/internal/domain"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrPhoneTaken         = errors.New("phone number already registered")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNonPositiveAmount  = errors.New("transfer amount must be positive")
	ErrSameAccount        = errors.New("sender and recipient must be different accounts")
	ErrDuplicateSerial    = errors.New("duplicate transaction serial")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// SerialCounterName is the singleton counter that orders committed transfers.
const SerialCounterName = "transaction"

// DefaultHistoryLimit caps history queries when the caller does not supply one.
const DefaultHistoryLimit = 50

// TransferParams carries everything the store needs to commit a transfer as
// one atomic unit. Validation and credential checks have already happened by
// the time the store sees this.
type TransferParams struct {
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Amount      int64 // in paise, > 0
	Fee         int64 // reserved, currently always 0
	Note        string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User and account methods
	CreateUser(ctx context.Context, user *domain.User) error
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	// FindUserCredentialByID returns only the stored bcrypt hash so the full
	// user row never travels with its credential attached.
	FindUserCredentialByID(ctx context.Context, userID uuid.UUID) (string, error)
	UpdateUserProfile(ctx context.Context, userID uuid.UUID, name string, imagePath *string) error

	// NextSerial atomically increments and returns the named counter, creating
	// it on first use. Two concurrent calls never observe the same value.
	NextSerial(ctx context.Context, name string) (int64, error)

	// ExecuteTransfer commits the debit, the credit, and the ledger insert as
	// one all-or-nothing unit. On any failure every write is rolled back and
	// no partial state is observable. The store enforces its own contract
	// regardless of caller validation: a non-positive amount returns
	// ErrNonPositiveAmount and identical sender/recipient returns
	// ErrSameAccount, with no writes in either case.
	ExecuteTransfer(ctx context.Context, params TransferParams) (*domain.Transaction, error)

	// Ledger queries. Results are newest first; limit <= 0 applies
	// DefaultHistoryLimit.
	FindTransactionsBySender(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.Transaction, error)
	FindTransactionsByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]domain.Transaction, error)
	CountTransactionsByRecipient(ctx context.Context, recipientID uuid.UUID) (int64, error)
}
