/**
 * @description
 * This file provides an in-memory implementation of the `Repository` interface.
 * It mirrors the PostgreSQL implementation's semantics — row-level consistency,
 * the atomic transfer unit, and serial allocation — behind a single mutex, and
 * is used by tests and for running the service without a database.
 *
 * Rollback is modeled by staging every write against copies and only swapping
 * the copies in at commit time, so a failure anywhere inside ExecuteTransfer
 * leaves no partial state behind, matching the database transaction guarantee.
 */

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/krishnaprince7/payment/internal/domain"
)

// MemoryRepository is a thread-safe, in-memory implementation of Repository.
type MemoryRepository struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	byPhone  map[string]uuid.UUID
	ledger   []domain.Transaction
	serials  map[int64]struct{}
	counters map[string]int64

	// commitHook, when set, runs inside ExecuteTransfer after the funds check
	// and serial allocation but before the staged writes are applied. Tests use
	// it to inject mid-commit failures and assert that nothing leaks out.
	commitHook func() error
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[uuid.UUID]*domain.User),
		byPhone:  make(map[string]uuid.UUID),
		serials:  make(map[int64]struct{}),
		counters: make(map[string]int64),
	}
}

// CreateUser registers a new user. Phone numbers are unique.
func (m *MemoryRepository) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byPhone[user.Phone]; taken {
		return ErrPhoneTaken
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	clone := *user
	m.users[user.ID] = &clone
	m.byPhone[user.Phone] = user.ID
	return nil
}

// FindUserByID returns a copy of the stored user, without the credential hash.
func (m *MemoryRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findUserLocked(userID)
}

func (m *MemoryRepository) findUserLocked(userID uuid.UUID) (*domain.User, error) {
	stored, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *stored
	clone.PasswordHash = ""
	return &clone, nil
}

// FindUserByPhone returns a copy of the stored user, without the credential hash.
func (m *MemoryRepository) FindUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byPhone[phone]
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.findUserLocked(id)
}

// FindUserCredentialByID returns the stored bcrypt hash for a user.
func (m *MemoryRepository) FindUserCredentialByID(ctx context.Context, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return stored.PasswordHash, nil
}

// UpdateUserProfile updates the mutable profile fields.
func (m *MemoryRepository) UpdateUserProfile(ctx context.Context, userID uuid.UUID, name string, imagePath *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	stored.Name = name
	if imagePath != nil {
		stored.ImagePath = imagePath
	}
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// NextSerial atomically increments and returns the named counter.
func (m *MemoryRepository) NextSerial(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSerialLocked(name), nil
}

func (m *MemoryRepository) nextSerialLocked(name string) int64 {
	m.counters[name]++
	return m.counters[name]
}

// ExecuteTransfer applies the debit, the credit, and the ledger append as one
// unit under the store mutex. Nothing is written until every check has passed;
// a failure from the commit hook aborts with zero side effects on balances and
// ledger (the consumed serial remains, matching the gaps-allowed contract).
func (m *MemoryRepository) ExecuteTransfer(ctx context.Context, params TransferParams) (*domain.Transaction, error) {
	if params.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if params.SenderID == params.RecipientID {
		return nil, ErrSameAccount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.users[params.SenderID]
	if !ok {
		return nil, ErrUserNotFound
	}
	recipient, ok := m.users[params.RecipientID]
	if !ok {
		return nil, ErrUserNotFound
	}

	if sender.Balance < params.Amount {
		return nil, ErrInsufficientFunds
	}

	serial := m.nextSerialLocked(SerialCounterName)

	record := domain.Transaction{
		ID:                    uuid.New(),
		Serial:                serial,
		SenderID:              sender.ID,
		SenderName:            sender.Name,
		RecipientID:           recipient.ID,
		RecipientName:         recipient.Name,
		Amount:                params.Amount,
		Fee:                   params.Fee,
		Note:                  params.Note,
		SenderBalanceAfter:    sender.Balance - params.Amount,
		RecipientBalanceAfter: recipient.Balance + params.Amount,
		CreatedAt:             time.Now().UTC(),
	}

	if _, exists := m.serials[record.Serial]; exists {
		return nil, ErrDuplicateSerial
	}

	if m.commitHook != nil {
		if err := m.commitHook(); err != nil {
			return nil, err
		}
	}

	// Point of no return: apply all three writes together.
	sender.Balance = record.SenderBalanceAfter
	recipient.Balance = record.RecipientBalanceAfter
	sender.UpdatedAt = record.CreatedAt
	recipient.UpdatedAt = record.CreatedAt
	m.ledger = append(m.ledger, record)
	m.serials[record.Serial] = struct{}{}

	result := record
	return &result, nil
}

// FindTransactionsBySender returns transfers sent by a user, newest first.
func (m *MemoryRepository) FindTransactionsBySender(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.Transaction, error) {
	return m.findByParticipant(senderID, limit, func(tx domain.Transaction, id uuid.UUID) bool {
		return tx.SenderID == id
	})
}

// FindTransactionsByRecipient returns transfers received by a user, newest first.
func (m *MemoryRepository) FindTransactionsByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]domain.Transaction, error) {
	return m.findByParticipant(recipientID, limit, func(tx domain.Transaction, id uuid.UUID) bool {
		return tx.RecipientID == id
	})
}

func (m *MemoryRepository) findByParticipant(userID uuid.UUID, limit int, match func(domain.Transaction, uuid.UUID) bool) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var result []domain.Transaction
	for _, tx := range m.ledger {
		if match(tx, userID) {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Serial > result[j].Serial })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountTransactionsByRecipient counts transfers received by a user.
func (m *MemoryRepository) CountTransactionsByRecipient(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, tx := range m.ledger {
		if tx.RecipientID == recipientID {
			count++
		}
	}
	return count, nil
}
