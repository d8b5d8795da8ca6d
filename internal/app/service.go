/**
 * @description
 * This file contains the core business logic for the payment service. The
 * `Service` struct orchestrates the money-transfer flow: input validation,
 * account resolution, credential verification, the balance pre-check, and the
 * atomic commit delegated to the repository. It also serves transaction
 * history and publishes a completed-transfer event for the notification
 * pipeline.
 *
 * Key properties:
 * - Phases run strictly in order and short-circuit: nothing before the atomic
 *   commit touches storage state, so every validation failure has zero side
 *   effects.
 * - Commit-phase failures are logged server-side and surfaced to the caller as
 *   the generic ErrTransferFailed so storage internals never leak.
 * - The operation is not idempotent: two identical calls produce two ledger
 *   records. Callers must consult history before retrying.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For publishing transfer events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/krishnaprince7/payment/internal/domain"
	"github.com/krishnaprince7/payment/internal/store"
	"github.com/krishnaprince7/payment/pkg/rabbitmq"
)

// DefaultStartingBalancePaise is credited to new accounts unless a different
// starting balance is configured (1000 rupees, the registration promo).
const DefaultStartingBalancePaise = 100000

var (
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrInvalidRecipient     = errors.New("recipient is required")
	ErrNameRequired         = errors.New("name is required")
	ErrPhoneRequired        = errors.New("phone number is required")
	ErrCredentialRequired   = errors.New("password is required")
	ErrSelfTransfer         = errors.New("cannot send money to yourself")
	ErrNoteTooLong          = errors.New("note exceeds maximum length")
	ErrAuthenticationFailed = errors.New("wrong password")
	ErrTooManyTransfers     = errors.New("too many transfers, slow down")
	// ErrTransferFailed is the opaque commit-phase failure returned to callers.
	// The underlying cause is logged, never surfaced.
	ErrTransferFailed = errors.New("failed to complete transfer, please try again")
)

// RateLimiter bounds how often a single sender may initiate transfers.
// Implementations must fail open: an unavailable backend allows the request.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Service provides the core business logic for transfers and history.
type Service struct {
	repo            store.Repository
	eventProducer   rabbitmq.Publisher
	rateLimiter     RateLimiter
	historyLimit    int
	startingBalance int64
}

// NewService creates a new payment service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:            repo,
		eventProducer:   producer,
		historyLimit:    store.DefaultHistoryLimit,
		startingBalance: DefaultStartingBalancePaise,
	}
}

// SetRateLimiter attaches an optional per-sender transfer rate limiter.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.rateLimiter = limiter
}

// SetHistoryLimit overrides how many records each side of a history query
// returns. Non-positive values are ignored.
func (s *Service) SetHistoryLimit(limit int) {
	if limit > 0 {
		s.historyLimit = limit
	}
}

// SetStartingBalance overrides the balance credited to newly registered
// accounts. Negative values are ignored.
func (s *Service) SetStartingBalance(paise int64) {
	if paise >= 0 {
		s.startingBalance = paise
	}
}

// RegisterUser creates a new account seeded with the starting balance and the
// bcrypt hash of the supplied password.
func (s *Service) RegisterUser(ctx context.Context, name, phone, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" {
		return nil, ErrNameRequired
	}
	if phone == "" {
		return nil, ErrPhoneRequired
	}
	if strings.TrimSpace(password) == "" {
		return nil, ErrCredentialRequired
	}

	hash, err := HashCredential(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash credential: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Name:         name,
		Phone:        phone,
		Balance:      s.startingBalance,
		PasswordHash: hash,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("level=info component=app msg=\"user registered\" user_id=%s starting_balance=%d", user.ID, user.Balance)
	return user, nil
}

// Transfer executes one peer-to-peer transfer. Phases 1-4 are pure validation
// with no side effects; only the final repository call mutates state, as a
// single atomic unit.
func (s *Service) Transfer(ctx context.Context, senderID uuid.UUID, req domain.TransferRequest) (*domain.TransferResult, error) {
	// 1. Input validation. Cheapest checks first, before touching storage.
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.RecipientID == uuid.Nil {
		return nil, ErrInvalidRecipient
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, ErrCredentialRequired
	}
	if req.RecipientID == senderID {
		return nil, ErrSelfTransfer
	}
	note := strings.TrimSpace(req.Note)
	if len(note) > domain.MaxNoteLength {
		return nil, ErrNoteTooLong
	}

	// 2. Account resolution. Both parties must exist.
	sender, err := s.repo.FindUserByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.repo.FindUserByID(ctx, req.RecipientID)
	if err != nil {
		return nil, err
	}

	// 3. Credential verification, then the optional per-sender rate limit.
	if err := s.VerifyCredential(ctx, sender.ID, req.Password); err != nil {
		return nil, err
	}
	if s.rateLimiter != nil {
		allowed, limiterErr := s.rateLimiter.Allow(ctx, sender.ID.String())
		if limiterErr != nil {
			log.Printf("level=warn component=app msg=\"rate limiter unavailable; allowing transfer\" sender_id=%s err=%v", sender.ID, limiterErr)
		} else if !allowed {
			return nil, ErrTooManyTransfers
		}
	}

	// 4. Balance pre-check. Fail fast here; the authoritative check runs again
	// under the row lock inside the atomic commit.
	if sender.Balance < req.Amount {
		return nil, store.ErrInsufficientFunds
	}

	// 5-6. Serial assignment and atomic commit. The repository allocates the
	// serial inside the same transaction as the debit, credit, and ledger
	// insert, so a failure rolls back everything (an already-consumed serial
	// may leave a gap, which is acceptable; reuse is not).
	record, err := s.repo.ExecuteTransfer(ctx, store.TransferParams{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Amount:      req.Amount,
		Fee:         0,
		Note:        note,
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) || errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
		log.Printf("level=error component=app msg=\"transfer commit failed\" sender_id=%s recipient_id=%s amount=%d err=%v",
			sender.ID, recipient.ID, req.Amount, err)
		return nil, ErrTransferFailed
	}

	// 7. Success. Notify the recipient's notification feed asynchronously;
	// the transfer is already committed, so a publish failure only logs.
	if s.eventProducer != nil {
		event := rabbitmq.TransferCompletedEvent{
			TransactionID: record.ID,
			Serial:        record.Serial,
			SenderID:      record.SenderID,
			SenderName:    record.SenderName,
			RecipientID:   record.RecipientID,
			Amount:        record.Amount,
			Note:          record.Note,
			Timestamp:     record.CreatedAt,
		}
		if pubErr := s.eventProducer.PublishTransferCompleted(ctx, event); pubErr != nil {
			log.Printf("level=warn component=app msg=\"transfer event publish failed\" serial=%d err=%v", record.Serial, pubErr)
		}
	}

	log.Printf("level=info component=app msg=\"transfer committed\" serial=%d sender_id=%s recipient_id=%s amount=%d",
		record.Serial, record.SenderID, record.RecipientID, record.Amount)

	return &domain.TransferResult{
		TransactionID:    record.ID,
		Serial:           record.Serial,
		Amount:           record.Amount,
		NewSenderBalance: record.SenderBalanceAfter,
		RecipientName:    record.RecipientName,
	}, nil
}

// History returns the user's sent and received transfers, newest first,
// capped at the configured history limit. Each entry carries the caller's own
// balance snapshot for that record.
func (s *Service) History(ctx context.Context, userID uuid.UUID) (*domain.History, error) {
	sent, err := s.repo.FindTransactionsBySender(ctx, userID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent transactions: %w", err)
	}
	received, err := s.repo.FindTransactionsByRecipient(ctx, userID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load received transactions: %w", err)
	}

	history := &domain.History{
		Sent:     make([]domain.HistoryEntry, 0, len(sent)),
		Received: make([]domain.HistoryEntry, 0, len(received)),
	}
	for _, tx := range sent {
		history.Sent = append(history.Sent, domain.HistoryEntry{
			Serial:           tx.Serial,
			TransactionID:    tx.ID,
			CounterpartyName: tx.RecipientName,
			Amount:           tx.Amount,
			Note:             tx.Note,
			Date:             tx.CreatedAt,
			BalanceAfter:     tx.SenderBalanceAfter,
		})
	}
	for _, tx := range received {
		history.Received = append(history.Received, domain.HistoryEntry{
			Serial:           tx.Serial,
			TransactionID:    tx.ID,
			CounterpartyName: tx.SenderName,
			Amount:           tx.Amount,
			Note:             tx.Note,
			Date:             tx.CreatedAt,
			BalanceAfter:     tx.RecipientBalanceAfter,
		})
	}
	return history, nil
}

// ReceivedCount returns how many transfers the user has received.
func (s *Service) ReceivedCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountTransactionsByRecipient(ctx, userID)
}
