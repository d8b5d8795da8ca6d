/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to users, the transaction ledger, and the serial counter.
 *
 * The critical method is `ExecuteTransfer`: it runs the debit, the credit, the
 * serial allocation, and the ledger insert inside a single database transaction,
 * locking both account rows with `FOR UPDATE` so that concurrent transfers
 * touching the same accounts never observe a stale balance.
 *
 * @dependencies
 * - context, errors, fmt, strings: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/krishnaprince7/payment/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateUser inserts a new user row. The caller supplies the starting balance
// and the bcrypt password hash; the database assigns the timestamps.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, name, phone, password_hash, balance, image_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.ID, user.Name, user.Phone, user.PasswordHash, user.Balance, user.ImagePath,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPhoneTaken
		}
		return err
	}
	return nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, name, phone, balance, image_path, created_at, updated_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.Name, &user.Phone, &user.Balance, &user.ImagePath, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByPhone retrieves a user from the database by their phone number.
func (r *PostgresRepository) FindUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, name, phone, balance, image_path, created_at, updated_at FROM users WHERE btrim(phone) = btrim($1)`
	err := r.db.QueryRow(ctx, query, phone).Scan(
		&user.ID, &user.Name, &user.Phone, &user.Balance, &user.ImagePath, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserCredentialByID returns only the stored bcrypt hash for a user.
func (r *PostgresRepository) FindUserCredentialByID(ctx context.Context, userID uuid.UUID) (string, error) {
	var hash string
	err := r.db.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return hash, nil
}

// UpdateUserProfile updates the mutable profile fields. Ledger records keep
// their own name snapshots, so history is unaffected by renames.
func (r *PostgresRepository) UpdateUserProfile(ctx context.Context, userID uuid.UUID, name string, imagePath *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET name = $1, image_path = COALESCE($2, image_path), updated_at = NOW() WHERE id = $3`,
		name, imagePath, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// NextSerial atomically increments and returns the named counter, creating the
// row on first use. The upsert makes increment-and-read a single statement, so
// two concurrent calls can never return the same value.
func (r *PostgresRepository) NextSerial(ctx context.Context, name string) (int64, error) {
	return nextSerialInTx(ctx, r.db, name)
}

// querier is the subset of pgx shared by the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func nextSerialInTx(ctx context.Context, q querier, name string) (int64, error) {
	var seq int64
	query := `
		INSERT INTO counters (name, seq)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET seq = counters.seq + 1
		RETURNING seq
	`
	if err := q.QueryRow(ctx, query, name).Scan(&seq); err != nil {
		return 0, fmt.Errorf("%w: serial allocation failed: %v", ErrStorageUnavailable, err)
	}
	return seq, nil
}

// ExecuteTransfer commits a transfer as one all-or-nothing unit: it locks both
// account rows, re-checks the sender's funds under the lock, allocates the next
// serial, applies both balance updates, and inserts the ledger record. Any
// failure rolls the whole unit back.
func (r *PostgresRepository) ExecuteTransfer(ctx context.Context, params TransferParams) (*domain.Transaction, error) {
	// Contract checks independent of caller validation. A self-transfer would
	// issue two conflicting UPDATEs on the same row; a non-positive amount
	// would mint or drain money.
	if params.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if params.SenderID == params.RecipientID {
		return nil, ErrSameAccount
	}

	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transfer: %v", ErrStorageUnavailable, err)
	}
	defer dbTx.Rollback(ctx)

	// Lock the two account rows in a deterministic order so two transfers
	// between the same pair of accounts cannot deadlock each other.
	first, second := params.SenderID, params.RecipientID
	if strings.Compare(second.String(), first.String()) < 0 {
		first, second = second, first
	}

	locked := make(map[uuid.UUID]*domain.User, 2)
	for _, id := range []uuid.UUID{first, second} {
		var u domain.User
		err := dbTx.QueryRow(ctx,
			`SELECT id, name, balance FROM users WHERE id = $1 FOR UPDATE`, id,
		).Scan(&u.ID, &u.Name, &u.Balance)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		locked[id] = &u
	}
	sender, recipient := locked[params.SenderID], locked[params.RecipientID]

	// Authoritative funds check: the pre-flight check in the service ran
	// without the lock and may be stale by now.
	if sender.Balance < params.Amount {
		return nil, ErrInsufficientFunds
	}

	serial, err := nextSerialInTx(ctx, dbTx, SerialCounterName)
	if err != nil {
		return nil, err
	}

	senderBalanceAfter := sender.Balance - params.Amount
	recipientBalanceAfter := recipient.Balance + params.Amount

	if _, err := dbTx.Exec(ctx,
		`UPDATE users SET balance = $1, updated_at = NOW() WHERE id = $2`,
		senderBalanceAfter, params.SenderID,
	); err != nil {
		return nil, err
	}
	if _, err := dbTx.Exec(ctx,
		`UPDATE users SET balance = $1, updated_at = NOW() WHERE id = $2`,
		recipientBalanceAfter, params.RecipientID,
	); err != nil {
		return nil, err
	}

	record := &domain.Transaction{
		ID:                    uuid.New(),
		Serial:                serial,
		SenderID:              params.SenderID,
		SenderName:            sender.Name,
		RecipientID:           params.RecipientID,
		RecipientName:         recipient.Name,
		Amount:                params.Amount,
		Fee:                   params.Fee,
		Note:                  params.Note,
		SenderBalanceAfter:    senderBalanceAfter,
		RecipientBalanceAfter: recipientBalanceAfter,
	}
	insertQuery := `
		INSERT INTO transactions (
			id, serial, sender_id, sender_name, recipient_id, recipient_name,
			amount, fee, note, sender_balance_after, recipient_balance_after
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	err = dbTx.QueryRow(ctx, insertQuery,
		record.ID, record.Serial, record.SenderID, record.SenderName,
		record.RecipientID, record.RecipientName, record.Amount, record.Fee,
		nullableNote(record.Note), record.SenderBalanceAfter, record.RecipientBalanceAfter,
	).Scan(&record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The unique index on serial fired; the counter should make this
			// unreachable. Abort the whole transfer.
			return nil, ErrDuplicateSerial
		}
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit transfer: %v", ErrStorageUnavailable, err)
	}
	return record, nil
}

// FindTransactionsBySender returns transfers sent by a user, newest first.
func (r *PostgresRepository) FindTransactionsBySender(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.Transaction, error) {
	return r.findTransactionsByParticipant(ctx, "sender_id", senderID, limit)
}

// FindTransactionsByRecipient returns transfers received by a user, newest first.
func (r *PostgresRepository) FindTransactionsByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]domain.Transaction, error) {
	return r.findTransactionsByParticipant(ctx, "recipient_id", recipientID, limit)
}

func (r *PostgresRepository) findTransactionsByParticipant(ctx context.Context, column string, userID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := fmt.Sprintf(`
		SELECT id, serial, sender_id, sender_name, recipient_id, recipient_name,
		       amount, fee, COALESCE(note, ''), sender_balance_after, recipient_balance_after, created_at
		FROM transactions
		WHERE %s = $1
		ORDER BY serial DESC
		LIMIT $2
	`, column)

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		err := rows.Scan(
			&tx.ID, &tx.Serial, &tx.SenderID, &tx.SenderName, &tx.RecipientID, &tx.RecipientName,
			&tx.Amount, &tx.Fee, &tx.Note, &tx.SenderBalanceAfter, &tx.RecipientBalanceAfter, &tx.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, tx)
	}
	return records, rows.Err()
}

// CountTransactionsByRecipient counts transfers received by a user.
func (r *PostgresRepository) CountTransactionsByRecipient(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE recipient_id = $1`, recipientID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func nullableNote(note string) *string {
	trimmed := strings.TrimSpace(note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
