package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/krishnaprince7/payment/internal/domain"
)

func newTestUser(t *testing.T, repo *MemoryRepository, name string, balance int64) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         name,
		Phone:        "phone-" + uuid.NewString(),
		Balance:      balance,
		PasswordHash: "$2a$10$irrelevant",
	}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return user
}

func TestNextSerial_ConcurrentAllocationsAreUnique(t *testing.T) {
	repo := NewMemoryRepository()

	const workers = 64
	const perWorker = 25

	var wg sync.WaitGroup
	results := make(chan int64, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				serial, err := repo.NextSerial(context.Background(), SerialCounterName)
				if err != nil {
					t.Errorf("NextSerial failed: %v", err)
					return
				}
				results <- serial
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]struct{}, workers*perWorker)
	var max int64
	for serial := range results {
		if _, dup := seen[serial]; dup {
			t.Fatalf("serial %d was issued twice", serial)
		}
		seen[serial] = struct{}{}
		if serial > max {
			max = serial
		}
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d serials, got %d", workers*perWorker, len(seen))
	}
	if max != int64(workers*perWorker) {
		t.Fatalf("expected highest serial %d, got %d", workers*perWorker, max)
	}
}

func TestExecuteTransfer_CommitsAllThreeWrites(t *testing.T) {
	repo := NewMemoryRepository()
	sender := newTestUser(t, repo, "Sita", 1000)
	recipient := newTestUser(t, repo, "Ravi", 500)

	record, err := repo.ExecuteTransfer(context.Background(), TransferParams{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Amount:      200,
		Note:        "chai",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.SenderBalanceAfter != 800 || record.RecipientBalanceAfter != 700 {
		t.Fatalf("unexpected post balances: %d/%d", record.SenderBalanceAfter, record.RecipientBalanceAfter)
	}
	if record.Serial != 1 {
		t.Fatalf("expected serial 1, got %d", record.Serial)
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("expected a commit timestamp")
	}

	gotSender, _ := repo.FindUserByID(context.Background(), sender.ID)
	gotRecipient, _ := repo.FindUserByID(context.Background(), recipient.ID)
	if gotSender.Balance != 800 || gotRecipient.Balance != 700 {
		t.Fatalf("expected balances 800/700, got %d/%d", gotSender.Balance, gotRecipient.Balance)
	}

	count, _ := repo.CountTransactionsByRecipient(context.Background(), recipient.ID)
	if count != 1 {
		t.Fatalf("expected one received transaction, got %d", count)
	}
}

func TestExecuteTransfer_RejectsNonPositiveAmount(t *testing.T) {
	repo := NewMemoryRepository()
	sender := newTestUser(t, repo, "Sita", 1000)
	recipient := newTestUser(t, repo, "Ravi", 500)

	for _, amount := range []int64{0, -500} {
		_, err := repo.ExecuteTransfer(context.Background(), TransferParams{
			SenderID:    sender.ID,
			RecipientID: recipient.ID,
			Amount:      amount,
		})
		if !errors.Is(err, ErrNonPositiveAmount) {
			t.Fatalf("amount %d: expected ErrNonPositiveAmount, got %v", amount, err)
		}
	}

	// A negative amount must never drain the recipient or credit the sender.
	gotSender, _ := repo.FindUserByID(context.Background(), sender.ID)
	gotRecipient, _ := repo.FindUserByID(context.Background(), recipient.ID)
	if gotSender.Balance != 1000 || gotRecipient.Balance != 500 {
		t.Fatalf("expected untouched balances, got %d/%d", gotSender.Balance, gotRecipient.Balance)
	}
	sent, _ := repo.FindTransactionsBySender(context.Background(), sender.ID, 0)
	if len(sent) != 0 {
		t.Fatalf("expected empty ledger, got %d records", len(sent))
	}
}

func TestExecuteTransfer_RejectsSameAccount(t *testing.T) {
	repo := NewMemoryRepository()
	account := newTestUser(t, repo, "Sita", 1000)

	_, err := repo.ExecuteTransfer(context.Background(), TransferParams{
		SenderID:    account.ID,
		RecipientID: account.ID,
		Amount:      200,
	})
	if !errors.Is(err, ErrSameAccount) {
		t.Fatalf("expected ErrSameAccount, got %v", err)
	}

	// A committed self-transfer would leave the balance at b+amount while the
	// ledger claims b-amount; the account must stay exactly where it was.
	got, _ := repo.FindUserByID(context.Background(), account.ID)
	if got.Balance != 1000 {
		t.Fatalf("expected untouched balance 1000, got %d", got.Balance)
	}
	sent, _ := repo.FindTransactionsBySender(context.Background(), account.ID, 0)
	received, _ := repo.FindTransactionsByRecipient(context.Background(), account.ID, 0)
	if len(sent) != 0 || len(received) != 0 {
		t.Fatalf("expected empty ledger, got %d sent / %d received", len(sent), len(received))
	}
}

func TestExecuteTransfer_InsufficientFundsHasNoSideEffects(t *testing.T) {
	repo := NewMemoryRepository()
	sender := newTestUser(t, repo, "Sita", 100)
	recipient := newTestUser(t, repo, "Ravi", 500)

	_, err := repo.ExecuteTransfer(context.Background(), TransferParams{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Amount:      5000,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	gotSender, _ := repo.FindUserByID(context.Background(), sender.ID)
	gotRecipient, _ := repo.FindUserByID(context.Background(), recipient.ID)
	if gotSender.Balance != 100 || gotRecipient.Balance != 500 {
		t.Fatalf("expected untouched balances, got %d/%d", gotSender.Balance, gotRecipient.Balance)
	}
	sent, _ := repo.FindTransactionsBySender(context.Background(), sender.ID, 0)
	if len(sent) != 0 {
		t.Fatalf("expected empty ledger, got %d records", len(sent))
	}
}

// Interrupting the commit after the funds check and serial allocation must
// leave balances and ledger untouched: all three writes or none.
func TestExecuteTransfer_AtomicUnderInjectedFailure(t *testing.T) {
	repo := NewMemoryRepository()
	sender := newTestUser(t, repo, "Sita", 1000)
	recipient := newTestUser(t, repo, "Ravi", 500)

	injected := errors.New("injected crash")
	repo.commitHook = func() error { return injected }

	_, err := repo.ExecuteTransfer(context.Background(), TransferParams{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Amount:      200,
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}

	gotSender, _ := repo.FindUserByID(context.Background(), sender.ID)
	gotRecipient, _ := repo.FindUserByID(context.Background(), recipient.ID)
	if gotSender.Balance != 1000 || gotRecipient.Balance != 500 {
		t.Fatalf("partial commit observed: %d/%d", gotSender.Balance, gotRecipient.Balance)
	}
	sent, _ := repo.FindTransactionsBySender(context.Background(), sender.ID, 0)
	if len(sent) != 0 {
		t.Fatalf("expected empty ledger after aborted commit, got %d records", len(sent))
	}

	// The aborted commit consumed a serial; the next one must move past it,
	// never reuse it.
	repo.commitHook = nil
	record, err := repo.ExecuteTransfer(context.Background(), TransferParams{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Amount:      200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Serial != 2 {
		t.Fatalf("expected serial 2 after a gap, got %d", record.Serial)
	}
}

func TestExecuteTransfer_ConcurrentTransfersConserveMoney(t *testing.T) {
	repo := NewMemoryRepository()

	const users = 8
	const transfersPerUser = 50
	const startingBalance = int64(10000)

	accounts := make([]*domain.User, users)
	for i := range accounts {
		accounts[i] = newTestUser(t, repo, fmt.Sprintf("user-%d", i), startingBalance)
	}

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < transfersPerUser; j++ {
				_, err := repo.ExecuteTransfer(context.Background(), TransferParams{
					SenderID:    accounts[idx].ID,
					RecipientID: accounts[(idx+1)%users].ID,
					Amount:      7,
				})
				if err != nil && !errors.Is(err, ErrInsufficientFunds) {
					t.Errorf("unexpected transfer error: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	var total int64
	for _, account := range accounts {
		got, err := repo.FindUserByID(context.Background(), account.ID)
		if err != nil {
			t.Fatalf("failed to reload account: %v", err)
		}
		if got.Balance < 0 {
			t.Fatalf("account %s went negative: %d", got.Name, got.Balance)
		}
		total += got.Balance
	}
	if total != users*startingBalance {
		t.Fatalf("money was created or destroyed: expected total %d, got %d", users*startingBalance, total)
	}

	// Every committed record carries a distinct serial.
	seen := make(map[int64]struct{})
	for i := 0; i < users; i++ {
		sent, err := repo.FindTransactionsBySender(context.Background(), accounts[i].ID, transfersPerUser)
		if err != nil {
			t.Fatalf("failed to load ledger: %v", err)
		}
		for _, tx := range sent {
			if _, dup := seen[tx.Serial]; dup {
				t.Fatalf("serial %d appears on two records", tx.Serial)
			}
			seen[tx.Serial] = struct{}{}
		}
	}
}

func TestFindTransactions_NewestFirstAndCapped(t *testing.T) {
	repo := NewMemoryRepository()
	sender := newTestUser(t, repo, "Sita", 1_000_000)
	recipient := newTestUser(t, repo, "Ravi", 0)

	for i := 0; i < 5; i++ {
		if _, err := repo.ExecuteTransfer(context.Background(), TransferParams{
			SenderID:    sender.ID,
			RecipientID: recipient.ID,
			Amount:      int64(10 + i),
		}); err != nil {
			t.Fatalf("transfer %d failed: %v", i, err)
		}
	}

	sent, err := repo.FindTransactionsBySender(context.Background(), sender.ID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(sent))
	}
	for i := 1; i < len(sent); i++ {
		if sent[i-1].Serial <= sent[i].Serial {
			t.Fatalf("expected newest first ordering, got serials %d then %d", sent[i-1].Serial, sent[i].Serial)
		}
	}
	if sent[0].Serial != 5 {
		t.Fatalf("expected newest record first (serial 5), got %d", sent[0].Serial)
	}
}

func TestCreateUser_RejectsDuplicatePhone(t *testing.T) {
	repo := NewMemoryRepository()

	first := &domain.User{ID: uuid.New(), Name: "A", Phone: "9876543210", Balance: 0}
	if err := repo.CreateUser(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := &domain.User{ID: uuid.New(), Name: "B", Phone: "9876543210", Balance: 0}
	if err := repo.CreateUser(context.Background(), second); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
}

func TestFindUser_DoesNotExposeCredential(t *testing.T) {
	repo := NewMemoryRepository()
	user := newTestUser(t, repo, "Sita", 100)

	got, err := repo.FindUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PasswordHash != "" {
		t.Fatal("expected credential hash to be stripped from lookups")
	}

	hash, err := repo.FindUserCredentialByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "" {
		t.Fatal("expected credential lookup to return the stored hash")
	}
}
