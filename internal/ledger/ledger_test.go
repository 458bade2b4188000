package ledger

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Preetam8873/Nuvana/internal/models"
	"github.com/Preetam8873/Nuvana/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newLedger builds a ledger over a throwaway JSON store with one funded
// account per given (number, balance) pair.
func newLedger(t *testing.T, accounts map[string]int64) (*Ledger, *storage.Store) {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	l := New(s, testLogger())
	for number, balance := range accounts {
		owner := "owner-" + number
		if err := s.CreateUser(&models.User{
			Username:     owner,
			PasswordHash: "x",
			Status:       models.UserActive,
			CreatedAt:    time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
		if err := s.CreateAccount(&models.Account{
			Number:    number,
			Username:  owner,
			Balance:   decimal.Zero,
			Type:      "Savings",
			Status:    models.AccountActive,
			CreatedAt: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
		if balance > 0 {
			if _, err := l.Credit(number, decimal.NewFromInt(balance), "opening balance"); err != nil {
				t.Fatal(err)
			}
		}
	}
	return l, s
}

func balance(t *testing.T, s *storage.Store, number string) decimal.Decimal {
	t.Helper()
	acc, err := s.Account(number)
	if err != nil {
		t.Fatal(err)
	}
	return acc.Balance
}

func txCount(t *testing.T, s *storage.Store, number string) int {
	t.Helper()
	txs, err := s.Transactions(number)
	if err != nil {
		t.Fatal(err)
	}
	return len(txs)
}

func TestCreditSumsToBalance(t *testing.T) {
	l, s := newLedger(t, map[string]int64{"NB00000001": 0})
	amounts := []int64{100, 250, 50, 999}
	var want int64
	for _, a := range amounts {
		if _, err := l.Credit("NB00000001", decimal.NewFromInt(a), "deposit"); err != nil {
			t.Fatal(err)
		}
		want += a
	}
	if got := balance(t, s, "NB00000001"); !got.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("balance=%s want %d", got, want)
	}
	if got := txCount(t, s, "NB00000001"); got != len(amounts) {
		t.Fatalf("transactions=%d want %d", got, len(amounts))
	}
}

func TestCreditRejectsNonPositive(t *testing.T) {
	l, s := newLedger(t, map[string]int64{"NB00000001": 500})
	for _, amount := range []int64{0, -50} {
		if _, err := l.Credit("NB00000001", decimal.NewFromInt(amount), "bad"); !errors.Is(err, models.ErrInvalidAmount) {
			t.Fatalf("amount=%d: want ErrInvalidAmount, got %v", amount, err)
		}
	}
	if got := balance(t, s, "NB00000001"); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("balance changed: %s", got)
	}
	if got := txCount(t, s, "NB00000001"); got != 1 {
		t.Fatalf("transactions=%d want 1", got)
	}
}

func TestDebitInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	l, s := newLedger(t, map[string]int64{"NB00000001": 100})
	if _, err := l.Debit("NB00000001", decimal.NewFromInt(101), "too much"); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if got := balance(t, s, "NB00000001"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance changed: %s", got)
	}
	if got := txCount(t, s, "NB00000001"); got != 1 {
		t.Fatalf("partial transaction recorded: %d entries", got)
	}
}

func TestDebitExactBalance(t *testing.T) {
	l, s := newLedger(t, map[string]int64{"NB00000001": 100})
	if _, err := l.Debit("NB00000001", decimal.NewFromInt(100), "all of it"); err != nil {
		t.Fatal(err)
	}
	if got := balance(t, s, "NB00000001"); !got.IsZero() {
		t.Fatalf("balance=%s want 0", got)
	}
}

func TestDebitUnknownAccount(t *testing.T) {
	l, _ := newLedger(t, map[string]int64{"NB00000001": 100})
	if _, err := l.Debit("NB99999999", decimal.NewFromInt(10), "x"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestTransferCreditsDestination(t *testing.T) {
	l, s := newLedger(t, map[string]int64{"NB00000001": 1000, "NB00000002": 0})
	debit, credit, err := l.Transfer("NB00000001", "NB00000002", decimal.NewFromInt(400), "rent")
	if err != nil {
		t.Fatal(err)
	}
	if debit.Kind != models.Debit || credit.Kind != models.Credit {
		t.Fatalf("kinds: %s / %s", debit.Kind, credit.Kind)
	}
	if got := balance(t, s, "NB00000001"); !got.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("source balance=%s", got)
	}
	if got := balance(t, s, "NB00000002"); !got.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("destination balance=%s", got)
	}
}

func TestTransferSameAccount(t *testing.T) {
	l, _ := newLedger(t, map[string]int64{"NB00000001": 1000})
	if _, _, err := l.Transfer("NB00000001", "NB00000001", decimal.NewFromInt(10), "loop"); !errors.Is(err, models.ErrSameAccount) {
		t.Fatalf("want ErrSameAccount, got %v", err)
	}
}

func TestTransferInsufficientFundsTouchesNeitherSide(t *testing.T) {
	l, s := newLedger(t, map[string]int64{"NB00000001": 100, "NB00000002": 50})
	if _, _, err := l.Transfer("NB00000001", "NB00000002", decimal.NewFromInt(500), "x"); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if got := balance(t, s, "NB00000001"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("source balance=%s", got)
	}
	if got := balance(t, s, "NB00000002"); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("destination balance=%s", got)
	}
}

// Concurrent opposing transfers must not deadlock or lose money.
func TestConcurrentTransfers(t *testing.T) {
	l, s := newLedger(t, map[string]int64{"NB00000001": 10000, "NB00000002": 10000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Transfer("NB00000001", "NB00000002", decimal.NewFromInt(10), "ping")
		}()
		go func() {
			defer wg.Done()
			l.Transfer("NB00000002", "NB00000001", decimal.NewFromInt(10), "pong")
		}()
	}
	wg.Wait()

	total := balance(t, s, "NB00000001").Add(balance(t, s, "NB00000002"))
	if !total.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("money created or destroyed: total=%s", total)
	}
}

func TestConcurrentCreditsAllRecorded(t *testing.T) {
	l, s := newLedger(t, map[string]int64{"NB00000001": 0})
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := l.Credit("NB00000001", decimal.NewFromInt(1), "tick"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := balance(t, s, "NB00000001"); !got.Equal(decimal.NewFromInt(n)) {
		t.Fatalf("balance=%s want %d", got, n)
	}
	txs, err := s.Transactions("NB00000001")
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[int64]bool)
	for _, tx := range txs {
		if seen[tx.ID] {
			t.Fatalf("duplicate sequence id %d", tx.ID)
		}
		seen[tx.ID] = true
	}
	if len(txs) != n {
		t.Fatalf("transactions=%d want %d", len(txs), n)
	}
}

func TestAuditConsistency(t *testing.T) {
	l, _ := newLedger(t, map[string]int64{"NB00000001": 0})
	l.Credit("NB00000001", decimal.NewFromInt(500), "a")
	l.Debit("NB00000001", decimal.NewFromInt(120), "b")
	l.Credit("NB00000001", decimal.NewFromInt(20), "c")

	report, err := l.Audit("NB00000001")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Consistent {
		t.Fatalf("stored=%s derived=%s", report.StoredBalance, report.DerivedBalance)
	}
	if !report.DerivedBalance.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("derived=%s want 400", report.DerivedBalance)
	}
	if report.TransactionsLen != 3 {
		t.Fatalf("transactions=%d", report.TransactionsLen)
	}
}
