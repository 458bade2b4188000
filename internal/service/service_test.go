package service

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Preetam8873/Nuvana/internal/config"
	"github.com/Preetam8873/Nuvana/internal/ledger"
	"github.com/Preetam8873/Nuvana/internal/models"
	"github.com/Preetam8873/Nuvana/internal/storage"
	"github.com/Preetam8873/Nuvana/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:     "test-secret",
		AdminUsername: "admin",
		AdminPassword: "admin123",
		LatePenalty:   "100",
		BaseRate:      "6.5",
	}
}

func newService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	svc, err := NewService(store, ledger.New(store, log), utils.NewGenerator(1), nil, nil, testConfig(), log)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func register(t *testing.T, svc *Service, username string) *models.Account {
	t.Helper()
	_, account, err := svc.Register(RegisterInput{
		Username: username,
		Password: "secret123",
		Email:    username + "@example.com",
		FullName: "Test User",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return account
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newService(t)
	account := register(t, svc, "alice")

	if account.Number == "" || account.Number[:2] != "NB" {
		t.Fatalf("unexpected account number %q", account.Number)
	}
	if !account.Balance.IsZero() {
		t.Fatalf("new account balance = %s, want 0", account.Balance)
	}

	token, err := svc.Login("alice", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	if _, err := svc.Login("alice", "wrongpass"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("bad password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login("nobody", "secret123"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")

	_, _, err := svc.Register(RegisterInput{Username: "alice", Password: "other"})
	if !errors.Is(err, models.ErrDuplicateUser) {
		t.Fatalf("duplicate register error = %v, want ErrDuplicateUser", err)
	}
}

func TestBlockedUserCannotLogin(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")

	if _, err := svc.SetUserStatus("alice", models.UserBlocked); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := svc.Login("alice", "secret123"); !errors.Is(err, models.ErrUserBlocked) {
		t.Fatalf("blocked login error = %v, want ErrUserBlocked", err)
	}

	if _, err := svc.SetUserStatus("alice", models.UserActive); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if _, err := svc.Login("alice", "secret123"); err != nil {
		t.Fatalf("login after unblock: %v", err)
	}
}

func TestDepositWithdrawTransfer(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")
	bob := register(t, svc, "bob")

	if _, err := svc.Deposit("alice", decimal.NewFromInt(5000), "Cash deposit"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Withdraw("alice", decimal.NewFromInt(1200), "ATM"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := svc.Transfer("alice", bob.Number, decimal.NewFromInt(800), "Rent"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	aliceAcc, err := svc.AccountSummary("alice")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !aliceAcc.Balance.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("alice balance = %s, want 3000", aliceAcc.Balance)
	}
	bobAcc, _ := svc.AccountSummary("bob")
	if !bobAcc.Balance.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("bob balance = %s, want 800", bobAcc.Balance)
	}

	if _, err := svc.Transfer("alice", "NB00000000", decimal.NewFromInt(1), "x"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("transfer to unknown account error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Withdraw("alice", decimal.NewFromInt(1000000), "too much"); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("overdraft error = %v, want ErrInsufficientFunds", err)
	}
}

func TestTransactionFiltersAndSummary(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")

	svc.Deposit("alice", decimal.NewFromInt(5000), "Salary")
	svc.Withdraw("alice", decimal.NewFromInt(700), "Groceries")
	svc.Deposit("alice", decimal.NewFromInt(300), "Refund")

	all, err := svc.Transactions("alice", TransactionFilter{})
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d transactions, want 3", len(all))
	}

	credits, _ := svc.Transactions("alice", TransactionFilter{Kind: models.Credit})
	if len(credits) != 2 {
		t.Fatalf("got %d credits, want 2", len(credits))
	}

	byAmount, _ := svc.Transactions("alice", TransactionFilter{Sort: SortAmountDesc})
	if !byAmount[0].Amount.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("largest first = %s, want 5000", byAmount[0].Amount)
	}

	future := time.Now().Add(time.Hour)
	none, _ := svc.Transactions("alice", TransactionFilter{From: &future})
	if len(none) != 0 {
		t.Fatalf("got %d future transactions, want 0", len(none))
	}

	stats, err := svc.Summary("alice")
	if err != nil {
		t.Fatalf("income/expense summary: %v", err)
	}
	if !stats.Income.Equal(decimal.NewFromInt(5300)) || !stats.Expense.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("summary = income %s expense %s, want 5300/700", stats.Income, stats.Expense)
	}
	if !stats.Net.Equal(decimal.NewFromInt(4600)) {
		t.Fatalf("net = %s, want 4600", stats.Net)
	}
}

func TestLoanLifecycle(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")

	loan, err := svc.ApplyLoan("alice", LoanInput{
		Type:       "Car",
		Principal:  decimal.NewFromInt(500000),
		AnnualRate: decimal.NewFromFloat(8.5),
		TermMonths: 60,
		Purpose:    "New car",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if loan.Status != models.LoanPending {
		t.Fatalf("new loan status = %s, want pending", loan.Status)
	}
	if loan.EMI.LessThanOrEqual(decimal.Zero) {
		t.Fatalf("loan EMI = %s, want > 0", loan.EMI)
	}

	pending, _ := svc.PendingLoans()
	if len(pending) != 1 {
		t.Fatalf("got %d pending loans, want 1", len(pending))
	}

	approved, err := svc.ApproveLoan(loan.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.LoanApproved || approved.DisbursedAt == nil {
		t.Fatalf("approved loan = %+v", approved)
	}

	acc, _ := svc.AccountSummary("alice")
	if !acc.Balance.Equal(loan.Principal) {
		t.Fatalf("balance after disbursement = %s, want %s", acc.Balance, loan.Principal)
	}

	schedule, err := svc.LoanSchedule("alice", loan.ID)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(schedule) != 60 {
		t.Fatalf("schedule has %d rows, want 60", len(schedule))
	}
	if schedule[0].Paid {
		t.Fatal("fresh schedule row marked paid")
	}

	if _, err := svc.ApproveLoan(loan.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("second approve error = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.RejectLoan(loan.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("reject after approve error = %v, want ErrInvalidTransition", err)
	}
}

func TestRejectLoan(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")

	loan, err := svc.ApplyLoan("alice", LoanInput{
		Type: "Personal", Principal: decimal.NewFromInt(100000),
		AnnualRate: decimal.NewFromFloat(10.5), TermMonths: 24,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	rejected, err := svc.RejectLoan(loan.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != models.LoanRejected {
		t.Fatalf("status = %s, want rejected", rejected.Status)
	}

	acc, _ := svc.AccountSummary("alice")
	if !acc.Balance.IsZero() {
		t.Fatalf("balance after rejection = %s, want 0", acc.Balance)
	}
	if _, err := svc.LoanSchedule("alice", loan.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("rejected loan schedule error = %v, want ErrNotFound", err)
	}
}

func TestApplyLoanInvalidTerm(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")

	_, err := svc.ApplyLoan("alice", LoanInput{
		Type: "Personal", Principal: decimal.NewFromInt(100000),
		AnnualRate: decimal.NewFromFloat(10.5), TermMonths: 0,
	})
	if !errors.Is(err, models.ErrInvalidTerm) {
		t.Fatalf("zero-term error = %v, want ErrInvalidTerm", err)
	}
}

func TestLoanScheduleOwnership(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")
	register(t, svc, "mallory")

	loan, _ := svc.ApplyLoan("alice", LoanInput{
		Type: "Personal", Principal: decimal.NewFromInt(100000),
		AnnualRate: decimal.NewFromFloat(10.5), TermMonths: 12,
	})
	if _, err := svc.ApproveLoan(loan.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := svc.LoanSchedule("mallory", loan.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("foreign schedule error = %v, want ErrNotFound", err)
	}
}

type stubRates struct {
	rate float64
	err  error
}

func (s stubRates) KeyRate() (float64, error) { return s.rate, s.err }

func TestLoanOffers(t *testing.T) {
	svc, _ := newService(t)

	svc.rates = stubRates{rate: 7.5}
	offers := svc.LoanOffers()
	if len(offers) != 3 {
		t.Fatalf("got %d offers, want 3", len(offers))
	}
	for _, offer := range offers {
		if offer.AnnualRate.LessThanOrEqual(decimal.NewFromFloat(7.5)) {
			t.Fatalf("%s rate %s not above key rate", offer.Type, offer.AnnualRate)
		}
	}

	svc.rates = stubRates{err: errors.New("gateway timeout")}
	fallback := svc.LoanOffers()
	want := decimal.NewFromFloat(8.0) // base 6.5 + home margin 1.5
	if !fallback[0].AnnualRate.Equal(want) {
		t.Fatalf("fallback home rate = %s, want %s", fallback[0].AnnualRate, want)
	}
}

func TestEnsureAdmin(t *testing.T) {
	svc, _ := newService(t)

	if err := svc.EnsureAdmin(); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if err := svc.EnsureAdmin(); err != nil {
		t.Fatalf("ensure admin again: %v", err)
	}

	admin, err := svc.Profile("admin")
	if err != nil {
		t.Fatalf("admin profile: %v", err)
	}
	if !admin.Admin {
		t.Fatal("bootstrap user is not an admin")
	}
	if _, err := svc.Login("admin", "admin123"); err != nil {
		t.Fatalf("admin login: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")

	if err := svc.ChangePassword("alice", "wrongpass", "newsecret99"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("wrong current password error = %v, want ErrInvalidCredentials", err)
	}
	if err := svc.ChangePassword("alice", "secret123", "short"); !errors.Is(err, models.ErrWeakPassword) {
		t.Fatalf("short password error = %v, want ErrWeakPassword", err)
	}

	if err := svc.ChangePassword("alice", "secret123", "newsecret99"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login("alice", "secret123"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := svc.Login("alice", "newsecret99"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestTransactionsForAccount(t *testing.T) {
	svc, _ := newService(t)
	alice := register(t, svc, "alice")
	bob := register(t, svc, "bob")

	svc.Deposit("alice", decimal.NewFromInt(5000), "Salary")
	svc.Transfer("alice", bob.Number, decimal.NewFromInt(800), "Rent")

	aliceTxs, err := svc.TransactionsForAccount(alice.Number, TransactionFilter{})
	if err != nil {
		t.Fatalf("alice history: %v", err)
	}
	if len(aliceTxs) != 2 {
		t.Fatalf("alice has %d transactions, want 2", len(aliceTxs))
	}

	bobDebits, err := svc.TransactionsForAccount(bob.Number, TransactionFilter{Kind: models.Debit})
	if err != nil {
		t.Fatalf("bob debits: %v", err)
	}
	if len(bobDebits) != 0 {
		t.Fatalf("bob has %d debits, want 0", len(bobDebits))
	}

	if _, err := svc.TransactionsForAccount("NB00000000", TransactionFilter{}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown account error = %v, want ErrNotFound", err)
	}
}

// flakyStore fails SaveSchedule on demand.
type flakyStore struct {
	*storage.Store
	failSaveSchedule bool
}

func (f *flakyStore) SaveSchedule(loanID string, rows []models.PaymentSchedule) error {
	if f.failSaveSchedule {
		return models.ErrStorage
	}
	return f.Store.SaveSchedule(loanID, rows)
}

func TestApproveLoanRollsBackOnScheduleFailure(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	flaky := &flakyStore{Store: store}
	log := logrus.New()
	log.SetOutput(io.Discard)
	svc, err := NewService(flaky, ledger.New(store, log), utils.NewGenerator(1), nil, nil, testConfig(), log)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	account := register(t, svc, "alice")

	loan, err := svc.ApplyLoan("alice", LoanInput{
		Type: "Personal", Principal: decimal.NewFromInt(100000),
		AnnualRate: decimal.NewFromFloat(10.5), TermMonths: 12,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	flaky.failSaveSchedule = true
	if _, err := svc.ApproveLoan(loan.ID); !errors.Is(err, models.ErrStorage) {
		t.Fatalf("approve with failing schedule save error = %v, want ErrStorage", err)
	}

	stored, _ := store.Loan(loan.ID)
	if stored.Status != models.LoanPending {
		t.Fatalf("loan status after failed approval = %s, want pending", stored.Status)
	}
	acc, _ := store.Account(account.Number)
	if !acc.Balance.IsZero() {
		t.Fatalf("balance after reversed disbursement = %s, want 0", acc.Balance)
	}

	// the approval can be retried once the store recovers
	flaky.failSaveSchedule = false
	if _, err := svc.ApproveLoan(loan.ID); err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	acc, _ = store.Account(account.Number)
	if !acc.Balance.Equal(loan.Principal) {
		t.Fatalf("balance after retry = %s, want %s", acc.Balance, loan.Principal)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "alice")

	updated, err := svc.UpdateProfile("alice", "new@example.com", "9998887777", "12 New Street")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Email != "new@example.com" || updated.Phone != "9998887777" {
		t.Fatalf("profile not updated: %+v", updated)
	}
	if updated.PasswordHash != "" {
		t.Fatal("profile response leaks password hash")
	}
}
