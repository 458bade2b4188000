// Package service holds the business logic: authentication, accounts,
// the ledger-facing money operations, and the loan lifecycle.
package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/Preetam8873/Nuvana/internal/config"
	"github.com/Preetam8873/Nuvana/internal/emi"
	"github.com/Preetam8873/Nuvana/internal/ledger"
	"github.com/Preetam8873/Nuvana/internal/models"
	"github.com/Preetam8873/Nuvana/internal/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Store is the persistence the service needs beyond the ledger.
type Store interface {
	CreateUser(u *models.User) error
	User(username string) (*models.User, error)
	UpdateUser(u *models.User) error
	Users() ([]models.User, error)

	CreateAccount(a *models.Account) error
	Account(number string) (*models.Account, error)
	AccountForUser(username string) (*models.Account, error)
	Transactions(number string) ([]models.Transaction, error)

	CreateLoan(l *models.Loan) error
	Loan(id string) (*models.Loan, error)
	LoansForUser(username string) ([]models.Loan, error)
	LoansByStatus(status models.LoanStatus) ([]models.Loan, error)
	UpdateLoan(l *models.Loan) error
	SaveSchedule(loanID string, rows []models.PaymentSchedule) error
	Schedule(loanID string) ([]models.PaymentSchedule, error)
}

// RateSource supplies the central-bank key rate for loan-offer pricing.
type RateSource interface {
	KeyRate() (float64, error)
}

// Mailer sends account notifications. A nil Mailer disables them.
type Mailer interface {
	SendTransactionNotification(to, fullName, accountNumber string, amount, balance decimal.Decimal, kind string) error
}

// Service handles business logic
type Service struct {
	store  Store
	ledger *ledger.Ledger
	gen    utils.Generator
	rates  RateSource
	mailer Mailer
	log    *logrus.Logger
	config *config.Config

	baseRate decimal.Decimal
}

// NewService initializes a new service.
func NewService(store Store, lgr *ledger.Ledger, gen utils.Generator, rates RateSource, mailer Mailer, cfg *config.Config, log *logrus.Logger) (*Service, error) {
	baseRate, err := decimal.NewFromString(cfg.BaseRate)
	if err != nil {
		return nil, fmt.Errorf("invalid BASE_RATE %q: %w", cfg.BaseRate, err)
	}
	return &Service{
		store:    store,
		ledger:   lgr,
		gen:      gen,
		rates:    rates,
		mailer:   mailer,
		log:      log,
		config:   cfg,
		baseRate: baseRate,
	}, nil
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Username string
	Password string
	Email    string
	FullName string
	Phone    string
	Address  string
}

// Register creates a new user with a hashed password and opens their
// primary savings account.
func (s *Service) Register(in RegisterInput) (*models.User, *models.Account, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Phone:        in.Phone,
		Address:      in.Address,
		PasswordHash: string(hashedPassword),
		Status:       models.UserActive,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, nil, err
	}

	account, err := s.openAccount(in.Username)
	if err != nil {
		return nil, nil, err
	}

	s.log.Infof("user registered: %s", user.Username)
	return user, account, nil
}

// openAccount creates the user's primary account with a generated number,
// retrying on the unlikely collision.
func (s *Service) openAccount(username string) (*models.Account, error) {
	for attempt := 0; attempt < 5; attempt++ {
		number := s.gen.AccountNumber()
		if _, err := s.store.Account(number); err == nil {
			continue
		}
		account := &models.Account{
			Number:    number,
			Username:  username,
			Balance:   decimal.Zero,
			Type:      "Savings",
			Status:    models.AccountActive,
			CreatedAt: time.Now(),
		}
		if err := s.store.CreateAccount(account); err != nil {
			return nil, err
		}
		return account, nil
	}
	return nil, fmt.Errorf("%w: could not allocate account number", models.ErrStorage)
}

// Claims are the JWT claims issued at login.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Login authenticates a user and returns a JWT token. Blocked users are
// refused.
func (s *Service) Login(username, password string) (string, error) {
	user, err := s.store.User(username)
	if err != nil {
		return "", models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}
	if user.Status == models.UserBlocked {
		return "", models.ErrUserBlocked
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Admin: user.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("user logged in: %s", username)
	return tokenString, nil
}

// EnsureAdmin creates the bootstrap admin user if it does not exist yet.
func (s *Service) EnsureAdmin() error {
	if _, err := s.store.User(s.config.AdminUsername); err == nil {
		return nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(s.config.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := &models.User{
		Username:     s.config.AdminUsername,
		FullName:     "Administrator",
		PasswordHash: string(hashed),
		Status:       models.UserActive,
		Admin:        true,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(admin); err != nil {
		return err
	}
	s.log.Infof("bootstrap admin created: %s", admin.Username)
	return nil
}

// Profile returns the user without the credential hash.
func (s *Service) Profile(username string) (*models.User, error) {
	user, err := s.store.User(username)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile changes the user's mutable contact fields.
func (s *Service) UpdateProfile(username, email, phone, address string) (*models.User, error) {
	user, err := s.store.User(username)
	if err != nil {
		return nil, err
	}
	user.Email = email
	user.Phone = phone
	user.Address = address
	if err := s.store.UpdateUser(user); err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// ChangePassword replaces the user's password after verifying the current
// one. New passwords shorter than 8 characters are refused.
func (s *Service) ChangePassword(username, current, newPassword string) error {
	user, err := s.store.User(username)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return models.ErrInvalidCredentials
	}
	if len(newPassword) < 8 {
		return models.ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hashed)
	if err := s.store.UpdateUser(user); err != nil {
		return err
	}

	s.log.Infof("password changed: %s", username)
	return nil
}

// AccountSummary returns the user's primary account.
func (s *Service) AccountSummary(username string) (*models.Account, error) {
	return s.store.AccountForUser(username)
}

// Deposit credits the user's primary account.
func (s *Service) Deposit(username string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	account, err := s.store.AccountForUser(username)
	if err != nil {
		return nil, err
	}
	tx, err := s.ledger.Credit(account.Number, amount, description)
	if err != nil {
		return nil, err
	}
	s.notify(username, account.Number, amount, "Deposit")
	return tx, nil
}

// Withdraw debits the user's primary account.
func (s *Service) Withdraw(username string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	account, err := s.store.AccountForUser(username)
	if err != nil {
		return nil, err
	}
	tx, err := s.ledger.Debit(account.Number, amount, description)
	if err != nil {
		return nil, err
	}
	s.notify(username, account.Number, amount, "Withdrawal")
	return tx, nil
}

// Transfer moves money from the user's primary account to the destination
// account number. Both legs are recorded.
func (s *Service) Transfer(username, toNumber string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	account, err := s.store.AccountForUser(username)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Account(toNumber); err != nil {
		return nil, err
	}
	debit, _, err := s.ledger.Transfer(account.Number, toNumber, amount, description)
	if err != nil {
		return nil, err
	}
	s.notify(username, account.Number, amount, "Transfer")
	return debit, nil
}

// notify sends a best-effort transaction email off the request path.
func (s *Service) notify(username, accountNumber string, amount decimal.Decimal, kind string) {
	if s.mailer == nil {
		return
	}
	user, err := s.store.User(username)
	if err != nil || user.Email == "" {
		return
	}
	account, err := s.store.Account(accountNumber)
	if err != nil {
		return
	}
	go s.mailer.SendTransactionNotification(user.Email, user.FullName, accountNumber, amount, account.Balance, kind)
}

// Transaction history filters, mirroring the statement page.
const (
	SortNewest     = "newest"
	SortOldest     = "oldest"
	SortAmountDesc = "amount_desc"
	SortAmountAsc  = "amount_asc"
)

// TransactionFilter narrows and orders a transaction history query.
type TransactionFilter struct {
	Kind models.TransactionKind // empty means both
	From *time.Time
	To   *time.Time
	Sort string // empty means newest first
}

// Transactions returns the user's filtered, sorted transaction history.
func (s *Service) Transactions(username string, filter TransactionFilter) ([]models.Transaction, error) {
	account, err := s.store.AccountForUser(username)
	if err != nil {
		return nil, err
	}
	return s.TransactionsForAccount(account.Number, filter)
}

// TransactionsForAccount returns any account's filtered, sorted history.
// This is the admin monitoring view; ordinary users go through
// Transactions, which resolves their own account first.
func (s *Service) TransactionsForAccount(number string, filter TransactionFilter) ([]models.Transaction, error) {
	txs, err := s.store.Transactions(number)
	if err != nil {
		return nil, err
	}

	filtered := txs[:0]
	for _, tx := range txs {
		if filter.Kind != "" && tx.Kind != filter.Kind {
			continue
		}
		if filter.From != nil && tx.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && tx.Timestamp.After(*filter.To) {
			continue
		}
		filtered = append(filtered, tx)
	}

	switch filter.Sort {
	case SortOldest:
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Timestamp.Before(filtered[j].Timestamp) })
	case SortAmountDesc:
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Amount.GreaterThan(filtered[j].Amount) })
	case SortAmountAsc:
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Amount.LessThan(filtered[j].Amount) })
	default: // newest first
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Timestamp.After(filtered[j].Timestamp) })
	}
	return filtered, nil
}

// Summary folds the full history into income/expense totals.
func (s *Service) Summary(username string) (*models.IncomeExpenseStats, error) {
	account, err := s.store.AccountForUser(username)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.Transactions(account.Number)
	if err != nil {
		return nil, err
	}

	stats := &models.IncomeExpenseStats{Income: decimal.Zero, Expense: decimal.Zero}
	for _, tx := range txs {
		if tx.Kind == models.Credit {
			stats.Income = stats.Income.Add(tx.Amount)
		} else {
			stats.Expense = stats.Expense.Add(tx.Amount)
		}
	}
	stats.Net = stats.Income.Sub(stats.Expense)
	return stats, nil
}

// CalculateEMI is the public calculator: no account required.
func (s *Service) CalculateEMI(principal, annualRate decimal.Decimal, termMonths int, withSchedule bool) (*emi.Result, error) {
	return emi.Calculate(principal, annualRate, termMonths, withSchedule)
}

// LoanInput carries the loan application form fields.
type LoanInput struct {
	Type       string
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal
	TermMonths int
	Purpose    string
}

// ApplyLoan files a pending loan application with its EMI precomputed.
func (s *Service) ApplyLoan(username string, in LoanInput) (*models.Loan, error) {
	account, err := s.store.AccountForUser(username)
	if err != nil {
		return nil, err
	}
	installment, err := emi.Compute(in.Principal, in.AnnualRate, in.TermMonths)
	if err != nil {
		return nil, err
	}

	loan := &models.Loan{
		ID:            s.gen.LoanID(),
		Username:      username,
		AccountNumber: account.Number,
		Type:          in.Type,
		Principal:     in.Principal,
		AnnualRate:    in.AnnualRate,
		TermMonths:    in.TermMonths,
		EMI:           installment,
		Purpose:       in.Purpose,
		Status:        models.LoanPending,
		AppliedAt:     time.Now(),
	}
	if err := s.store.CreateLoan(loan); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"loan": loan.ID, "user": username}).Info("loan application filed")
	return loan, nil
}

// Loans lists the user's loan applications.
func (s *Service) Loans(username string) ([]models.Loan, error) {
	return s.store.LoansForUser(username)
}

// LoanSchedule returns the payment schedule of one of the user's loans.
func (s *Service) LoanSchedule(username, loanID string) ([]models.PaymentSchedule, error) {
	loan, err := s.store.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Username != username {
		return nil, models.ErrNotFound
	}
	return s.store.Schedule(loanID)
}

// PendingLoans lists applications awaiting a decision.
func (s *Service) PendingLoans() ([]models.Loan, error) {
	return s.store.LoansByStatus(models.LoanPending)
}

// ApproveLoan transitions a pending loan to approved, disburses the
// principal to the borrower's account and persists the payment schedule.
// Approved and rejected are terminal; deciding twice is an error.
func (s *Service) ApproveLoan(loanID string) (*models.Loan, error) {
	loan, err := s.store.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status.Decided() {
		return nil, models.ErrInvalidTransition
	}

	rows, err := emi.Schedule(loan.Principal, loan.AnnualRate, loan.TermMonths)
	if err != nil {
		return nil, err
	}

	// The status flip comes last. Until it lands the loan stays pending
	// and approval can be retried; a failure after the credit reverses
	// the disbursement first.
	now := time.Now()
	if _, err := s.ledger.Credit(loan.AccountNumber, loan.Principal,
		fmt.Sprintf("Loan disbursement %s", loan.ID)); err != nil {
		return nil, err
	}

	schedule := make([]models.PaymentSchedule, len(rows))
	for i, row := range rows {
		schedule[i] = models.PaymentSchedule{
			LoanID:  loan.ID,
			Month:   row.Month,
			DueDate: now.AddDate(0, row.Month, 0),
			Amount:  row.EMI,
			Penalty: decimal.Zero,
		}
	}
	if err := s.store.SaveSchedule(loan.ID, schedule); err != nil {
		s.reverseDisbursement(loan)
		return nil, err
	}

	loan.Status = models.LoanApproved
	loan.DecidedAt = &now
	loan.DisbursedAt = &now
	if err := s.store.UpdateLoan(loan); err != nil {
		s.reverseDisbursement(loan)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"loan": loan.ID, "user": loan.Username}).Info("loan approved")
	return loan, nil
}

func (s *Service) reverseDisbursement(loan *models.Loan) {
	if _, err := s.ledger.Debit(loan.AccountNumber, loan.Principal,
		fmt.Sprintf("Loan disbursement reversal %s", loan.ID)); err != nil {
		s.log.WithFields(logrus.Fields{"loan": loan.ID}).
			Errorf("disbursement reversal failed, account %s holds an undecided disbursement: %v", loan.AccountNumber, err)
	}
}

// RejectLoan transitions a pending loan to rejected.
func (s *Service) RejectLoan(loanID string) (*models.Loan, error) {
	loan, err := s.store.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status.Decided() {
		return nil, models.ErrInvalidTransition
	}

	now := time.Now()
	loan.Status = models.LoanRejected
	loan.DecidedAt = &now
	if err := s.store.UpdateLoan(loan); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"loan": loan.ID, "user": loan.Username}).Info("loan rejected")
	return loan, nil
}

// UsersList returns all users without credential hashes.
func (s *Service) UsersList() ([]models.User, error) {
	users, err := s.store.Users()
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// SetUserStatus blocks or unblocks a user.
func (s *Service) SetUserStatus(username string, status models.UserStatus) (*models.User, error) {
	user, err := s.store.User(username)
	if err != nil {
		return nil, err
	}
	user.Status = status
	if err := s.store.UpdateUser(user); err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	s.log.Infof("user %s status set to %s", username, status)
	return user, nil
}

// AuditAccount checks the stored balance against the folded log.
func (s *Service) AuditAccount(number string) (*models.AuditReport, error) {
	return s.ledger.Audit(number)
}

// LoanOffer is a priced loan product.
type LoanOffer struct {
	Type       string          `json:"type"`
	AnnualRate decimal.Decimal `json:"interest_rate"`
	MaxMonths  int             `json:"max_term_months"`
}

// KeyRate returns the current central-bank key rate, falling back to the
// configured base rate when the source is unavailable.
func (s *Service) KeyRate() decimal.Decimal {
	if s.rates != nil {
		rate, err := s.rates.KeyRate()
		if err == nil {
			return decimal.NewFromFloat(rate)
		}
		s.log.Warnf("rate source unavailable, using base rate: %v", err)
	}
	return s.baseRate
}

// LoanOffers prices the loan products off the central-bank key rate. When
// the rate source is unavailable the configured base rate is used; offers
// never fail.
func (s *Service) LoanOffers() []LoanOffer {
	base := s.KeyRate()
	return []LoanOffer{
		{Type: "Home", AnnualRate: base.Add(decimal.NewFromFloat(1.5)).Round(2), MaxMonths: 360},
		{Type: "Car", AnnualRate: base.Add(decimal.NewFromFloat(2.0)).Round(2), MaxMonths: 84},
		{Type: "Personal", AnnualRate: base.Add(decimal.NewFromFloat(4.0)).Round(2), MaxMonths: 60},
	}
}
