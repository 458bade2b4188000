// Package storage persists all entities as flat JSON files in a data
// directory: users.json, accounts.json, transactions.json, loans.json and
// schedules.json. State is held in memory and flushed after each mutation
// with an atomic tmp-file + rename, so a crash mid-write never corrupts a
// file. The in-memory maps are the authoritative runtime state; a mutation
// whose flush fails is rolled back before the error is returned.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Preetam8873/Nuvana/internal/models"
)

const (
	usersFile        = "users.json"
	accountsFile     = "accounts.json"
	transactionsFile = "transactions.json"
	loansFile        = "loans.json"
	schedulesFile    = "schedules.json"
)

// Store is a flat-JSON persistence backend keyed by username, account
// number and loan id.
type Store struct {
	mu  sync.Mutex
	dir string

	users        map[string]models.User
	accounts     map[string]models.Account
	transactions map[string][]models.Transaction
	loans        map[string]models.Loan
	schedules    map[string][]models.PaymentSchedule
}

// Open loads the data directory, creating it if absent. Records with
// missing required fields are rejected rather than silently defaulted.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data dir: %v", models.ErrStorage, err)
	}

	s := &Store{
		dir:          dir,
		users:        make(map[string]models.User),
		accounts:     make(map[string]models.Account),
		transactions: make(map[string][]models.Transaction),
		loans:        make(map[string]models.Loan),
		schedules:    make(map[string][]models.PaymentSchedule),
	}

	if err := loadFile(dir, usersFile, &s.users); err != nil {
		return nil, err
	}
	if err := loadFile(dir, accountsFile, &s.accounts); err != nil {
		return nil, err
	}
	if err := loadFile(dir, transactionsFile, &s.transactions); err != nil {
		return nil, err
	}
	if err := loadFile(dir, loansFile, &s.loans); err != nil {
		return nil, err
	}
	if err := loadFile(dir, schedulesFile, &s.schedules); err != nil {
		return nil, err
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func loadFile(dir, name string, dst any) error {
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", models.ErrStorage, name, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(dst); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", models.ErrStorage, name, err)
	}
	return nil
}

// validate enforces the schema at the persistence boundary.
func (s *Store) validate() error {
	for name, u := range s.users {
		if u.Username == "" || u.Username != name || u.PasswordHash == "" {
			return fmt.Errorf("%w: %s: invalid record for %q", models.ErrStorage, usersFile, name)
		}
	}
	for number, a := range s.accounts {
		if a.Number == "" || a.Number != number || a.Username == "" {
			return fmt.Errorf("%w: %s: invalid record for %q", models.ErrStorage, accountsFile, number)
		}
		if _, ok := s.users[a.Username]; !ok {
			return fmt.Errorf("%w: %s: account %q owned by unknown user %q",
				models.ErrStorage, accountsFile, number, a.Username)
		}
	}
	for number, txs := range s.transactions {
		for _, tx := range txs {
			if tx.ID <= 0 || (tx.Kind != models.Credit && tx.Kind != models.Debit) || !tx.Amount.IsPositive() {
				return fmt.Errorf("%w: %s: invalid entry %d for %q",
					models.ErrStorage, transactionsFile, tx.ID, number)
			}
		}
	}
	for id, l := range s.loans {
		if l.ID == "" || l.ID != id || l.Username == "" || l.TermMonths <= 0 {
			return fmt.Errorf("%w: %s: invalid record for %q", models.ErrStorage, loansFile, id)
		}
	}
	return nil
}

// saveFile writes v to name via a temp file and rename so readers never
// observe a partial file.
func (s *Store) saveFile(name string, v any) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: writing %s: %v", models.ErrStorage, name, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: encoding %s: %v", models.ErrStorage, name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: closing %s: %v", models.ErrStorage, name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", models.ErrStorage, name, err)
	}
	return nil
}

// CreateUser stores a new user.
func (s *Store) CreateUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return models.ErrDuplicateUser
	}
	s.users[u.Username] = *u
	if err := s.saveFile(usersFile, s.users); err != nil {
		delete(s.users, u.Username)
		return err
	}
	return nil
}

// User returns a copy of the stored user.
func (s *Store) User(username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

// UpdateUser replaces an existing user record.
func (s *Store) UpdateUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[u.Username]
	if !ok {
		return models.ErrNotFound
	}
	s.users[u.Username] = *u
	if err := s.saveFile(usersFile, s.users); err != nil {
		s.users[u.Username] = prev
		return err
	}
	return nil
}

// Users lists all users.
func (s *Store) Users() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

// CreateAccount stores a new account.
func (s *Store) CreateAccount(a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.Number]; ok {
		return fmt.Errorf("%w: account %s already exists", models.ErrStorage, a.Number)
	}
	s.accounts[a.Number] = *a
	if err := s.saveFile(accountsFile, s.accounts); err != nil {
		delete(s.accounts, a.Number)
		return err
	}
	return nil
}

// Account returns a copy of the account with the given number.
func (s *Store) Account(number string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[number]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

// AccountForUser returns the user's primary account.
func (s *Store) AccountForUser(username string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			cp := a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

// Transactions returns a copy of the account's transaction log in
// insertion order.
func (s *Store) Transactions(number string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[number]; !ok {
		return nil, models.ErrNotFound
	}
	out := make([]models.Transaction, len(s.transactions[number]))
	copy(out, s.transactions[number])
	return out, nil
}

// ApplyTransaction atomically appends tx to the account's log and replaces
// the stored account (with its updated balance). The transaction's sequence
// id is assigned here. On failure neither the balance nor the log changes.
func (s *Store) ApplyTransaction(a *models.Account, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevAcc, ok := s.accounts[a.Number]
	if !ok {
		return models.ErrNotFound
	}
	prevLen := len(s.transactions[a.Number])

	tx.ID = int64(prevLen) + 1
	s.transactions[a.Number] = append(s.transactions[a.Number], *tx)
	s.accounts[a.Number] = *a

	if err := s.flushLedger(); err != nil {
		s.transactions[a.Number] = s.transactions[a.Number][:prevLen]
		s.accounts[a.Number] = prevAcc
		return err
	}
	return nil
}

// ApplyTransfer atomically records a debit on from and a credit on to.
func (s *Store) ApplyTransfer(from, to *models.Account, debit, credit *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevFrom, okFrom := s.accounts[from.Number]
	prevTo, okTo := s.accounts[to.Number]
	if !okFrom || !okTo {
		return models.ErrNotFound
	}
	prevFromLen := len(s.transactions[from.Number])
	prevToLen := len(s.transactions[to.Number])

	debit.ID = int64(prevFromLen) + 1
	credit.ID = int64(prevToLen) + 1
	s.transactions[from.Number] = append(s.transactions[from.Number], *debit)
	s.transactions[to.Number] = append(s.transactions[to.Number], *credit)
	s.accounts[from.Number] = *from
	s.accounts[to.Number] = *to

	if err := s.flushLedger(); err != nil {
		s.transactions[from.Number] = s.transactions[from.Number][:prevFromLen]
		s.transactions[to.Number] = s.transactions[to.Number][:prevToLen]
		s.accounts[from.Number] = prevFrom
		s.accounts[to.Number] = prevTo
		return err
	}
	return nil
}

func (s *Store) flushLedger() error {
	if err := s.saveFile(transactionsFile, s.transactions); err != nil {
		return err
	}
	return s.saveFile(accountsFile, s.accounts)
}

// CreateLoan stores a new loan application.
func (s *Store) CreateLoan(l *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[l.ID]; ok {
		return fmt.Errorf("%w: loan %s already exists", models.ErrStorage, l.ID)
	}
	s.loans[l.ID] = *l
	if err := s.saveFile(loansFile, s.loans); err != nil {
		delete(s.loans, l.ID)
		return err
	}
	return nil
}

// Loan returns a copy of the loan with the given id.
func (s *Store) Loan(id string) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &l, nil
}

// LoansForUser lists the user's loans.
func (s *Store) LoansForUser(username string) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Loan
	for _, l := range s.loans {
		if l.Username == username {
			out = append(out, l)
		}
	}
	return out, nil
}

// LoansByStatus lists loans in the given lifecycle state.
func (s *Store) LoansByStatus(status models.LoanStatus) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Loan
	for _, l := range s.loans {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

// UpdateLoan replaces an existing loan record.
func (s *Store) UpdateLoan(l *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.loans[l.ID]
	if !ok {
		return models.ErrNotFound
	}
	s.loans[l.ID] = *l
	if err := s.saveFile(loansFile, s.loans); err != nil {
		s.loans[l.ID] = prev
		return err
	}
	return nil
}

// SaveSchedule stores the full payment schedule for a loan.
func (s *Store) SaveSchedule(loanID string, rows []models.PaymentSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.schedules[loanID]
	cp := make([]models.PaymentSchedule, len(rows))
	copy(cp, rows)
	s.schedules[loanID] = cp
	if err := s.saveFile(schedulesFile, s.schedules); err != nil {
		if had {
			s.schedules[loanID] = prev
		} else {
			delete(s.schedules, loanID)
		}
		return err
	}
	return nil
}

// Schedule returns a copy of the loan's payment schedule.
func (s *Store) Schedule(loanID string) ([]models.PaymentSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.schedules[loanID]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := make([]models.PaymentSchedule, len(rows))
	copy(out, rows)
	return out, nil
}

// UpdateScheduleEntry replaces the schedule row for (loanID, month).
func (s *Store) UpdateScheduleEntry(loanID string, entry models.PaymentSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.schedules[loanID]
	if !ok {
		return models.ErrNotFound
	}
	for i, row := range rows {
		if row.Month == entry.Month {
			prev := rows[i]
			rows[i] = entry
			if err := s.saveFile(schedulesFile, s.schedules); err != nil {
				rows[i] = prev
				return err
			}
			return nil
		}
	}
	return models.ErrNotFound
}

// Close flushes nothing; every mutation is already durable. Kept so both
// backends expose the same lifecycle.
func (s *Store) Close() error { return nil }
