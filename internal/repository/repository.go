// Package repository is the PostgreSQL persistence backend. It mirrors the
// flat-JSON store's behavior; the atomic ledger writes run inside SQL
// transactions.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Preetam8873/Nuvana/internal/models"
	"github.com/lib/pq"
)

// Repository provides database operations over the bank schema.
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrStorage, op, err)
}

// CreateUser creates a new user.
func (r *Repository) CreateUser(u *models.User) error {
	query := `
		INSERT INTO bank.users (username, email, full_name, phone, address, password_hash, status, admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(query, u.Username, u.Email, u.FullName, u.Phone, u.Address,
		u.PasswordHash, u.Status, u.Admin, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return models.ErrDuplicateUser
		}
		return storageErr("create user", err)
	}
	return nil
}

// User retrieves a user by username.
func (r *Repository) User(username string) (*models.User, error) {
	u := &models.User{}
	query := `
		SELECT username, email, full_name, phone, address, password_hash, status, admin, created_at
		FROM bank.users
		WHERE username = $1`
	err := r.db.QueryRow(query, username).
		Scan(&u.Username, &u.Email, &u.FullName, &u.Phone, &u.Address,
			&u.PasswordHash, &u.Status, &u.Admin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find user", err)
	}
	return u, nil
}

// UpdateUser replaces the mutable user fields.
func (r *Repository) UpdateUser(u *models.User) error {
	query := `
		UPDATE bank.users
		SET email = $2, full_name = $3, phone = $4, address = $5, password_hash = $6, status = $7
		WHERE username = $1`
	res, err := r.db.Exec(query, u.Username, u.Email, u.FullName, u.Phone, u.Address, u.PasswordHash, u.Status)
	if err != nil {
		return storageErr("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update user", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Users lists all users.
func (r *Repository) Users() ([]models.User, error) {
	query := `
		SELECT username, email, full_name, phone, address, password_hash, status, admin, created_at
		FROM bank.users
		ORDER BY created_at`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.Username, &u.Email, &u.FullName, &u.Phone, &u.Address,
			&u.PasswordHash, &u.Status, &u.Admin, &u.CreatedAt); err != nil {
			return nil, storageErr("scan user", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list users", err)
	}
	return out, nil
}

// CreateAccount creates a new account.
func (r *Repository) CreateAccount(a *models.Account) error {
	query := `
		INSERT INTO bank.accounts (number, username, balance, type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Exec(query, a.Number, a.Username, a.Balance, a.Type, a.Status, a.CreatedAt); err != nil {
		return storageErr("create account", err)
	}
	return nil
}

// Account retrieves an account by number.
func (r *Repository) Account(number string) (*models.Account, error) {
	return scanAccount(r.db.QueryRow(`
		SELECT number, username, balance, type, status, created_at
		FROM bank.accounts
		WHERE number = $1`, number))
}

// AccountForUser retrieves the user's primary account.
func (r *Repository) AccountForUser(username string) (*models.Account, error) {
	return scanAccount(r.db.QueryRow(`
		SELECT number, username, balance, type, status, created_at
		FROM bank.accounts
		WHERE username = $1
		ORDER BY created_at
		LIMIT 1`, username))
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.Number, &a.Username, &a.Balance, &a.Type, &a.Status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find account", err)
	}
	return a, nil
}

// Transactions returns the account's log ordered by sequence id.
func (r *Repository) Transactions(number string) ([]models.Transaction, error) {
	if _, err := r.Account(number); err != nil {
		return nil, err
	}
	query := `
		SELECT seq, account_number, kind, amount, description, created_at
		FROM bank.transactions
		WHERE account_number = $1
		ORDER BY seq`
	rows, err := r.db.Query(query, number)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountNumber, &tx.Kind, &tx.Amount, &tx.Description, &tx.Timestamp); err != nil {
			return nil, storageErr("scan transaction", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list transactions", err)
	}
	return out, nil
}

// ApplyTransaction records tx and the updated balance in one SQL
// transaction. The per-account sequence id is assigned here.
func (r *Repository) ApplyTransaction(a *models.Account, tx *models.Transaction) error {
	dbtx, err := r.db.Begin()
	if err != nil {
		return storageErr("begin", err)
	}
	if err := insertEntry(dbtx, a, tx); err != nil {
		dbtx.Rollback()
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// ApplyTransfer records both legs of a transfer in one SQL transaction.
func (r *Repository) ApplyTransfer(from, to *models.Account, debit, credit *models.Transaction) error {
	dbtx, err := r.db.Begin()
	if err != nil {
		return storageErr("begin", err)
	}
	if err := insertEntry(dbtx, from, debit); err != nil {
		dbtx.Rollback()
		return err
	}
	if err := insertEntry(dbtx, to, credit); err != nil {
		dbtx.Rollback()
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func insertEntry(dbtx *sql.Tx, a *models.Account, tx *models.Transaction) error {
	err := dbtx.QueryRow(`
		INSERT INTO bank.transactions (seq, account_number, kind, amount, description, created_at)
		SELECT COALESCE(MAX(seq), 0) + 1, $1, $2, $3, $4, $5
		FROM bank.transactions WHERE account_number = $1
		RETURNING seq`,
		tx.AccountNumber, tx.Kind, tx.Amount, tx.Description, tx.Timestamp).
		Scan(&tx.ID)
	if err != nil {
		return storageErr("insert transaction", err)
	}
	res, err := dbtx.Exec(`UPDATE bank.accounts SET balance = $2 WHERE number = $1`, a.Number, a.Balance)
	if err != nil {
		return storageErr("update balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update balance", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CreateLoan stores a new loan application.
func (r *Repository) CreateLoan(l *models.Loan) error {
	query := `
		INSERT INTO bank.loans (id, username, account_number, type, principal, annual_rate, term_months, emi, purpose, status, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(query, l.ID, l.Username, l.AccountNumber, l.Type, l.Principal,
		l.AnnualRate, l.TermMonths, l.EMI, l.Purpose, l.Status, l.AppliedAt)
	if err != nil {
		return storageErr("create loan", err)
	}
	return nil
}

const loanSelect = `
	SELECT id, username, account_number, type, principal, annual_rate, term_months, emi, purpose, status, applied_at, decided_at, disbursed_at
	FROM bank.loans`

// Loan retrieves a loan by id.
func (r *Repository) Loan(id string) (*models.Loan, error) {
	l := &models.Loan{}
	err := r.db.QueryRow(loanSelect+` WHERE id = $1`, id).
		Scan(&l.ID, &l.Username, &l.AccountNumber, &l.Type, &l.Principal, &l.AnnualRate,
			&l.TermMonths, &l.EMI, &l.Purpose, &l.Status, &l.AppliedAt, &l.DecidedAt, &l.DisbursedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find loan", err)
	}
	return l, nil
}

// LoansForUser lists the user's loans, newest first.
func (r *Repository) LoansForUser(username string) ([]models.Loan, error) {
	return r.queryLoans(loanSelect+` WHERE username = $1 ORDER BY applied_at DESC`, username)
}

// LoansByStatus lists loans in the given lifecycle state.
func (r *Repository) LoansByStatus(status models.LoanStatus) ([]models.Loan, error) {
	return r.queryLoans(loanSelect+` WHERE status = $1 ORDER BY applied_at`, status)
}

func (r *Repository) queryLoans(query string, args ...any) ([]models.Loan, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("list loans", err)
	}
	defer rows.Close()

	var out []models.Loan
	for rows.Next() {
		var l models.Loan
		if err := rows.Scan(&l.ID, &l.Username, &l.AccountNumber, &l.Type, &l.Principal, &l.AnnualRate,
			&l.TermMonths, &l.EMI, &l.Purpose, &l.Status, &l.AppliedAt, &l.DecidedAt, &l.DisbursedAt); err != nil {
			return nil, storageErr("scan loan", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list loans", err)
	}
	return out, nil
}

// UpdateLoan replaces the loan's lifecycle fields.
func (r *Repository) UpdateLoan(l *models.Loan) error {
	query := `
		UPDATE bank.loans
		SET status = $2, decided_at = $3, disbursed_at = $4
		WHERE id = $1`
	res, err := r.db.Exec(query, l.ID, l.Status, l.DecidedAt, l.DisbursedAt)
	if err != nil {
		return storageErr("update loan", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update loan", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SaveSchedule stores the full payment schedule for a loan.
func (r *Repository) SaveSchedule(loanID string, rows []models.PaymentSchedule) error {
	dbtx, err := r.db.Begin()
	if err != nil {
		return storageErr("begin", err)
	}
	if _, err := dbtx.Exec(`DELETE FROM bank.payment_schedules WHERE loan_id = $1`, loanID); err != nil {
		dbtx.Rollback()
		return storageErr("clear schedule", err)
	}
	for _, row := range rows {
		_, err := dbtx.Exec(`
			INSERT INTO bank.payment_schedules (loan_id, month, due_date, amount, paid, penalty, paid_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			loanID, row.Month, row.DueDate, row.Amount, row.Paid, row.Penalty, row.PaidAt)
		if err != nil {
			dbtx.Rollback()
			return storageErr("insert schedule row", err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// Schedule returns the loan's payment schedule ordered by month.
func (r *Repository) Schedule(loanID string) ([]models.PaymentSchedule, error) {
	rows, err := r.db.Query(`
		SELECT loan_id, month, due_date, amount, paid, penalty, paid_at
		FROM bank.payment_schedules
		WHERE loan_id = $1
		ORDER BY month`, loanID)
	if err != nil {
		return nil, storageErr("list schedule", err)
	}
	defer rows.Close()

	var out []models.PaymentSchedule
	for rows.Next() {
		var row models.PaymentSchedule
		if err := rows.Scan(&row.LoanID, &row.Month, &row.DueDate, &row.Amount, &row.Paid, &row.Penalty, &row.PaidAt); err != nil {
			return nil, storageErr("scan schedule row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list schedule", err)
	}
	if out == nil {
		return nil, models.ErrNotFound
	}
	return out, nil
}

// UpdateScheduleEntry replaces the schedule row for (loanID, month).
func (r *Repository) UpdateScheduleEntry(loanID string, entry models.PaymentSchedule) error {
	res, err := r.db.Exec(`
		UPDATE bank.payment_schedules
		SET paid = $3, penalty = $4, paid_at = $5
		WHERE loan_id = $1 AND month = $2`,
		loanID, entry.Month, entry.Paid, entry.Penalty, entry.PaidAt)
	if err != nil {
		return storageErr("update schedule row", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update schedule row", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
