// Package ledger implements the account ledger: credits, debits and
// transfers that keep the stored running balance and the append-only
// transaction log consistent with each other.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/Preetam8873/Nuvana/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Store is the persistence the ledger needs. ApplyTransaction and
// ApplyTransfer must update balance and log atomically: a failure leaves
// both unchanged.
type Store interface {
	Account(number string) (*models.Account, error)
	Transactions(number string) ([]models.Transaction, error)
	ApplyTransaction(a *models.Account, tx *models.Transaction) error
	ApplyTransfer(from, to *models.Account, debit, credit *models.Transaction) error
}

// Ledger serializes all mutating operations per account, so concurrent
// debits cannot overdraw a balance they both just read.
type Ledger struct {
	store Store
	log   *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ledger over the given store.
func New(store Store, log *logrus.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex guarding one account's read-modify-write.
func (l *Ledger) lock(number string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[number]
	if !ok {
		m = &sync.Mutex{}
		l.locks[number] = m
	}
	return m
}

// Credit increases the account balance by amount and appends a credit
// transaction.
func (l *Ledger) Credit(number string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}

	m := l.lock(number)
	m.Lock()
	defer m.Unlock()

	acc, err := l.store.Account(number)
	if err != nil {
		return nil, err
	}

	acc.Balance = acc.Balance.Add(amount)
	tx := &models.Transaction{
		AccountNumber: number,
		Kind:          models.Credit,
		Amount:        amount,
		Description:   description,
		Timestamp:     time.Now(),
	}
	if err := l.store.ApplyTransaction(acc, tx); err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{"account": number, "amount": amount.String()}).Info("credit applied")
	return tx, nil
}

// Debit decreases the account balance by amount and appends a debit
// transaction. The balance never goes negative.
func (l *Ledger) Debit(number string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}

	m := l.lock(number)
	m.Lock()
	defer m.Unlock()

	acc, err := l.store.Account(number)
	if err != nil {
		return nil, err
	}
	if acc.Balance.LessThan(amount) {
		return nil, models.ErrInsufficientFunds
	}

	acc.Balance = acc.Balance.Sub(amount)
	tx := &models.Transaction{
		AccountNumber: number,
		Kind:          models.Debit,
		Amount:        amount,
		Description:   description,
		Timestamp:     time.Now(),
	}
	if err := l.store.ApplyTransaction(acc, tx); err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{"account": number, "amount": amount.String()}).Info("debit applied")
	return tx, nil
}

// Transfer debits from and credits to in one atomic step. Both account
// locks are taken in lexicographic order so two opposing transfers cannot
// deadlock.
func (l *Ledger) Transfer(from, to string, amount decimal.Decimal, description string) (*models.Transaction, *models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, nil, models.ErrInvalidAmount
	}
	if from == to {
		return nil, nil, models.ErrSameAccount
	}

	first, second := from, to
	if second < first {
		first, second = second, first
	}
	mFirst := l.lock(first)
	mSecond := l.lock(second)
	mFirst.Lock()
	defer mFirst.Unlock()
	mSecond.Lock()
	defer mSecond.Unlock()

	src, err := l.store.Account(from)
	if err != nil {
		return nil, nil, err
	}
	dst, err := l.store.Account(to)
	if err != nil {
		return nil, nil, err
	}
	if src.Balance.LessThan(amount) {
		return nil, nil, models.ErrInsufficientFunds
	}

	now := time.Now()
	src.Balance = src.Balance.Sub(amount)
	dst.Balance = dst.Balance.Add(amount)
	debit := &models.Transaction{
		AccountNumber: from,
		Kind:          models.Debit,
		Amount:        amount,
		Description:   fmt.Sprintf("Transfer to %s: %s", to, description),
		Timestamp:     now,
	}
	credit := &models.Transaction{
		AccountNumber: to,
		Kind:          models.Credit,
		Amount:        amount,
		Description:   fmt.Sprintf("Transfer from %s: %s", from, description),
		Timestamp:     now,
	}
	if err := l.store.ApplyTransfer(src, dst, debit, credit); err != nil {
		return nil, nil, err
	}

	l.log.WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"amount": amount.String(),
	}).Info("transfer applied")
	return debit, credit, nil
}

// Audit folds the transaction log and compares the result with the stored
// running balance. The two representations must never diverge.
func (l *Ledger) Audit(number string) (*models.AuditReport, error) {
	m := l.lock(number)
	m.Lock()
	defer m.Unlock()

	acc, err := l.store.Account(number)
	if err != nil {
		return nil, err
	}
	txs, err := l.store.Transactions(number)
	if err != nil {
		return nil, err
	}

	derived := decimal.Zero
	for _, tx := range txs {
		if tx.Kind == models.Credit {
			derived = derived.Add(tx.Amount)
		} else {
			derived = derived.Sub(tx.Amount)
		}
	}

	return &models.AuditReport{
		AccountNumber:   number,
		StoredBalance:   acc.Balance,
		DerivedBalance:  derived,
		TransactionsLen: len(txs),
		Consistent:      acc.Balance.Equal(derived),
	}, nil
}
