// Package scheduler runs the recurring EMI collection job. Due
// installments are debited from the borrower's account; when the balance
// does not cover the installment a late penalty accrues and the payment
// is retried on the next run.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/Preetam8873/Nuvana/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Store is the persistence the collector needs.
type Store interface {
	LoansByStatus(status models.LoanStatus) ([]models.Loan, error)
	Schedule(loanID string) ([]models.PaymentSchedule, error)
	UpdateScheduleEntry(loanID string, entry models.PaymentSchedule) error
	User(username string) (*models.User, error)
}

// Ledger debits the borrower's account.
type Ledger interface {
	Debit(number string, amount decimal.Decimal, description string) (*models.Transaction, error)
}

// Mailer sends installment reminders. A nil Mailer disables them.
type Mailer interface {
	SendPaymentReminder(to, fullName string, dueDate time.Time, amount, penalty decimal.Decimal, overdue bool) error
}

// Collector walks the approved loans and settles their due installments.
type Collector struct {
	store   Store
	ledger  Ledger
	mailer  Mailer
	penalty decimal.Decimal
	log     *logrus.Logger

	now func() time.Time
}

func NewCollector(store Store, lgr Ledger, mailer Mailer, latePenalty decimal.Decimal, log *logrus.Logger) *Collector {
	return &Collector{
		store:   store,
		ledger:  lgr,
		mailer:  mailer,
		penalty: latePenalty,
		log:     log,
		now:     time.Now,
	}
}

// Run settles every due unpaid installment across all approved loans. It
// is safe to call from a cron job; per-loan failures are logged and do
// not stop the sweep.
func (c *Collector) Run() {
	loans, err := c.store.LoansByStatus(models.LoanApproved)
	if err != nil {
		c.log.Errorf("emi collection: listing loans: %v", err)
		return
	}

	for _, loan := range loans {
		if err := c.collectLoan(&loan); err != nil {
			c.log.WithFields(logrus.Fields{"loan": loan.ID}).Errorf("emi collection: %v", err)
		}
	}
}

func (c *Collector) collectLoan(loan *models.Loan) error {
	rows, err := c.store.Schedule(loan.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	now := c.now()
	for _, row := range rows {
		if row.Paid || row.DueDate.After(now) {
			continue
		}

		due := row.Amount.Add(row.Penalty)
		_, err := c.ledger.Debit(loan.AccountNumber, due,
			fmt.Sprintf("EMI payment %s month %d", loan.ID, row.Month))
		switch {
		case err == nil:
			paidAt := now
			row.Paid = true
			row.PaidAt = &paidAt
			if err := c.store.UpdateScheduleEntry(loan.ID, row); err != nil {
				return fmt.Errorf("marking month %d paid: %w", row.Month, err)
			}
			c.log.WithFields(logrus.Fields{
				"loan":   loan.ID,
				"month":  row.Month,
				"amount": due,
			}).Info("installment collected")
			c.remind(loan, row, false)

		case errors.Is(err, models.ErrInsufficientFunds):
			row.Penalty = row.Penalty.Add(c.penalty)
			if err := c.store.UpdateScheduleEntry(loan.ID, row); err != nil {
				return fmt.Errorf("recording penalty for month %d: %w", row.Month, err)
			}
			c.log.WithFields(logrus.Fields{
				"loan":    loan.ID,
				"month":   row.Month,
				"penalty": row.Penalty,
			}).Warn("installment overdue, penalty applied")
			c.remind(loan, row, true)

		default:
			return fmt.Errorf("debiting month %d: %w", row.Month, err)
		}
	}
	return nil
}

func (c *Collector) remind(loan *models.Loan, row models.PaymentSchedule, overdue bool) {
	if c.mailer == nil {
		return
	}
	user, err := c.store.User(loan.Username)
	if err != nil || user.Email == "" {
		return
	}
	go c.mailer.SendPaymentReminder(user.Email, user.FullName, row.DueDate, row.Amount, row.Penalty, overdue)
}
