package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentSchedule is one monthly installment of an approved loan.
// Entries are created at disbursement and collected by the scheduler.
type PaymentSchedule struct {
	LoanID  string          `json:"loan_id"`
	Month   int             `json:"month"`
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
	Paid    bool            `json:"paid"`
	Penalty decimal.Decimal `json:"penalty"`
	PaidAt  *time.Time      `json:"paid_at,omitempty"`
}
