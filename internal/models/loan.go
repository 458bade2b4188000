package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan application.
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanApproved LoanStatus = "approved"
	LoanRejected LoanStatus = "rejected"
)

// Decided reports whether the status is terminal. Approved and rejected
// loans accept no further transitions.
func (s LoanStatus) Decided() bool {
	return s == LoanApproved || s == LoanRejected
}

// Loan represents a loan application and, once approved, the running loan.
type Loan struct {
	ID            string          `json:"loan_id"`
	Username      string          `json:"username"`
	AccountNumber string          `json:"account_number"`
	Type          string          `json:"type"`
	Principal     decimal.Decimal `json:"amount"`
	AnnualRate    decimal.Decimal `json:"interest_rate"`
	TermMonths    int             `json:"tenure"`
	EMI           decimal.Decimal `json:"emi"`
	Purpose       string          `json:"purpose"`
	Status        LoanStatus      `json:"status"`
	AppliedAt     time.Time       `json:"applied_at"`
	DecidedAt     *time.Time      `json:"decided_at,omitempty"`
	DisbursedAt   *time.Time      `json:"disbursed_at,omitempty"`
}
