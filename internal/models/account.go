package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus marks whether an account accepts operations.
type AccountStatus string

const (
	AccountActive  AccountStatus = "Active"
	AccountBlocked AccountStatus = "Blocked"
)

// Account is a customer's primary account. Balance is a running total kept
// in lockstep with the transaction log; the two must never diverge.
type Account struct {
	Number    string          `json:"account_number"`
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"balance"`
	Type      string          `json:"account_type"`
	Status    AccountStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}
