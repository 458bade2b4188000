package models

import "github.com/shopspring/decimal"

// IncomeExpenseStats summarizes an account's transaction history.
type IncomeExpenseStats struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net_balance"`
}

// AuditReport compares the stored running balance against the balance
// derived by folding the transaction log.
type AuditReport struct {
	AccountNumber   string          `json:"account_number"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	DerivedBalance  decimal.Decimal `json:"derived_balance"`
	TransactionsLen int             `json:"transactions"`
	Consistent      bool            `json:"consistent"`
}
