// Package emi computes equated monthly installments and amortization
// schedules. All functions are pure; amounts are decimal with two-place
// currency rounding.
package emi

import (
	"math"

	"github.com/Preetam8873/Nuvana/internal/models"
	"github.com/shopspring/decimal"
)

// Installment is one row of an amortization schedule.
type Installment struct {
	Month     int             `json:"month"`
	EMI       decimal.Decimal `json:"emi"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Remaining decimal.Decimal `json:"remaining_balance"`
}

// Result bundles the installment with the totals the calculator reports.
type Result struct {
	EMI           decimal.Decimal `json:"emi"`
	TotalPayment  decimal.Decimal `json:"total_payment"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	Schedule      []Installment   `json:"schedule,omitempty"`
}

// Compute returns the fixed monthly installment for a loan of principal at
// annualRatePercent over termMonths.
//
// EMI = P*r*(1+r)^n / ((1+r)^n - 1), r = annualRatePercent/1200.
// A zero rate makes the formula divide by zero, so it falls back to plain
// linear repayment P/n. The installment is rounded up to the cent so the
// total paid never falls short of the principal.
func Compute(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if termMonths <= 0 {
		return decimal.Zero, models.ErrInvalidTerm
	}
	if principal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, models.ErrInvalidPrincipal
	}
	if annualRatePercent.IsNegative() {
		return decimal.Zero, models.ErrInvalidRate
	}

	if annualRatePercent.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(termMonths))).RoundUp(2), nil
	}

	p, _ := principal.Float64()
	rate, _ := annualRatePercent.Float64()
	r := rate / 1200
	pow := math.Pow(1+r, float64(termMonths))
	raw := p * r * pow / (pow - 1)
	return decimal.NewFromFloat(raw).RoundUp(2), nil
}

// Schedule builds the month-by-month amortization of the loan. Each month
// pays interest on the remaining balance at the monthly rate; the rest of
// the installment retires principal. The final installment is adjusted to
// clear the remaining balance exactly, so Remaining always ends at zero.
func Schedule(principal, annualRatePercent decimal.Decimal, termMonths int) ([]Installment, error) {
	installment, err := Compute(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}

	monthlyRate := annualRatePercent.Div(decimal.NewFromInt(1200))
	remaining := principal
	rows := make([]Installment, 0, termMonths)

	for month := 1; month <= termMonths; month++ {
		interest := remaining.Mul(monthlyRate).Round(2)
		principalPart := installment.Sub(interest)
		paid := installment

		if month == termMonths || principalPart.GreaterThan(remaining) {
			// Last installment clears whatever is left.
			principalPart = remaining
			paid = principalPart.Add(interest)
		}

		remaining = remaining.Sub(principalPart)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}

		rows = append(rows, Installment{
			Month:     month,
			EMI:       paid,
			Principal: principalPart,
			Interest:  interest,
			Remaining: remaining,
		})

		if remaining.IsZero() && month < termMonths {
			// Rounding retired the debt early; the remaining months
			// still appear with zero components so the schedule length
			// equals the term.
			for m := month + 1; m <= termMonths; m++ {
				rows = append(rows, Installment{Month: m})
			}
			break
		}
	}

	return rows, nil
}

// Calculate is the calculator-page entry point: installment, totals and
// optionally the full schedule.
func Calculate(principal, annualRatePercent decimal.Decimal, termMonths int, withSchedule bool) (*Result, error) {
	installment, err := Compute(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}
	rows, err := Schedule(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.EMI)
	}

	res := &Result{
		EMI:           installment,
		TotalPayment:  total,
		TotalInterest: total.Sub(principal),
	}
	if withSchedule {
		res.Schedule = rows
	}
	return res, nil
}
