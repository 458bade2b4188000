// Package handler exposes the service over HTTP with JSON bodies.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Preetam8873/Nuvana/internal/middleware"
	"github.com/Preetam8873/Nuvana/internal/models"
	"github.com/Preetam8873/Nuvana/internal/service"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorf("failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidTerm),
		errors.Is(err, models.ErrInvalidPrincipal),
		errors.Is(err, models.ErrInvalidRate),
		errors.Is(err, models.ErrWeakPassword),
		errors.Is(err, models.ErrSameAccount):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrUserBlocked):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateUser),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInvalidTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Errorf("internal error: %v", err)
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type registerResponse struct {
	User    *models.User    `json:"user"`
	Account *models.Account `json:"account"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username and password are required"})
		return
	}
	user, account, err := h.svc.Register(service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	user.PasswordHash = ""
	h.writeJSON(w, http.StatusCreated, registerResponse{User: user, Account: account})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	token, err := h.svc.Login(req.Username, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// KeyRate returns the current key rate used for loan pricing.
func (h *Handler) KeyRate(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"key_rate": h.svc.KeyRate()})
}

// LoanOffers lists the priced loan products.
func (h *Handler) LoanOffers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.LoanOffers())
}

type emiRequest struct {
	Principal    decimal.Decimal `json:"principal"`
	AnnualRate   decimal.Decimal `json:"annual_rate"`
	TermMonths   int             `json:"term_months"`
	WithSchedule bool            `json:"with_schedule"`
}

// CalculateEMI is the public loan calculator.
func (h *Handler) CalculateEMI(w http.ResponseWriter, r *http.Request) {
	var req emiRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.CalculateEMI(req.Principal, req.AnnualRate, req.TermMonths, req.WithSchedule)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Profile returns the authenticated user's profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Profile(middleware.Username(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

type profileUpdateRequest struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// UpdateProfile changes the user's contact details.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.svc.UpdateProfile(middleware.Username(r.Context()), req.Email, req.Phone, req.Address)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the user's password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "current and new passwords are required"})
		return
	}
	if err := h.svc.ChangePassword(middleware.Username(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// Account returns the user's primary account.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.AccountSummary(middleware.Username(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

type moneyRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Deposit credits the user's account.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req moneyRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.svc.Deposit(middleware.Username(r.Context()), req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// Withdraw debits the user's account.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req moneyRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.svc.Withdraw(middleware.Username(r.Context()), req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

type transferRequest struct {
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Transfer moves money to another account.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.svc.Transfer(middleware.Username(r.Context()), req.ToAccount, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// transactionFilter reads the kind, from, to (RFC 3339) and sort query
// parameters. A false return means the response is already written.
func (h *Handler) transactionFilter(w http.ResponseWriter, r *http.Request) (service.TransactionFilter, bool) {
	q := r.URL.Query()
	filter := service.TransactionFilter{
		Kind: models.TransactionKind(q.Get("kind")),
		Sort: q.Get("sort"),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from date"})
			return filter, false
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to date"})
			return filter, false
		}
		filter.To = &to
	}
	return filter, true
}

// Transactions returns the filtered transaction history.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.transactionFilter(w, r)
	if !ok {
		return
	}
	txs, err := h.svc.Transactions(middleware.Username(r.Context()), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// AccountTransactions is the admin monitoring view: any account's
// filtered history, same query parameters as Transactions.
func (h *Handler) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.transactionFilter(w, r)
	if !ok {
		return
	}
	txs, err := h.svc.TransactionsForAccount(mux.Vars(r)["number"], filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// Summary returns income/expense totals for the user.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Summary(middleware.Username(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

type loanRequest struct {
	Type       string          `json:"type"`
	Principal  decimal.Decimal `json:"principal"`
	AnnualRate decimal.Decimal `json:"annual_rate"`
	TermMonths int             `json:"term_months"`
	Purpose    string          `json:"purpose"`
}

// ApplyLoan files a loan application.
func (h *Handler) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if !h.decode(w, r, &req) {
		return
	}
	loan, err := h.svc.ApplyLoan(middleware.Username(r.Context()), service.LoanInput{
		Type:       req.Type,
		Principal:  req.Principal,
		AnnualRate: req.AnnualRate,
		TermMonths: req.TermMonths,
		Purpose:    req.Purpose,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loan)
}

// Loans lists the user's loan applications.
func (h *Handler) Loans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.svc.Loans(middleware.Username(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loans)
}

// LoanSchedule returns the payment schedule of one of the user's loans.
func (h *Handler) LoanSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.svc.LoanSchedule(middleware.Username(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedule)
}

// PendingLoans lists applications awaiting a decision.
func (h *Handler) PendingLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.svc.PendingLoans()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loans)
}

// ApproveLoan approves a pending loan and disburses the principal.
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.svc.ApproveLoan(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

// RejectLoan rejects a pending loan.
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.svc.RejectLoan(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

// Users lists all registered users.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.UsersList()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

// BlockUser prevents a user from logging in.
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.SetUserStatus(mux.Vars(r)["username"], models.UserBlocked)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// UnblockUser restores a blocked user.
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.SetUserStatus(mux.Vars(r)["username"], models.UserActive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// AuditAccount compares an account's balance against its transaction log.
func (h *Handler) AuditAccount(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.AuditAccount(mux.Vars(r)["number"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}
