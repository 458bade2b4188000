package handler

import (
	"net/http"

	"github.com/Preetam8873/Nuvana/internal/config"
	"github.com/Preetam8873/Nuvana/internal/middleware"
	"github.com/gorilla/mux"
)

// Routes builds the full API router: a public surface, an authenticated
// user surface and an admin surface.
func (h *Handler) Routes(cfg *config.Config) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/key-rate", h.KeyRate).Methods(http.MethodGet)
	api.HandleFunc("/loan-offers", h.LoanOffers).Methods(http.MethodGet)
	api.HandleFunc("/emi/calculate", h.CalculateEMI).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.Auth(cfg))
	authed.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)
	authed.HandleFunc("/profile", h.UpdateProfile).Methods(http.MethodPut)
	authed.HandleFunc("/profile/password", h.ChangePassword).Methods(http.MethodPut)
	authed.HandleFunc("/account", h.Account).Methods(http.MethodGet)
	authed.HandleFunc("/deposit", h.Deposit).Methods(http.MethodPost)
	authed.HandleFunc("/withdraw", h.Withdraw).Methods(http.MethodPost)
	authed.HandleFunc("/transfer", h.Transfer).Methods(http.MethodPost)
	authed.HandleFunc("/transactions", h.Transactions).Methods(http.MethodGet)
	authed.HandleFunc("/summary", h.Summary).Methods(http.MethodGet)
	authed.HandleFunc("/loans", h.ApplyLoan).Methods(http.MethodPost)
	authed.HandleFunc("/loans", h.Loans).Methods(http.MethodGet)
	authed.HandleFunc("/loans/{id}/schedule", h.LoanSchedule).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.Auth(cfg), middleware.AdminOnly)
	admin.HandleFunc("/loans/pending", h.PendingLoans).Methods(http.MethodGet)
	admin.HandleFunc("/loans/{id}/approve", h.ApproveLoan).Methods(http.MethodPost)
	admin.HandleFunc("/loans/{id}/reject", h.RejectLoan).Methods(http.MethodPost)
	admin.HandleFunc("/users", h.Users).Methods(http.MethodGet)
	admin.HandleFunc("/users/{username}/block", h.BlockUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{username}/unblock", h.UnblockUser).Methods(http.MethodPost)
	admin.HandleFunc("/accounts/{number}/audit", h.AuditAccount).Methods(http.MethodGet)
	admin.HandleFunc("/accounts/{number}/transactions", h.AccountTransactions).Methods(http.MethodGet)

	return router
}
