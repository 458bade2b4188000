package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/Preetam8873/Nuvana/internal/config"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Sender) send(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %v: %v", e.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Infof("Email sent to %v: %s", e.To, e.Subject)
	return nil
}

// SendPaymentReminder notifies about an EMI installment: either a
// collected payment or an overdue one with its penalty.
func (s *Sender) SendPaymentReminder(to, fullName string, dueDate time.Time, amount, penalty decimal.Decimal, overdue bool) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	if overdue {
		e.Subject = "Overdue Loan Installment"
	} else {
		e.Subject = "Loan Installment Collected"
	}

	body := fmt.Sprintf("Dear %s,\n\n", fullName)
	if overdue {
		body += fmt.Sprintf(
			"Your loan installment of ₹%s was due on %s and could not be collected.\n"+
				"A penalty of ₹%s has been applied.\n"+
				"Please fund your account to avoid further penalties.\n",
			amount.StringFixed(2), dueDate.Format("2006-01-02"), penalty.StringFixed(2),
		)
	} else {
		body += fmt.Sprintf(
			"Your loan installment of ₹%s due on %s has been collected from your account.\n",
			amount.StringFixed(2), dueDate.Format("2006-01-02"),
		)
	}
	body += "\nBest regards,\nNuvana Bank"
	e.Text = []byte(body)

	return s.send(e)
}

// SendTransactionNotification notifies about a credit or debit on the
// given account.
func (s *Sender) SendTransactionNotification(to, fullName, accountNumber string, amount, balance decimal.Decimal, kind string) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = fmt.Sprintf("%s Notification", kind)

	body := fmt.Sprintf("Dear %s,\n\n", fullName)
	body += fmt.Sprintf(
		"A %s of ₹%s was posted to account %s.\n"+
			"Transaction time: %s\n"+
			"Current balance: ₹%s\n",
		kind, amount.StringFixed(2), accountNumber,
		time.Now().Format("2006-01-02 15:04:05"), balance.StringFixed(2),
	)
	body += "\nBest regards,\nNuvana Bank"
	e.Text = []byte(body)

	return s.send(e)
}
