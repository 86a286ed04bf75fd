// Package email sends goal notifications over SMTP.
package email

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
)

// Config holds SMTP settings for the sender.
type Config struct {
	Host        string
	Port        string
	Username    string
	Password    string
	SenderEmail string
}

// Sender handles sending emails via SMTP
type Sender struct {
	cfg Config
}

// NewSender creates a new email sender
func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg}
}

// SendGoalCompleted sends a celebration email for a completed savings goal.
func (s *Sender) SendGoalCompleted(to, goalName string, completedAt time.Time) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = fmt.Sprintf("¡Meta alcanzada: %s!", goalName)

	body := fmt.Sprintf(
		"¡Felicidades!\n\n"+
			"Tu meta de ahorro %q alcanzó su objetivo el %s.\n"+
			"El dinero ahorrado queda reservado para cumplirla.\n\n"+
			"— AhorraPlus",
		goalName, completedAt.Format("2006-01-02"),
	)
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}

	slog.Info("Email sent", "to", to, "subject", e.Subject)
	return nil
}
