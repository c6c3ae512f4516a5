package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// SMTPProvider sends mail through a plain SMTP relay (Gmail by default).
type SMTPProvider struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (p *SMTPProvider) Name() string { return "smtp" }

func (p *SMTPProvider) Send(_ context.Context, n Notification) error {
	if p.Username == "" || p.Password == "" {
		return fmt.Errorf("smtp credentials not configured")
	}

	e := email.NewEmail()
	e.From = p.From
	e.To = []string{n.To}
	e.Subject = n.Subject
	e.Text = []byte(n.Text)
	e.HTML = []byte(n.HTML)

	addr := fmt.Sprintf("%s:%d", p.Host, p.Port)
	return e.Send(addr, smtp.PlainAuth("", p.Username, p.Password, p.Host))
}
