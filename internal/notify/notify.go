// Package notify delivers best-effort out-of-band alerts to the admin.
// Providers form an ordered fallback chain; failures are logged and
// swallowed so notification trouble can never fail message persistence.
package notify

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"portfolio-chat/internal/chat"
)

// Notification is one outbound email.
type Notification struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Provider is a single delivery strategy. Send returns an error only to
// let the dispatcher advance to the next provider in the chain.
type Provider interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Results reports which channels reached the admin. WhatsApp is satisfied
// by embedding a direct wa.me link in the email, so it can only be true
// when the email itself went out.
type Results struct {
	Email    bool `json:"email"`
	WhatsApp bool `json:"whatsapp"`
}

// NewMessageData describes a visitor message to announce.
type NewMessageData struct {
	VisitorName     string
	Message         string
	ConversationID  string
	VisitorWhatsApp string
}

type Dispatcher struct {
	providers  []Provider
	adminEmail string
	siteURL    string
	log        zerolog.Logger
}

func NewDispatcher(adminEmail, siteURL string, log zerolog.Logger, providers ...Provider) *Dispatcher {
	return &Dispatcher{
		providers:  providers,
		adminEmail: adminEmail,
		siteURL:    siteURL,
		log:        log,
	}
}

// Send walks the provider chain until one delivery succeeds. It never
// returns an error; the boolean result is all callers get.
func (d *Dispatcher) Send(ctx context.Context, n Notification) bool {
	if n.To == "" {
		d.log.Warn().Msg("notification skipped: no recipient configured")
		return false
	}
	for _, p := range d.providers {
		err := p.Send(ctx, n)
		if err == nil {
			d.log.Info().Str("provider", p.Name()).Str("to", n.To).Msg("notification sent")
			return true
		}
		d.log.Error().Err(err).Str("provider", p.Name()).Msg("notification provider failed")
	}
	return false
}

// SendNewMessageNotifications announces a visitor message to the admin.
func (d *Dispatcher) SendNewMessageNotifications(ctx context.Context, data NewMessageData) Results {
	chatLink := fmt.Sprintf("%s/admin/chat?conversation=%s", d.siteURL, url.QueryEscape(data.ConversationID))
	waLink := WhatsAppLink(data.VisitorWhatsApp, "Hi "+data.VisitorName+", thanks for contacting me!")

	subject := fmt.Sprintf("New chat message from %s", data.VisitorName)
	text := fmt.Sprintf("New chat message from %s\n\n%s\n\nReply in chat: %s\n", data.VisitorName, data.Message, chatLink)
	htmlBody := fmt.Sprintf(
		"<p><strong>From:</strong> %s</p><blockquote>%s</blockquote><p><a href=%q>Reply in chat</a></p>",
		html.EscapeString(data.VisitorName), html.EscapeString(data.Message), chatLink)
	if waLink != "" {
		text += fmt.Sprintf("Message on WhatsApp: %s\n", waLink)
		htmlBody += fmt.Sprintf("<p><a href=%q>Message on WhatsApp</a></p>", waLink)
	}

	sent := d.Send(ctx, Notification{
		To:      d.adminEmail,
		Subject: subject,
		HTML:    htmlBody,
		Text:    text,
	})
	return Results{Email: sent, WhatsApp: sent && waLink != ""}
}

// NotifyNewMessage adapts the dispatcher to the chat handler's Notifier
// contract.
func (d *Dispatcher) NotifyNewMessage(ctx context.Context, conv *chat.Conversation, msg *chat.Message) {
	results := d.SendNewMessageNotifications(ctx, NewMessageData{
		VisitorName:     msg.SenderName,
		Message:         msg.Message,
		ConversationID:  conv.VisitorID,
		VisitorWhatsApp: conv.VisitorWhatsApp,
	})
	d.log.Debug().
		Str("conversation_id", conv.VisitorID).
		Bool("email", results.Email).
		Bool("whatsapp", results.WhatsApp).
		Msg("new-message notifications dispatched")
}

// ContactFormData is a submission from the portfolio contact form.
type ContactFormData struct {
	Name      string
	Email     string
	Subject   string
	Message   string
	Timestamp time.Time
}

// SendContactForm forwards a contact form submission to the admin.
func (d *Dispatcher) SendContactForm(ctx context.Context, form ContactFormData) bool {
	text := fmt.Sprintf("Name: %s\nEmail: %s\nSubmitted: %s\n\n%s\n",
		form.Name, form.Email, form.Timestamp.Format(time.RFC1123), form.Message)
	htmlBody := fmt.Sprintf(
		"<p><strong>Name:</strong> %s</p><p><strong>Email:</strong> <a href=\"mailto:%s\">%s</a></p><blockquote>%s</blockquote>",
		html.EscapeString(form.Name), html.EscapeString(form.Email),
		html.EscapeString(form.Email), html.EscapeString(form.Message))

	return d.Send(ctx, Notification{
		To:      d.adminEmail,
		Subject: "New contact form submission: " + form.Subject,
		HTML:    htmlBody,
		Text:    text,
	})
}

// SendOTP mails a password-reset code to an admin account.
func (d *Dispatcher) SendOTP(ctx context.Context, to, otp string) bool {
	return d.Send(ctx, Notification{
		To:      to,
		Subject: "Password reset code",
		HTML:    fmt.Sprintf("<p>Your password reset code is:</p><h2>%s</h2><p>It expires in 10 minutes.</p>", html.EscapeString(otp)),
		Text:    fmt.Sprintf("Your password reset code is %s. It expires in 10 minutes.\n", otp),
	})
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// WhatsAppLink builds a wa.me deep link for a phone number, or "" when no
// number was provided.
func WhatsAppLink(number, message string) string {
	digits := nonDigits.ReplaceAllString(number, "")
	if digits == "" {
		return ""
	}
	return fmt.Sprintf("https://wa.me/%s?text=%s", digits, url.QueryEscape(message))
}
