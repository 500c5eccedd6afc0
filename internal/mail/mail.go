package mail

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer delivers account-activation email. The chat service treats delivery
// as best-effort; a failed send leaves the account registered but inactive.
type Mailer interface {
	SendActivationEmail(to, name, activationURL string) error
}

type SMTPMailer struct {
	addr     string
	from     string
	username string
	password string
}

func NewSMTPMailer(addr, from, username, password string) *SMTPMailer {
	return &SMTPMailer{
		addr:     addr,
		from:     from,
		username: username,
		password: password,
	}
}

func (m *SMTPMailer) SendActivationEmail(to, name, activationURL string) error {
	var msg strings.Builder
	msg.WriteString("From: Chat System <" + m.from + ">\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: Activate your account\r\n")
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString("<h1>Welcome, " + name + "!</h1>")
	msg.WriteString(`<p>You registered on the chat site. Follow the link to activate your account:</p>`)
	msg.WriteString(`<a target="_blank" href="` + activationURL + `">` + activationURL + `</a>`)

	host := m.addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, host)
	}

	if err := smtp.SendMail(m.addr, auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send activation email: %w", err)
	}

	return nil
}

// NoopMailer logs instead of sending, for development setups without SMTP.
type NoopMailer struct {
	Log *log.Logger
}

func (m *NoopMailer) SendActivationEmail(to, name, activationURL string) error {
	if m.Log != nil {
		m.Log.Printf("activation email for %s: %s", to, activationURL)
	}
	return nil
}
