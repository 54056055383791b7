package services

import (
	"bytes"
	"fmt"
	"html/template"
	"log"

	"gopkg.in/gomail.v2"
)

// Mailer sends the transactional e-mails. Callers treat every error as
// best-effort: log it, never fail the request.
type Mailer interface {
	SendWelcome(to, name string) error
	SendNotification(to, subject, message string) error
}

// MailConfig is the SMTP configuration. An empty Host disables sending.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

var mailTemplates = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #1f2937;">
<h2>Bienvenue chez Parabellum Groups, {{.Name}}</h2>
<p>Votre compte ProgiTek a été créé avec l'adresse <strong>{{.Email}}</strong>.</p>
{{if .AppURL}}<p><a href="{{.AppURL}}">Se connecter</a></p>{{end}}
<p style="font-size: 12px; color: #6b7280;">Ce message est envoyé automatiquement.</p>
</body></html>`))

func init() {
	template.Must(mailTemplates.New("notification").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #1f2937;">
<h2>{{.Subject}}</h2>
<p>{{.Message}}</p>
{{if .AppURL}}<p><a href="{{.AppURL}}">Ouvrir ProgiTek</a></p>{{end}}
<p style="font-size: 12px; color: #6b7280;">Ce message est envoyé automatiquement.</p>
</body></html>`))
}

// SMTPMailer sends mail through gomail.
type SMTPMailer struct {
	cfg    MailConfig
	dialer *gomail.Dialer
}

// NewSMTPMailer creates a mailer. With no host configured it only logs.
func NewSMTPMailer(cfg MailConfig) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg}
	if cfg.Host == "" {
		log.Printf("⚠️ SMTP not configured, e-mails will only be logged")
		return m
	}
	m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	log.Printf("✅ SMTP mailer ready (%s:%d)", cfg.Host, cfg.Port)
	return m
}

// Enabled reports whether mails actually leave the process.
func (m *SMTPMailer) Enabled() bool {
	return m.dialer != nil
}

// SendWelcome sends the account creation mail.
func (m *SMTPMailer) SendWelcome(to, name string) error {
	return m.send(to, "Bienvenue sur ProgiTek", "welcome", map[string]string{
		"Name":   name,
		"Email":  to,
		"AppURL": m.cfg.AppURL,
	})
}

// SendNotification sends a generic notification mail.
func (m *SMTPMailer) SendNotification(to, subject, message string) error {
	return m.send(to, subject, "notification", map[string]string{
		"Subject": subject,
		"Message": message,
		"AppURL":  m.cfg.AppURL,
	})
}

func (m *SMTPMailer) send(to, subject, tmpl string, data interface{}) error {
	if to == "" {
		return fmt.Errorf("mail %q: empty recipient", subject)
	}

	body, err := RenderMail(tmpl, data)
	if err != nil {
		return fmt.Errorf("render %s mail: %w", tmpl, err)
	}

	if !m.Enabled() {
		log.Printf("📧 (disabled) %s -> %s", subject, to)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s mail to %s: %w", tmpl, to, err)
	}
	log.Printf("📧 Mail sent: %s -> %s", subject, to)
	return nil
}

// RenderMail renders a mail template to HTML without sending it.
func RenderMail(tmpl string, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return "", err
	}
	return body.String(), nil
}
