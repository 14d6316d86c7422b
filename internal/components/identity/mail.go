package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
)

var inviteBody = template.Must(template.New("invite").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px;">
  <h2>Agenda Familiar</h2>
  <p>Foi convidado(a) para a agenda da família.</p>
  <p><a href="{{.Link}}">Entrar</a></p>
</div>
`))

// MailInviter sends the invite email over SMTP instead of the provider.
// Recipients sign in through the provider's magic link on the login page,
// so no provider-side user id is returned.
type MailInviter struct {
	from    string
	subject string
	sender  gomail.Sender
	dialer  *gomail.Dialer
}

// NewMailInviter creates an SMTP inviter from the [mail] section.
func NewMailInviter(cfg config.MailConfig) (*MailInviter, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("identity: mail.host and mail.from are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &MailInviter{
		from:    cfg.From,
		subject: "Convite para a Agenda Familiar",
		dialer:  gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password),
	}, nil
}

// WithSender replaces SMTP delivery, e.g. with gomail.SendFunc in tests.
func (m *MailInviter) WithSender(s gomail.Sender) *MailInviter {
	m.sender = s
	return m
}

// Invite implements Inviter.
func (m *MailInviter) Invite(ctx context.Context, in InviteRequest) (string, error) {
	to := strings.TrimSpace(in.Email)
	if to == "" {
		return "", ErrMissingEmail
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	link := in.RedirectTo
	if link == "" {
		link = "/login"
	}
	var body bytes.Buffer
	if err := inviteBody.Execute(&body, struct{ Link string }{link}); err != nil {
		return "", err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", m.subject)
	msg.SetBody("text/html", body.String())

	var err error
	if m.sender != nil {
		err = gomail.Send(m.sender, msg)
	} else {
		err = m.dialer.DialAndSend(msg)
	}
	if err != nil {
		return "", fmt.Errorf("send invite mail: %w", err)
	}
	return "", nil
}
