package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Outbox sends a plain-text reply. The map lists recipients the server
// refused; an empty map with a nil error means every recipient accepted.
type Outbox interface {
	Send(ctx context.Context, to, subject, body string) (map[string]error, error)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string // also the From address
	Password string
	CC       string // optional fixed copy
	Timeout  time.Duration

	// AllowPlain permits servers without STARTTLS (local relays in dev).
	AllowPlain bool
}

type SMTPOutbox struct {
	cfg SMTPConfig
	now func() time.Time
}

func NewSMTPOutbox(cfg SMTPConfig) *SMTPOutbox {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPOutbox{cfg: cfg, now: time.Now}
}

// Send submits one message to `to` plus the configured CC using STARTTLS
// and PLAIN auth.
func (o *SMTPOutbox) Send(ctx context.Context, to, subject, body string) (map[string]error, error) {
	if o.cfg.Username == "" || o.cfg.Password == "" {
		return nil, fmt.Errorf("smtp: missing EMAIL_ADDRESS or EMAIL_APP_PASSWORD")
	}
	msg, _, err := BuildReply(o.cfg.Username, to, o.cfg.CC, subject, body, o.now())
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(o.cfg.Host, strconv.Itoa(o.cfg.Port))
	d := net.Dialer{Timeout: o.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(o.cfg.Timeout))

	c, err := smtp.NewClient(conn, o.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp: greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: o.cfg.Host}); err != nil {
			return nil, fmt.Errorf("smtp: starttls: %w", err)
		}
	} else if !o.cfg.AllowPlain {
		return nil, fmt.Errorf("smtp: %s does not offer STARTTLS", addr)
	}

	if ok, _ := c.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", o.cfg.Username, o.cfg.Password, o.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return nil, fmt.Errorf("smtp: auth: %w", err)
		}
	}

	if err := c.Mail(o.cfg.Username); err != nil {
		return nil, fmt.Errorf("smtp: MAIL FROM: %w", err)
	}
	refused := map[string]error{}
	recipients := []string{to}
	if o.cfg.CC != "" {
		recipients = append(recipients, o.cfg.CC)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt); err != nil {
			refused[rcpt] = err
		}
	}
	if len(refused) == len(recipients) {
		_ = c.Reset()
		_ = c.Quit()
		return refused, nil
	}

	w, err := c.Data()
	if err != nil {
		return nil, fmt.Errorf("smtp: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return nil, fmt.Errorf("smtp: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("smtp: end DATA: %w", err)
	}
	_ = c.Quit()
	return refused, nil
}

// BuildReply renders a text/plain UTF-8 message with From, To, optional Cc,
// Subject, Date and a fresh Message-Id, which it also returns.
func BuildReply(from, to, cc, subject, body string, now time.Time) ([]byte, string, error) {
	var h gomail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*gomail.Address{{Address: from}})
	h.SetAddressList("To", []*gomail.Address{{Address: to}})
	if cc != "" {
		h.SetAddressList("Cc", []*gomail.Address{{Address: cc}})
	}
	h.SetSubject(subject)
	id := uuid.NewString() + "@biblioteca"
	h.SetMessageID(id)
	h.Set("X-Mailer", "biblioteca-bot")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("compose reply: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, "", fmt.Errorf("compose reply: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("compose reply: %w", err)
	}
	return buf.Bytes(), id, nil
}
