package mail

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Inbox is the mailbox the worker polls.
type Inbox interface {
	FetchUnseen(ctx context.Context) ([]Message, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Noop() error
	Close() error
}

type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string // defaults to INBOX
	Timeout  time.Duration
}

// IMAPInbox is an authenticated IMAP session with the mailbox selected.
type IMAPInbox struct {
	c *client.Client
}

// DialIMAP connects over TLS, logs in and selects the mailbox.
func DialIMAP(cfg IMAPConfig) (*IMAPInbox, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("imap: missing EMAIL_ADDRESS or EMAIL_APP_PASSWORD")
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap: dial %s: %w", addr, err)
	}
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap: login: %w", err)
	}
	if _, err := c.Select(cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap: select %s: %w", cfg.Mailbox, err)
	}
	return &IMAPInbox{c: c}, nil
}

// FetchUnseen returns every message without \Seen. Bodies are fetched with
// BODY.PEEK[] so fetching does not mark them read.
func (in *IMAPInbox) FetchUnseen(ctx context.Context) ([]Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := in.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap: search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- in.c.UidFetch(seqset, items, ch) }()

	var out []Message
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		out = append(out, Message{UID: msg.Uid, Raw: raw})
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("imap: fetch: %w", err)
	}
	return out, nil
}

// MarkSeen adds \Seen to the message with the given UID.
func (in *IMAPInbox) MarkSeen(_ context.Context, uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := in.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("imap: mark seen %d: %w", uid, err)
	}
	return nil
}

func (in *IMAPInbox) Noop() error { return in.c.Noop() }

func (in *IMAPInbox) Close() error { return in.c.Logout() }
