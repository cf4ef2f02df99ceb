// Package worker polls the library inbox, turns each request email into a
// catalog operation and replies to the sender.
//
// Per message: fetched → filtered → intent extracted → dispatched → replied
// → marked seen. A message that is filtered out, or whose processing or
// reply fails, stays unseen and is retried on the next poll.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"library_by_email/db"
	"library_by_email/intent"
	"library_by_email/ledger"
	"library_by_email/mail"
	"library_by_email/models"

	"github.com/google/uuid"
)

// ErrFilteredOut marks a message rejected by the sender or subject filter.
var ErrFilteredOut = errors.New("filtered out")

// Catalog is the set of store operations the worker dispatches to.
type Catalog interface {
	RegisterBook(ctx context.Context, in db.RegisterBookInput) (*models.Book, error)
	DeleteBook(ctx context.Context, isbn string) (*models.Book, error)
	ReserveBook(ctx context.Context, userEmail, isbn string) (*models.Reservation, error)
	RenewReservation(ctx context.Context, userEmail, isbn string) (*models.Reservation, error)
	CancelReservation(ctx context.Context, userEmail, isbn string) (*models.Reservation, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
}

// Dialer opens a fresh inbox session.
type Dialer func() (mail.Inbox, error)

type Config struct {
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	AllowedSenders []string // empty allows everyone
	SubjectActions []string // empty allows every subject
	ReplySubject   string
}

type Deps struct {
	Catalog   Catalog
	Extractor intent.Extractor
	Dial      Dialer
	Outbox    mail.Outbox
	Ledger    ledger.Ledger
	Logger    *slog.Logger
}

type Worker struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	allowed  map[string]bool
	keywords []string

	inbox mail.Inbox
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, deps Deps) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.ReplySubject == "" {
		cfg.ReplySubject = "Biblioteca — Respuesta"
	}
	if deps.Extractor == nil {
		deps.Extractor = intent.Rules{}
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.NewMemory(72 * time.Hour)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		cfg:     cfg,
		deps:    deps,
		log:     logger.With("component", "worker"),
		allowed: map[string]bool{},
		sleep:   sleepCtx,
	}
	for _, s := range cfg.AllowedSenders {
		w.allowed[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, kw := range cfg.SubjectActions {
		if kw = intent.Fold(strings.TrimSpace(kw)); kw != "" {
			w.keywords = append(w.keywords, kw)
		}
	}
	return w
}

// Run polls until ctx is cancelled. Poll errors are logged and followed by
// a NOOP or a reconnect; they never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started, waiting for mail", "interval", w.cfg.PollInterval)
	defer w.closeInbox()
	for {
		if err := w.PollOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("poll failed", "error", err)
			w.recoverInbox(ctx)
		}
		if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
			w.log.Info("worker stopped")
			return nil
		}
	}
}

// PollOnce fetches the unseen messages and handles them one at a time.
func (w *Worker) PollOnce(ctx context.Context) error {
	if w.inbox == nil {
		inbox, err := w.deps.Dial()
		if err != nil {
			return fmt.Errorf("connect inbox: %w", err)
		}
		w.inbox = inbox
	}
	msgs, err := w.inbox.FetchUnseen(ctx)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if ctx.Err() != nil {
			return nil
		}
		w.handle(ctx, m)
	}
	return nil
}

func (w *Worker) recoverInbox(ctx context.Context) {
	if w.inbox != nil && w.inbox.Noop() == nil {
		return
	}
	if err := w.sleep(ctx, w.cfg.ReconnectDelay); err != nil {
		return
	}
	w.closeInbox()
	inbox, err := w.deps.Dial()
	if err != nil {
		w.log.Error("reconnect failed", "error", err)
		return
	}
	w.log.Info("inbox reconnected")
	w.inbox = inbox
}

func (w *Worker) closeInbox() {
	if w.inbox != nil {
		_ = w.inbox.Close()
		w.inbox = nil
	}
}

func (w *Worker) handle(ctx context.Context, m mail.Message) {
	log := w.log.With("uid", m.UID, "trace", uuid.NewString()[:8])
	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while handling message", "panic", p, "stack", string(debug.Stack()))
		}
	}()

	p, err := mail.Parse(m.Raw)
	if err != nil {
		log.Error("unreadable message", "error", err)
		return
	}
	log = log.With("from", p.From, "subject", p.Subject)
	log.Info("mail received")

	if p.MessageID != "" {
		replied, err := w.deps.Ledger.Replied(ctx, p.MessageID)
		if err != nil {
			log.Warn("ledger lookup failed", "error", err)
		} else if replied {
			log.Info("already replied, marking seen")
			w.markSeen(ctx, log, m.UID)
			return
		}
	}

	reply, err := w.Process(ctx, p)
	if errors.Is(err, ErrFilteredOut) {
		log.Info("skip", "reason", err.Error())
		return
	}
	if err != nil {
		log.Error("process failed, leaving unread", "error", err)
		return
	}
	log.Info("intent", "action", reply.Intent.Action, "isbn", reply.Intent.ISBN, "title", reply.Intent.Title)

	refused, err := w.deps.Outbox.Send(ctx, reply.To, w.cfg.ReplySubject, reply.Body)
	if err != nil {
		log.Error("send failed, leaving unread", "to", reply.To, "error", err)
		return
	}
	if len(refused) > 0 {
		log.Warn("recipients refused, leaving unread", "to", reply.To, "refused", fmt.Sprint(refused))
		return
	}
	log.Info("reply sent", "to", reply.To)

	if p.MessageID != "" {
		if err := w.deps.Ledger.Record(ctx, p.MessageID); err != nil {
			log.Warn("ledger record failed", "error", err)
		}
	}
	w.markSeen(ctx, log, m.UID)
}

func (w *Worker) markSeen(ctx context.Context, log *slog.Logger, uid uint32) {
	if err := w.inbox.MarkSeen(ctx, uid); err != nil {
		log.Error("mark seen failed", "error", err)
		return
	}
	log.Info("marked seen")
}

// Reply is the answer to one request email.
type Reply struct {
	To     string
	Body   string
	Intent intent.Intent
}

// Process filters a parsed message, extracts its intent, runs it against
// the catalog and composes the reply. Errors wrapping ErrFilteredOut mean
// no reply should be sent; other errors are infrastructure failures.
func (w *Worker) Process(ctx context.Context, p *mail.Parsed) (*Reply, error) {
	if err := w.filter(p); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(p.Subject + "\n" + p.Body)
	in, err := w.deps.Extractor.Extract(ctx, text, p.Sender)
	if err != nil {
		return nil, fmt.Errorf("extract intent: %w", err)
	}

	natural, err := w.Dispatch(ctx, in, p.Sender)
	if err != nil {
		return nil, err
	}
	return &Reply{To: p.Sender, Body: FormatReply(in, natural), Intent: in}, nil
}

func (w *Worker) filter(p *mail.Parsed) error {
	if len(w.allowed) > 0 && !w.allowed[p.Sender] {
		return fmt.Errorf("%w: sender not allowed -> %s", ErrFilteredOut, p.Sender)
	}
	if len(w.keywords) > 0 {
		subject := intent.Fold(p.Subject)
		for _, kw := range w.keywords {
			if strings.Contains(subject, kw) {
				return nil
			}
		}
		return fmt.Errorf("%w: subject has no action -> %s", ErrFilteredOut, p.Subject)
	}
	return nil
}
