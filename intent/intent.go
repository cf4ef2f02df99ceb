// Package intent turns the text of a library email into a structured
// request. The rule-based Rules extractor is always available; LLM wraps an
// external completion model and falls back to Rules on any failure.
package intent

import (
	"context"
	"errors"
	"strings"
)

type Action string

const (
	ActionReserve  Action = "reserve"
	ActionRenew    Action = "renew"
	ActionCancel   Action = "cancel_reservation"
	ActionRegister Action = "register_book"
	ActionDelete   Action = "delete_book"
	ActionList     Action = "list_books"
)

var allowed = map[Action]bool{
	ActionReserve:  true,
	ActionRenew:    true,
	ActionCancel:   true,
	ActionRegister: true,
	ActionDelete:   true,
	ActionList:     true,
}

var aliases = map[string]Action{
	"reservar":  ActionReserve,
	"renovar":   ActionRenew,
	"cancelar":  ActionCancel,
	"registrar": ActionRegister,
	"eliminar":  ActionDelete,
	"lista":     ActionList,
	"listar":    ActionList,
}

// NormalizeAction maps Spanish verbs and canonical names to an Action.
// Anything unrecognised becomes ActionList.
func NormalizeAction(s string) Action {
	s = strings.TrimSpace(s)
	if a, ok := aliases[s]; ok {
		return a
	}
	if a := Action(s); allowed[a] {
		return a
	}
	return ActionList
}

// Intent is what an extractor understood from an email.
type Intent struct {
	Action    Action `json:"action"`
	UserEmail string `json:"user_email,omitempty"`
	Title     string `json:"title,omitempty"`
	ISBN      string `json:"isbn,omitempty"`
}

// Extractor turns free text plus the sender address into an Intent.
type Extractor interface {
	Extract(ctx context.Context, text, sender string) (Intent, error)
}

// ErrValidation is the parent of every ValidationError.
var ErrValidation = errors.New("intent: missing fields")

// ValidationError tells the requester what the email was missing.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Request is one of the per-action variants below.
type Request interface {
	Action() Action
}

type RegisterBook struct{ Title, ISBN string }
type DeleteBook struct{ ISBN string }
type Reserve struct{ UserEmail, ISBN string }
type Renew struct{ UserEmail, ISBN string }
type Cancel struct{ UserEmail, ISBN string }
type ListBooks struct{}

func (RegisterBook) Action() Action { return ActionRegister }
func (DeleteBook) Action() Action   { return ActionDelete }
func (Reserve) Action() Action      { return ActionReserve }
func (Renew) Action() Action        { return ActionRenew }
func (Cancel) Action() Action       { return ActionCancel }
func (ListBooks) Action() Action    { return ActionList }

// Request validates the intent and returns its typed variant. Reservation
// actions always act on behalf of requester, the authenticated sender.
func (i Intent) Request(requester string) (Request, error) {
	isbn := strings.TrimSpace(i.ISBN)
	title := strings.TrimSpace(i.Title)

	switch i.Action {
	case ActionRegister:
		if isbn == "" || title == "" {
			return nil, &ValidationError{`Incluye ISBN y el título entre comillas ("Título").`}
		}
		return RegisterBook{Title: title, ISBN: isbn}, nil
	case ActionDelete:
		if isbn == "" {
			return nil, &ValidationError{"Para eliminar un libro, indica el ISBN (ej: isbn:978...)."}
		}
		return DeleteBook{ISBN: isbn}, nil
	case ActionReserve, ActionRenew, ActionCancel:
		if isbn == "" {
			return nil, &ValidationError{"Indica el ISBN del libro (ej: isbn:978...)."}
		}
		switch i.Action {
		case ActionReserve:
			return Reserve{UserEmail: requester, ISBN: isbn}, nil
		case ActionRenew:
			return Renew{UserEmail: requester, ISBN: isbn}, nil
		default:
			return Cancel{UserEmail: requester, ISBN: isbn}, nil
		}
	default:
		return ListBooks{}, nil
	}
}

var prefixes = map[Action]string{
	ActionReserve:  "¡Listo! ",
	ActionRenew:    "Hecho. ",
	ActionCancel:   "Perfecto. ",
	ActionRegister: "Anotado. ",
	ActionDelete:   "Ok. ",
	ActionList:     "Aquí va. ",
}

// Humanize phrases an operation outcome for the reply email.
func Humanize(action Action, success bool, detail string) string {
	if success {
		return prefixes[action] + detail
	}
	return "Ups, no pude completarlo: " + detail
}
