package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// SystemPrompt asks the model for strict JSON.
const SystemPrompt = `Eres un asistente que traduce correos a una intención de biblioteca.
Devuelve SOLO un JSON válido que siga este schema:
{ "action": "...", "user_email": "...", "title": "...", "isbn": "..." }
Acciones permitidas: reserve, renew, cancel_reservation, register_book, delete_book, list_books.
`

// Completer is the external model; llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLM asks a Completer for the intent and falls back to Rules when the call
// fails or returns something that is not a JSON object with an action.
type LLM struct {
	Completer Completer
	Fallback  Extractor
	Logger    *slog.Logger
}

func NewLLM(c Completer, logger *slog.Logger) *LLM {
	return &LLM{Completer: c, Fallback: Rules{}, Logger: logger}
}

func (x *LLM) Extract(ctx context.Context, text, sender string) (Intent, error) {
	text = strings.TrimSpace(text)
	in, err := x.ask(ctx, text, sender)
	if err == nil {
		return in, nil
	}
	if x.Logger != nil {
		x.Logger.Warn("llm extraction failed, using rules", "error", err)
	}
	fallback := x.Fallback
	if fallback == nil {
		fallback = Rules{}
	}
	return fallback.Extract(ctx, text, sender)
}

func (x *LLM) ask(ctx context.Context, text, sender string) (Intent, error) {
	raw, err := x.Completer.Complete(ctx, SystemPrompt, text)
	if err != nil {
		return Intent{}, err
	}
	in, err := ParseModelOutput(raw)
	if err != nil {
		return Intent{}, err
	}
	if in.UserEmail == "" {
		in.UserEmail = sender
	}
	return in, nil
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z0-9]*\\s*(.*?)\\s*```$")

// ParseModelOutput decodes the model's JSON answer. Code fences, comments
// and trailing commas are tolerated; a missing action is an error, an
// unknown one becomes ActionList.
func ParseModelOutput(raw string) (Intent, error) {
	cleaned := strings.TrimSpace(raw)
	if m := fence.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON([]byte(cleaned))))
	dec.UseNumber()
	var wire map[string]any
	if err := dec.Decode(&wire); err != nil {
		return Intent{}, fmt.Errorf("intent: model output is not a JSON object: %w", err)
	}

	action := stringField(wire, "action")
	if action == "" {
		return Intent{}, fmt.Errorf("intent: model output has no action")
	}
	return Intent{
		Action:    NormalizeAction(action),
		UserEmail: stringField(wire, "user_email"),
		Title:     stringField(wire, "title"),
		ISBN:      strings.ReplaceAll(stringField(wire, "isbn"), "-", ""),
	}, nil
}

// stringField reads a string or number; null and other types are empty.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
