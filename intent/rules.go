package intent

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	isbnTagged = regexp.MustCompile(`isbn[:\s]?([\d-]{10,17})`)
	isbnBare   = regexp.MustCompile(`\b(\d{10,13})\b`)
	quoted     = regexp.MustCompile(`["'“«‘](.+?)["'”»’]`)
)

// keywordRules are tested in order; the first hit wins. Keywords are
// matched against lowercased text with accents removed.
var keywordRules = []struct {
	action   Action
	keywords []string
}{
	{ActionRegister, []string{"registrar"}},
	{ActionDelete, []string{"eliminar libro", "eliminar", "borrar libro"}},
	{ActionReserve, []string{"reservar"}},
	{ActionRenew, []string{"renovar"}},
	{ActionCancel, []string{"cancelar", "eliminar reserva"}},
	{ActionList, []string{"lista", "listar", "catalogo"}},
}

// Rules is the keyword extractor. It never fails.
type Rules struct{}

func (Rules) Extract(_ context.Context, text, sender string) (Intent, error) {
	return ExtractRules(text, sender), nil
}

// ExtractRules classifies text by Spanish keywords and pulls out an ISBN and
// the first quoted title. Unmatched text is ActionList.
func ExtractRules(text, sender string) Intent {
	folded := Fold(text)

	in := Intent{Action: ActionList, UserEmail: sender}
rules:
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(folded, kw) {
				in.Action = rule.action
				break rules
			}
		}
	}

	if m := isbnTagged.FindStringSubmatch(folded); m != nil {
		in.ISBN = strings.ReplaceAll(m[1], "-", "")
	} else if m := isbnBare.FindStringSubmatch(folded); m != nil {
		in.ISBN = m[1]
	}

	if m := quoted.FindStringSubmatch(text); m != nil {
		in.Title = strings.TrimSpace(m[1])
	}
	return in
}

// Fold lowercases s and strips combining marks, so "Catálogo" matches
// "catalogo".
func Fold(s string) string {
	lower := strings.ToLower(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, lower)
	if err != nil {
		return lower
	}
	return out
}
