package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"library_by_email/db"
	"library_by_email/intent"
	"library_by_email/models"
)

// UnknownAuthor is stored for books registered by email.
const UnknownAuthor = "Desconocido"

// Dispatch runs one intent against the catalog on behalf of sender and
// returns the humanized outcome. Validation and catalog errors become
// failure text; only infrastructure errors are returned.
func (w *Worker) Dispatch(ctx context.Context, in intent.Intent, sender string) (string, error) {
	req, err := in.Request(sender)
	if err != nil {
		return intent.Humanize(in.Action, false, err.Error()), nil
	}

	cat := w.deps.Catalog
	var detail string
	switch r := req.(type) {
	case intent.RegisterBook:
		_, err = cat.RegisterBook(ctx, db.RegisterBookInput{Title: r.Title, Author: UnknownAuthor, ISBN: r.ISBN, Copies: 1})
		detail = fmt.Sprintf("Registré '%s' con ISBN %s. Ya está disponible.", r.Title, r.ISBN)
	case intent.DeleteBook:
		_, err = cat.DeleteBook(ctx, r.ISBN)
		detail = "Libro eliminado."
	case intent.Reserve:
		_, err = cat.ReserveBook(ctx, r.UserEmail, r.ISBN)
		detail = "Reserva realizada exitosamente. ¡Disfrútalo! (tu correo quedó asociado a la reserva)."
	case intent.Renew:
		_, err = cat.RenewReservation(ctx, r.UserEmail, r.ISBN)
		detail = "Renovación exitosa por 7 días adicionales."
	case intent.Cancel:
		_, err = cat.CancelReservation(ctx, r.UserEmail, r.ISBN)
		detail = "Reserva cancelada. El libro se considera devuelto; si lo necesitas de nuevo, vuelve a reservar."
	case intent.ListBooks:
		var books []models.Book
		books, err = cat.ListBooks(ctx)
		detail = FormatCatalog(books)
	default:
		return "", fmt.Errorf("dispatch: unhandled request %T", req)
	}

	if err != nil {
		if db.KindOf(err) == db.KindUnknown {
			return "", fmt.Errorf("%s: %w", req.Action(), err)
		}
		return intent.Humanize(req.Action(), false, err.Error()), nil
	}
	return intent.Humanize(req.Action(), true, detail), nil
}

// FormatCatalog lists books one per line with their availability.
func FormatCatalog(books []models.Book) string {
	if len(books) == 0 {
		return "Catálogo:\n(sin libros)"
	}
	var b strings.Builder
	b.WriteString("Catálogo:")
	for _, bk := range books {
		fmt.Fprintf(&b, "\n- %s (ISBN %s) | disp: %d/%d", bk.Title, bk.ISBN, bk.CopiesAvailable, bk.CopiesTotal)
	}
	return b.String()
}

const replyFooter = "¿Te ayudo con algo más? Puedes escribir: reservar, renovar, cancelar, registrar, eliminar, lista."

// FormatReply wraps the outcome text with a summary of the request.
func FormatReply(in intent.Intent, natural string) string {
	about := strings.TrimSpace(in.Title)
	if about == "" {
		about = strings.TrimSpace(in.ISBN)
	}
	if about == "" {
		about = "(sin título/ISBN)"
	}
	return fmt.Sprintf("Tu solicitud: %s sobre %s.\n%s\n\n%s", in.Action, about, natural, replyFooter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
