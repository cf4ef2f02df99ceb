package db

import "errors"

// Kind classifies catalog failures for callers that map them to replies or
// HTTP statuses.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindValidation
)

// CatalogError is a failure the requester can act on. Its text is the
// message sent back to them.
type CatalogError struct {
	Kind Kind
	Msg  string
}

func (e *CatalogError) Error() string { return e.Msg }

var (
	ErrBookNotFound         = &CatalogError{KindNotFound, "Libro no encontrado"}
	ErrNoActiveReservation  = &CatalogError{KindNotFound, "No tienes una reserva activa de este libro"}
	ErrNothingToCancel      = &CatalogError{KindNotFound, "No hay reserva activa para cancelar"}
	ErrISBNExists           = &CatalogError{KindConflict, "El ISBN ya existe en el catálogo."}
	ErrOutstandingLoans     = &CatalogError{KindConflict, "No se puede eliminar: hay reservas activas"}
	ErrNoCopies             = &CatalogError{KindConflict, "No hay copias disponibles"}
	ErrDuplicateReservation = &CatalogError{KindConflict, "Ya tienes una reserva activa de este libro"}
	ErrReservationExpired   = &CatalogError{KindConflict, "La reserva ya venció"}
	ErrInvalidBook          = &CatalogError{KindValidation, "El libro necesita título, ISBN y al menos una copia."}
)

// KindOf returns the Kind of a CatalogError anywhere in err's chain, or
// KindUnknown for infrastructure errors.
func KindOf(err error) Kind {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}
