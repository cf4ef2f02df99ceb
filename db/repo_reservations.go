// db/repo_reservations.go
package db

import (
	"context"
	"strings"
	"time"

	"library_by_email/models"
)

// ReservationRow is a reservation joined with its book.
type ReservationRow struct {
	ID        uint                     `json:"id"`
	UserEmail string                   `json:"user_email"`
	Status    models.ReservationStatus `json:"status"`
	StartDate time.Time                `json:"start_date"`
	DueDate   time.Time                `json:"due_date"`

	BookID    uint   `json:"book_id"`
	BookTitle string `json:"title"`
	BookISBN  string `json:"isbn"`

	Overdue bool `json:"overdue"` // active 且已过期
}

type ReservationsQuery struct {
	Email  string // 必填，按用户过滤
	Status string // "", "active", "cancelled", "expired", "returned"
	Page   int
	Size   int
}

type PagedReservations struct {
	Total int64            `json:"total"`
	Items []ReservationRow `json:"items"`
}

func (r *Repo) ListReservations(ctx context.Context, q ReservationsQuery) (*PagedReservations, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}

	qry := r.DB.WithContext(ctx).
		Table(models.ReservationTable+" r").
		Joins("JOIN "+models.BookTable+" b ON b.id = r.book_id").
		Where("r.user_email = ?", strings.ToLower(strings.TrimSpace(q.Email)))
	if s := strings.TrimSpace(q.Status); s != "" {
		qry = qry.Where("r.status = ?", s)
	}

	var total int64
	if err := qry.Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []ReservationRow
	if err := qry.
		Select(`
			r.id, r.user_email, r.status, r.start_date, r.due_date,
			b.id    AS book_id,
			b.title AS book_title,
			b.isbn  AS book_isbn
		`).
		Order("r.created_at DESC, r.id DESC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	now := r.Now()
	for i := range rows {
		rows[i].Overdue = rows[i].Status == models.StatusActive && rows[i].DueDate.Before(now)
	}
	return &PagedReservations{Total: total, Items: rows}, nil
}
