package db

import (
	"context"
	"errors"
	"strings"

	"library_by_email/models"

	"gorm.io/gorm"
)

type RegisterBookInput struct {
	Title  string
	Author string
	ISBN   string
	Copies int
}

// RegisterBook creates an active book with all copies available. The ISBN
// must not belong to another active book.
func (r *Repo) RegisterBook(ctx context.Context, in RegisterBookInput) (*models.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.ISBN = strings.TrimSpace(in.ISBN)
	if in.Title == "" || in.ISBN == "" || in.Copies < 1 {
		return nil, ErrInvalidBook
	}

	var book *models.Book
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先查重，比依赖唯一索引报错更清楚
		var n int64
		if err := tx.Model(&models.Book{}).
			Where("isbn = ? AND active = ?", in.ISBN, true).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrISBNExists
		}
		b := &models.Book{
			Title:           in.Title,
			Author:          in.Author,
			ISBN:            in.ISBN,
			CopiesTotal:     in.Copies,
			CopiesAvailable: in.Copies,
			Active:          true,
		}
		if err := tx.Create(b).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrISBNExists
			}
			return err
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook soft-deletes a book that has no copies out on loan.
func (r *Repo) DeleteBook(ctx context.Context, isbn string) (*models.Book, error) {
	var b models.Book
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findActiveBook(tx, isbn, &b); err != nil {
			return err
		}
		if b.CopiesAvailable != b.CopiesTotal {
			return ErrOutstandingLoans
		}
		b.Active = false
		return tx.Model(&b).Update("active", false).Error
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ReserveBook creates an active reservation for userEmail and takes one copy.
// The duplicate check is a lookup before insert, not a constraint.
func (r *Repo) ReserveBook(ctx context.Context, userEmail, isbn string) (*models.Reservation, error) {
	var res *models.Reservation
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Book
		if err := findActiveBook(tx, isbn, &b); err != nil {
			return err
		}
		if b.CopiesAvailable < 1 {
			return ErrNoCopies
		}
		var existing models.Reservation
		err := findActiveReservation(tx, userEmail, b.ID, &existing)
		if err == nil {
			return ErrDuplicateReservation
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// 条件更新，保证 copies_available 不会变成负数
		upd := tx.Model(&models.Book{}).
			Where("id = ? AND copies_available > 0", b.ID).
			Update("copies_available", gorm.Expr("copies_available - 1"))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrNoCopies
		}

		now := r.Now()
		rv := &models.Reservation{
			UserEmail: userEmail,
			BookID:    b.ID,
			StartDate: now,
			DueDate:   now.Add(LoanPeriod),
			Status:    models.StatusActive,
		}
		if err := tx.Create(rv).Error; err != nil {
			return err
		}
		b.CopiesAvailable--
		rv.Book = b
		res = rv
		return nil
	})
	return res, err
}

// RenewReservation pushes the due date of an active, not yet overdue
// reservation back by RenewalPeriod.
func (r *Repo) RenewReservation(ctx context.Context, userEmail, isbn string) (*models.Reservation, error) {
	var res models.Reservation
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Book
		if err := findActiveBook(tx, isbn, &b); err != nil {
			return err
		}
		if err := findActiveReservation(tx, userEmail, b.ID, &res); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveReservation
			}
			return err
		}
		if res.DueDate.Before(r.Now()) {
			return ErrReservationExpired
		}
		res.DueDate = res.DueDate.Add(RenewalPeriod)
		if err := tx.Model(&res).Update("due_date", res.DueDate).Error; err != nil {
			return err
		}
		res.Book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CancelReservation marks the active reservation cancelled and returns its
// copy to the shelf.
func (r *Repo) CancelReservation(ctx context.Context, userEmail, isbn string) (*models.Reservation, error) {
	var res models.Reservation
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Book
		if err := findActiveBook(tx, isbn, &b); err != nil {
			return err
		}
		if err := findActiveReservation(tx, userEmail, b.ID, &res); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNothingToCancel
			}
			return err
		}
		res.Status = models.StatusCancelled
		if err := tx.Model(&res).Update("status", res.Status).Error; err != nil {
			return err
		}
		// 归还一本，但不超过总数
		if err := tx.Model(&models.Book{}).
			Where("id = ? AND copies_available < copies_total", b.ID).
			Update("copies_available", gorm.Expr("copies_available + 1")).Error; err != nil {
			return err
		}
		if b.CopiesAvailable < b.CopiesTotal {
			b.CopiesAvailable++
		}
		res.Book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListBooks returns the active catalog.
func (r *Repo) ListBooks(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	err := r.DB.WithContext(ctx).
		Where("active = ?", true).
		Order("id").
		Find(&books).Error
	return books, err
}

// FindBookByISBN returns the active book with the given ISBN.
func (r *Repo) FindBookByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	var b models.Book
	if err := findActiveBook(r.DB.WithContext(ctx), isbn, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func findActiveBook(tx *gorm.DB, isbn string, b *models.Book) error {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return ErrBookNotFound
	}
	err := tx.Where("isbn = ? AND active = ?", isbn, true).First(b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrBookNotFound
	}
	return err
}

func findActiveReservation(tx *gorm.DB, userEmail string, bookID uint, res *models.Reservation) error {
	return tx.
		Where("user_email = ? AND book_id = ? AND status = ?", userEmail, bookID, models.StatusActive).
		First(res).Error
}
