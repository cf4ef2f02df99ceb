// models/book.go
package models

import "time"

const BookTable = "lib_books"
const ReservationTable = "lib_reservations"

// Book 软删除：Active=false 后不再出现在目录中，ISBN 可被重新登记
type Book struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"size:255;index;not null" json:"title"`
	Author          string    `gorm:"size:255;index;not null" json:"author"`
	ISBN            string    `gorm:"size:64;index;not null" json:"isbn"` // 仅在 active 范围内唯一（见 db.Migrate）
	CopiesTotal     int       `gorm:"not null;default:1" json:"copies_total"`
	CopiesAvailable int       `gorm:"not null;default:1" json:"copies_available"` // 0 <= available <= total
	Active          bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Reservations []Reservation `json:"-"`
}

func (Book) TableName() string { return BookTable }

// OnLoan is the number of copies currently held by reservations.
func (b Book) OnLoan() int { return b.CopiesTotal - b.CopiesAvailable }
