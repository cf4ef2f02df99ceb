// models/reservation.go
package models

import "time"

type ReservationStatus string

const (
	StatusActive    ReservationStatus = "active"
	StatusCancelled ReservationStatus = "cancelled"
	StatusExpired   ReservationStatus = "expired"
	StatusReturned  ReservationStatus = "returned"
)

// Reservation holds one copy of a Book while Status is active.
type Reservation struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserEmail string            `gorm:"size:320;index;not null" json:"user_email"`
	BookID    uint              `gorm:"index;not null" json:"book_id"`
	Book      Book              `gorm:"constraint:OnDelete:CASCADE" json:"book"`
	StartDate time.Time         `gorm:"not null" json:"start_date"`
	DueDate   time.Time         `gorm:"index;not null" json:"due_date"`
	Status    ReservationStatus `gorm:"size:32;not null;default:'active'" json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Reservation) TableName() string { return ReservationTable }
