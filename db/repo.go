package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Loan and renewal periods.
const (
	LoanPeriod    = 14 * 24 * time.Hour
	RenewalPeriod = 7 * 24 * time.Hour
)

type Repo struct {
	DB *gorm.DB

	// Now is the clock used for start/due dates.
	Now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks the underlying connection pool.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repo) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
