package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

// User is a marketplace account. Any user can buy and sell; the balance and
// earning columns are only written by settlement and payouts.
type User struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email           string         `gorm:"column:email;not null"`
	FullName        string         `gorm:"column:full_name;not null"`
	Role            enums.UserRole `gorm:"column:role;type:text;not null;default:'user'"`
	BalanceCents    int64          `gorm:"column:balance_cents;not null;default:0"`
	EarningCents    int64          `gorm:"column:earning_cents;not null;default:0"`
	StripeAccountID *string        `gorm:"column:stripe_account_id"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
