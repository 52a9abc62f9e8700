package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a broadcaster account authenticated by stream key, per spec.md
// §3 ("User balance") and §4.5's admission contract.
type User struct {
	ID          uuid.UUID `gorm:"type:text;primaryKey"`
	StreamKey   string    `gorm:"uniqueIndex;not null"`
	Pubkey      string    `gorm:"index"` // Nostr pubkey for low-balance DMs
	BalanceMsat Money     `gorm:"not null;default:0"`
	IsBlocked   bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides GORM's default pluralization.
func (User) TableName() string {
	return "users"
}

// UserStream is the persisted record of one live-stream session, per
// spec.md §4.5's "persist a user_stream row" admission step and §8's
// duration-accounting property.
type UserStream struct {
	ID              uuid.UUID `gorm:"type:text;primaryKey"`
	UserID          uuid.UUID `gorm:"type:text;index;not null"`
	EndpointID      string    `gorm:"index;not null"`
	NodeName        string    `gorm:"index"`
	State           StreamState
	StartsAt        time.Time
	EndsAt          *time.Time
	DurationSeconds float64
	CostMsat        Money
	LowBalanceNotified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName overrides GORM's default pluralization.
func (UserStream) TableName() string {
	return "user_streams"
}
