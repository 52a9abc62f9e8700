// Package store defines the persistence interfaces the overseer depends
// on. The relational persistence layer itself is an external
// collaborator per spec.md §1's Non-goals, but a concrete GORM-backed
// implementation is still provided so the overseer has something to call
// when run standalone.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/models"
)

// UserStore resolves broadcaster accounts and debits balance.
type UserStore interface {
	// GetByStreamKey looks up a user by their stream key.
	GetByStreamKey(ctx context.Context, streamKey string) (*models.User, error)

	// GetByID looks up a user by id.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// DebitBalance atomically subtracts amount from the user's balance
	// and returns the resulting balance.
	DebitBalance(ctx context.Context, userID uuid.UUID, amount models.Money) (models.Money, error)

	// SetBlocked sets a user's blocked flag.
	SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool) error

	// ListBlocked returns the IDs of every currently-blocked user.
	ListBlocked(ctx context.Context) ([]uuid.UUID, error)
}

// EndpointStore resolves ingest endpoints by name.
type EndpointStore interface {
	// GetByName looks up an endpoint by case-insensitive name.
	GetByName(ctx context.Context, name string) (*models.IngestEndpoint, error)

	// GetByID looks up an endpoint by id.
	GetByID(ctx context.Context, endpointID string) (*models.IngestEndpoint, error)
}

// StreamStore persists the lifecycle of a user_stream row.
type StreamStore interface {
	// Create inserts a new user_stream row at admission.
	Create(ctx context.Context, stream *models.UserStream) error

	// Get fetches a user_stream row by stream id.
	Get(ctx context.Context, streamID uuid.UUID) (*models.UserStream, error)

	// AddProgress accumulates segment duration and cost onto a
	// user_stream row.
	AddProgress(ctx context.Context, streamID uuid.UUID, durationSeconds float64, cost models.Money) error

	// MarkEnded transitions a user_stream row to Ended and stamps ends_at.
	MarkEnded(ctx context.Context, streamID uuid.UUID, endsAt time.Time) error

	// MarkLowBalanceNotified sets the low-balance-notified flag so the
	// overseer emits at most one DM per stream session.
	MarkLowBalanceNotified(ctx context.Context, streamID uuid.UUID) error

	// ListLiveByUser returns the stream ids currently Live for a user.
	// The admin-block poller does not call it; it finds a user's live
	// streams through the overseer's in-memory Registry.
	ListLiveByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}
