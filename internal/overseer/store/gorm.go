package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jmylchreest/zapengine/internal/models"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// gormUserStore implements UserStore using GORM.
type gormUserStore struct {
	db *gorm.DB
}

// NewUserStore creates a new UserStore backed by db.
func NewUserStore(db *gorm.DB) UserStore {
	return &gormUserStore{db: db}
}

func (s *gormUserStore) GetByStreamKey(ctx context.Context, streamKey string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("stream_key = ?", streamKey).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user by stream key: %w", err)
	}
	return &user, nil
}

func (s *gormUserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user by id: %w", err)
	}
	return &user, nil
}

func (s *gormUserStore) DebitBalance(ctx context.Context, userID uuid.UUID, amount models.Money) (models.Money, error) {
	var newBalance models.Money
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("locking user row: %w", err)
		}

		newBalance = user.BalanceMsat.Sub(amount)
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("balance_msat", newBalance).Error; err != nil {
			return fmt.Errorf("updating balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (s *gormUserStore) SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool) error {
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).Update("is_blocked", blocked).Error; err != nil {
		return fmt.Errorf("setting blocked flag: %w", err)
	}
	return nil
}

func (s *gormUserStore) ListBlocked(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("is_blocked = ?", true).Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing blocked users: %w", err)
	}
	return ids, nil
}

// gormEndpointStore implements EndpointStore using GORM.
type gormEndpointStore struct {
	db *gorm.DB
}

// NewEndpointStore creates a new EndpointStore backed by db.
func NewEndpointStore(db *gorm.DB) EndpointStore {
	return &gormEndpointStore{db: db}
}

func (s *gormEndpointStore) GetByName(ctx context.Context, name string) (*models.IngestEndpoint, error) {
	var endpoint models.IngestEndpoint
	err := s.db.WithContext(ctx).
		Where("lower(name) = ?", strings.ToLower(name)).
		First(&endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up endpoint by name: %w", err)
	}
	return &endpoint, nil
}

func (s *gormEndpointStore) GetByID(ctx context.Context, endpointID string) (*models.IngestEndpoint, error) {
	var endpoint models.IngestEndpoint
	err := s.db.WithContext(ctx).Where("id = ?", endpointID).First(&endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up endpoint by id: %w", err)
	}
	return &endpoint, nil
}

// gormStreamStore implements StreamStore using GORM.
type gormStreamStore struct {
	db *gorm.DB
}

// NewStreamStore creates a new StreamStore backed by db.
func NewStreamStore(db *gorm.DB) StreamStore {
	return &gormStreamStore{db: db}
}

func (s *gormStreamStore) Create(ctx context.Context, stream *models.UserStream) error {
	if err := s.db.WithContext(ctx).Create(stream).Error; err != nil {
		return fmt.Errorf("creating user_stream row: %w", err)
	}
	return nil
}

func (s *gormStreamStore) Get(ctx context.Context, streamID uuid.UUID) (*models.UserStream, error) {
	var stream models.UserStream
	err := s.db.WithContext(ctx).Where("id = ?", streamID).First(&stream).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user_stream: %w", err)
	}
	return &stream, nil
}

func (s *gormStreamStore) AddProgress(ctx context.Context, streamID uuid.UUID, durationSeconds float64, cost models.Money) error {
	err := s.db.WithContext(ctx).Model(&models.UserStream{}).Where("id = ?", streamID).
		Updates(map[string]any{
			"duration_seconds": gorm.Expr("duration_seconds + ?", durationSeconds),
			"cost_msat":        gorm.Expr("cost_msat + ?", cost.MinorUnits()),
		}).Error
	if err != nil {
		return fmt.Errorf("updating user_stream progress: %w", err)
	}
	return nil
}

func (s *gormStreamStore) MarkEnded(ctx context.Context, streamID uuid.UUID, endsAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.UserStream{}).Where("id = ?", streamID).
		Updates(map[string]any{
			"state":   models.StreamStateEnded,
			"ends_at": endsAt,
		}).Error
	if err != nil {
		return fmt.Errorf("marking user_stream ended: %w", err)
	}
	return nil
}

func (s *gormStreamStore) MarkLowBalanceNotified(ctx context.Context, streamID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&models.UserStream{}).Where("id = ?", streamID).
		Update("low_balance_notified", true).Error
	if err != nil {
		return fmt.Errorf("marking low balance notified: %w", err)
	}
	return nil
}

func (s *gormStreamStore) ListLiveByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.UserStream{}).
		Where("user_id = ? AND state = ?", userID, models.StreamStateLive).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing live streams for user: %w", err)
	}
	return ids, nil
}
