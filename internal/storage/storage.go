package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"vidmatch/backend/internal/models"
)

// UsageDelta is a best-effort increment to a user's usage counters.
type UsageDelta struct {
	Chats   int
	Minutes int
}

// Storage is the chat core's view of the external profile and counter
// collaborators. Reads are synchronous; the Increment/Touch/Save methods are
// called fire-and-forget and their failures are only ever logged.
type Storage interface {
	GetProfile(userID string) (*models.User, error)
	SaveUserIfNotExists(userID string) (*models.User, error)
	IsUserBanned(userID string) (bool, error)

	IncrementUsage(userID string, delta UsageDelta) error
	TouchLastActive(userID string) error
	SaveCallRecord(rec *models.CallRecord) error
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// GetProfile loads a user's profile from PostgreSQL.
func (s *Service) GetProfile(userID string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Str("module", "storage").Str("user_id", userID).Msg("failed to load profile")
		return nil, err
	}
	return &user, nil
}

// SaveUserIfNotExists creates a bare profile row on first contact and
// returns the stored record either way.
func (s *Service) SaveUserIfNotExists(userID string) (*models.User, error) {
	user := models.User{ID: userID}
	result := s.DB.Where("id = ?", userID).FirstOrCreate(&user)
	if result.Error != nil {
		log.Error().Err(result.Error).Str("module", "storage").Str("user_id", userID).Msg("failed to save user on first contact")
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		log.Info().Str("module", "storage").Str("user_id", userID).Msg("new user created")
	}
	return &user, nil
}

// IsUserBanned checks the ban flag in Redis. The flag is written by the
// moderation system; this service only reads it.
func (s *Service) IsUserBanned(userID string) (bool, error) {
	status, err := s.Redis.Get(s.Ctx, "ban:"+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// IncrementUsage bumps per-user usage counters in Redis.
func (s *Service) IncrementUsage(userID string, delta UsageDelta) error {
	key := "usage:" + userID
	if delta.Chats != 0 {
		if err := s.Redis.HIncrBy(s.Ctx, key, "chats", int64(delta.Chats)).Err(); err != nil {
			return err
		}
	}
	if delta.Minutes != 0 {
		if err := s.Redis.HIncrBy(s.Ctx, key, "minutes", int64(delta.Minutes)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// TouchLastActive stamps the profile row with the current time.
func (s *Service) TouchLastActive(userID string) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_active_at", time.Now()).Error
}

// SaveCallRecord archives a finished call session.
func (s *Service) SaveCallRecord(rec *models.CallRecord) error {
	if err := s.DB.Create(rec).Error; err != nil {
		log.Error().Err(err).Str("module", "storage").Str("call_id", rec.CallID).Msg("failed to archive call record")
		return err
	}
	return nil
}
