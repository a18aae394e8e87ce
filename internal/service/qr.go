package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	apperrors "github.com/vistaflix/tvlink/internal/errors"
	redisclient "github.com/vistaflix/tvlink/internal/redis"
)

// QRSession is the short-lived handshake behind the QR login flow: the TV
// creates a session and renders its id as a QR code, the phone scans it and
// verifies, the TV polls until verified. Sessions live in redis so every
// instance behind a load balancer sees the same state and expiry is free.
type QRSession struct {
	ID        string    `json:"id"`
	Verified  bool      `json:"verified"`
	UserID    *string   `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type QRService struct {
	redis *redisclient.Client
	ttl   time.Duration
}

func NewQRService(redis *redisclient.Client, ttl time.Duration) *QRService {
	return &QRService{redis: redis, ttl: ttl}
}

// Create starts a new unverified session.
func (s *QRService) Create(ctx context.Context) (*QRSession, error) {
	session := &QRSession{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, apperrors.Internal("Could not encode session").WithCause(err)
	}

	if err := s.redis.Set(ctx, redisclient.QRSessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return nil, apperrors.Internal("Could not store session").WithCause(err)
	}

	log.Debug().Str("sessionId", session.ID).Msg("qr session created")
	return session, nil
}

// Get returns the session, or NotFoundOrExpired once redis has dropped it.
func (s *QRService) Get(ctx context.Context, sessionID string) (*QRSession, error) {
	data, err := s.redis.Get(ctx, redisclient.QRSessionKey(sessionID)).Result()
	if err == goredis.Nil {
		return nil, apperrors.NotFoundOrExpired()
	}
	if err != nil {
		return nil, apperrors.Internal("Could not load session").WithCause(err)
	}

	var session QRSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, apperrors.Internal("Could not decode session").WithCause(err)
	}
	return &session, nil
}

// Verify marks the session as verified by the given user. The write is
// conditional on the key still existing (SET XX, keeping the original TTL),
// so a session that expired between scan and submit stays gone.
func (s *QRService) Verify(ctx context.Context, sessionID, userID string) (*QRSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.Verified = true
	session.UserID = &userID

	data, err := json.Marshal(session)
	if err != nil {
		return nil, apperrors.Internal("Could not encode session").WithCause(err)
	}

	set, err := s.redis.SetArgs(ctx, redisclient.QRSessionKey(sessionID), data, goredis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Result()
	if err == goredis.Nil || set == "" {
		return nil, apperrors.NotFoundOrExpired()
	}
	if err != nil {
		return nil, apperrors.Internal("Could not store session").WithCause(err)
	}

	log.Info().Str("sessionId", sessionID).Str("userId", userID).Msg("qr session verified")
	return session, nil
}
