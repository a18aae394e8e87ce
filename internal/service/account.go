package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vistaflix/tvlink/internal/audit"
	"github.com/vistaflix/tvlink/internal/config"
	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/model"
	"github.com/vistaflix/tvlink/internal/repository"
	"github.com/vistaflix/tvlink/internal/util"
)

// AccountService handles user identity and login sessions. Session tokens are
// opaque random strings; only an HMAC of the token is persisted, so a leaked
// sessions table cannot be replayed.
type AccountService struct {
	userRepo      repository.UserRepository
	sessionRepo   repository.SessionRepository
	sessionSecret string
}

func NewAccountService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, sessionSecret string) *AccountService {
	return &AccountService{
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		sessionSecret: sessionSecret,
	}
}

// AuthenticateOrRegister resolves an email/password pair to a user, creating
// the account on first sight. A wrong password on an existing account is
// InvalidCredentials, never a new account.
func (s *AccountService) AuthenticateOrRegister(ctx context.Context, email, password string) (*model.User, error) {
	normalized := NormalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if user == nil {
		hash, err := util.HashPassword(password)
		if err != nil {
			return nil, apperrors.Internal("Could not hash password").WithCause(err)
		}
		user, err = s.userRepo.Create(ctx, model.CreateUserParams{
			Email:        normalized,
			PasswordHash: hash,
		})
		if err != nil {
			return nil, apperrors.Database(err)
		}
		log.Info().Str("userId", user.ID).Msg("user registered during activation")
		audit.Log(ctx, audit.Event{Type: audit.EventUserCreate, UserID: user.ID})
		return user, nil
	}

	if !util.CheckPasswordHash(password, user.PasswordHash) {
		log.Warn().Str("email", normalized).Msg("activation with wrong password for existing account")
		return nil, apperrors.InvalidCredentials()
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("userId", user.ID).Msg("failed to update last login")
	}

	return user, nil
}

// Authenticate verifies a login without creating accounts. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	normalized := NormalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperrors.InvalidCredentials()
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("userId", user.ID).Msg("failed to update last login")
	}

	return user, nil
}

// CreateSession issues a new session token for the user. The raw token goes
// to the client; the store only sees its HMAC.
func (s *AccountService) CreateSession(ctx context.Context, userID string) (string, *model.Session, error) {
	token, err := util.GenerateToken()
	if err != nil {
		return "", nil, apperrors.Internal("Could not generate session token").WithCause(err)
	}

	session, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		TokenHash: s.hashToken(token),
		UserID:    userID,
		ExpiresAt: time.Now().Add(config.SessionTTL),
	})
	if err != nil {
		return "", nil, apperrors.Database(err)
	}

	return token, session, nil
}

// ValidateSession resolves a raw token to its user, or Unauthorized.
func (s *AccountService) ValidateSession(ctx context.Context, token string) (*model.User, error) {
	session, err := s.sessionRepo.FindByTokenHash(ctx, s.hashToken(token))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.Unauthorized("Invalid or expired session")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.Unauthorized("Session user no longer exists")
	}

	return user, nil
}

// Logout removes the session behind the token. Unknown tokens are a no-op.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	session, err := s.sessionRepo.FindByTokenHash(ctx, s.hashToken(token))
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		return nil
	}
	if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *AccountService) hashToken(token string) string {
	if s.sessionSecret != "" {
		return util.HmacSHA256(s.sessionSecret, token)
	}
	return util.HashToken(token)
}

// NormalizeEmail lowercases and trims an address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
