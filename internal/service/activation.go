package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vistaflix/tvlink/internal/config"
	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/metrics"
	"github.com/vistaflix/tvlink/internal/model"
	"github.com/vistaflix/tvlink/internal/repository"
	"github.com/vistaflix/tvlink/internal/util"
	"github.com/vistaflix/tvlink/internal/xtream"
)

// Alphabet excludes ambiguous O/I/0/1 so codes survive being read off a TV
// screen and typed on a phone.
const activationCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// StatusResult is what a polling display device sees.
type StatusResult struct {
	Valid       bool    `json:"valid"`
	IsActivated bool    `json:"isActivated"`
	UserID      *string `json:"userId,omitempty"`
}

// ActivateResult is returned to the control device on successful consumption.
type ActivateResult struct {
	Code *model.ActivationCode
	User *model.User
}

// ActivationService owns the pairing-code lifecycle: generation with
// uniqueness retries, status reads for the polling TV, and the single
// consume transition.
type ActivationService struct {
	codeRepo      repository.ActivationCodeRepository
	userRepo      repository.UserRepository
	accounts      *AccountService
	provider      *xtream.Client
	ttl           time.Duration
	encryptionKey string
}

func NewActivationService(
	codeRepo repository.ActivationCodeRepository,
	userRepo repository.UserRepository,
	accounts *AccountService,
	provider *xtream.Client,
	ttl time.Duration,
	encryptionKey string,
) *ActivationService {
	return &ActivationService{
		codeRepo:      codeRepo,
		userRepo:      userRepo,
		accounts:      accounts,
		provider:      provider,
		ttl:           ttl,
		encryptionKey: encryptionKey,
	}
}

// CreateCode issues a fresh pending code for a display device. pending, when
// non-nil, attaches streaming credentials ahead of consumption for the
// authenticated-generator flow; they are encrypted at rest and transferred to
// the account that eventually consumes the code.
//
// Uniqueness among live codes is enforced by the store's unique index; the
// generator retries a bounded number of times on collision. With a 32-symbol
// alphabet and 6 positions a collision is vanishingly rare, but the
// exhaustion path is still a real error, not an assumption.
func (s *ActivationService) CreateCode(ctx context.Context, pending *xtream.Credentials) (*model.ActivationCode, error) {
	var pendingPayload *string
	if pending != nil {
		payload, err := sealCredentials(s.encryptionKey, *pending)
		if err != nil {
			return nil, fmt.Errorf("seal pending credentials: %w", err)
		}
		pendingPayload = &payload
	}

	for attempt := 0; attempt < config.ActivationCodeMaxAttempts; attempt++ {
		code := generateActivationCode()

		ac, err := s.codeRepo.Create(ctx, model.CreateActivationCodeParams{
			Code:               code,
			ExpiresAt:          time.Now().Add(s.ttl),
			PendingCredentials: pendingPayload,
		})
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeDuplicateCode) {
				log.Debug().Str("code", util.MaskCode(code)).Msg("activation code collision, retrying")
				continue
			}
			return nil, apperrors.Database(err)
		}

		metrics.CodesCreated.Inc()
		log.Info().
			Str("code", ac.Code).
			Time("expiresAt", ac.ExpiresAt).
			Bool("hasPendingCredentials", pendingPayload != nil).
			Msg("activation code created")

		return ac, nil
	}

	return nil, apperrors.GenerationExhausted(config.ActivationCodeMaxAttempts)
}

// Status reports the state of an unexpired code. Expired and never-issued
// codes produce the same NotFoundOrExpired error so a caller cannot tell
// them apart.
func (s *ActivationService) Status(ctx context.Context, code string) (*StatusResult, error) {
	normalized := NormalizeCode(code)

	ac, err := s.codeRepo.FindValid(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if ac == nil {
		return nil, apperrors.NotFoundOrExpired()
	}

	return &StatusResult{
		Valid:       true,
		IsActivated: ac.Status == model.ActivationStatusConsumed,
		UserID:      ac.UserID,
	}, nil
}

// Activate consumes a live code on behalf of the control device: it resolves
// the identity (login to an existing account or registration of a new one),
// validates any pending streaming credentials against the provider, then runs
// the conditional update that is the only pending→consumed transition in the
// system. A failed identity or provider check leaves the code pending so the
// user can retry. Pending credentials are written to the account only after
// the consume succeeds; a caller who loses the consume race must not walk
// away with the code creator's credentials.
func (s *ActivationService) Activate(ctx context.Context, code, email, password string) (*ActivateResult, error) {
	normalized := NormalizeCode(code)

	ac, err := s.codeRepo.FindLive(ctx, normalized)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if ac == nil {
		return nil, s.classifyConsumeFailure(ctx, normalized)
	}

	user, err := s.accounts.AuthenticateOrRegister(ctx, email, password)
	if err != nil {
		return nil, err
	}

	var pending *xtream.Credentials
	if ac.PendingCredentials != nil {
		pending, err = s.verifyPendingCredentials(ctx, *ac.PendingCredentials)
		if err != nil {
			return nil, err
		}
	}

	consumed, err := s.codeRepo.Consume(ctx, normalized, user.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if consumed == nil {
		// Lost the race between our read and the update, or the code expired
		// in between. Re-read to classify.
		return nil, s.classifyConsumeFailure(ctx, normalized)
	}

	if pending != nil {
		if err := s.storeCredentials(ctx, user.ID, *pending); err != nil {
			return nil, err
		}
	}

	metrics.CodesConsumed.Inc()
	log.Info().
		Str("code", consumed.Code).
		Str("userId", user.ID).
		Msg("activation code consumed")

	return &ActivateResult{Code: consumed, User: user}, nil
}

func (s *ActivationService) classifyConsumeFailure(ctx context.Context, code string) error {
	existing, err := s.codeRepo.FindValid(ctx, code)
	if err != nil {
		return apperrors.Database(err)
	}
	if existing != nil && existing.Status == model.ActivationStatusConsumed {
		metrics.ConsumeConflicts.Inc()
		return apperrors.AlreadyConsumed()
	}
	metrics.ConsumeRejected.Inc()
	return apperrors.NotFoundOrExpired()
}

func (s *ActivationService) verifyPendingCredentials(ctx context.Context, sealed string) (*xtream.Credentials, error) {
	creds, err := openCredentials(s.encryptionKey, sealed)
	if err != nil {
		return nil, apperrors.Internal("Could not read pending credentials").WithCause(err)
	}

	ok, err := s.provider.ValidateCredentials(ctx, creds)
	if err != nil {
		return nil, apperrors.UpstreamValidation(err)
	}
	if !ok {
		return nil, apperrors.UpstreamValidation(fmt.Errorf("provider refused subscriber %s", creds.Username))
	}

	return &creds, nil
}

func (s *ActivationService) storeCredentials(ctx context.Context, userID string, creds xtream.Credentials) error {
	sealed, err := sealCredentials(s.encryptionKey, creds)
	if err != nil {
		return apperrors.Internal("Could not store credentials").WithCause(err)
	}

	if err := s.userRepo.UpdateXtreamCredentials(ctx, userID, creds.URL, sealed); err != nil {
		return apperrors.Database(err)
	}

	return nil
}

// NormalizeCode uppercases and trims a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateActivationCode() string {
	chars := []byte(activationCodeChars)
	code := make([]byte, config.ActivationCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code[i] = chars[n.Int64()]
	}
	return string(code)
}
