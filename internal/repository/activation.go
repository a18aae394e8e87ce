package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/model"
)

// ActivationCodeRepository persists pairing codes. Consume is the only
// contended operation; it must be a single conditional update so that two
// racing callers cannot both win.
type ActivationCodeRepository interface {
	Create(ctx context.Context, params model.CreateActivationCodeParams) (*model.ActivationCode, error)
	// FindLive returns a code only while it is still consumable: pending and
	// unexpired. Expired and never-issued codes are both reported as nil.
	FindLive(ctx context.Context, code string) (*model.ActivationCode, error)
	// FindValid returns any unexpired code, consumed or not. The display
	// device polls through this so it can observe the consumed transition.
	FindValid(ctx context.Context, code string) (*model.ActivationCode, error)
	// Consume atomically transitions a live code to consumed and binds the
	// user. Returns nil (no error) when the conditional update matched no
	// row: the code was never issued, expired, or lost a race.
	Consume(ctx context.Context, code, userID string) (*model.ActivationCode, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type activationCodeRepo struct {
	db *sqlx.DB
}

func NewActivationCodeRepository(db *sqlx.DB) ActivationCodeRepository {
	return &activationCodeRepo{db: db}
}

func (r *activationCodeRepo) Create(ctx context.Context, params model.CreateActivationCodeParams) (*model.ActivationCode, error) {
	var ac model.ActivationCode
	err := r.db.GetContext(ctx, &ac, `
		INSERT INTO activation_codes (code, status, expires_at, pending_credentials)
		VALUES ($1, 'pending', $2, $3)
		RETURNING *
	`, params.Code, params.ExpiresAt, params.PendingCredentials)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, apperrors.DuplicateCode(params.Code)
		}
		return nil, err
	}
	return &ac, nil
}

func (r *activationCodeRepo) FindLive(ctx context.Context, code string) (*model.ActivationCode, error) {
	var ac model.ActivationCode
	err := r.db.GetContext(ctx, &ac, `
		SELECT * FROM activation_codes
		WHERE code = $1 AND status = 'pending' AND expires_at > NOW()
	`, code)
	return HandleNotFound(&ac, err)
}

func (r *activationCodeRepo) FindValid(ctx context.Context, code string) (*model.ActivationCode, error) {
	var ac model.ActivationCode
	err := r.db.GetContext(ctx, &ac, `
		SELECT * FROM activation_codes
		WHERE code = $1 AND expires_at > NOW()
	`, code)
	return HandleNotFound(&ac, err)
}

func (r *activationCodeRepo) Consume(ctx context.Context, code, userID string) (*model.ActivationCode, error) {
	var ac model.ActivationCode
	err := r.db.GetContext(ctx, &ac, `
		UPDATE activation_codes SET
			status = 'consumed',
			user_id = $2,
			consumed_at = NOW()
		WHERE code = $1 AND status = 'pending' AND expires_at > NOW()
		RETURNING *
	`, code, userID)
	return HandleNotFound(&ac, err)
}

func (r *activationCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM activation_codes
		WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
