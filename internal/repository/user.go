package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vistaflix/tvlink/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
	UpdateXtreamCredentials(ctx context.Context, id, url, encryptedCredentials string) error
	Delete(ctx context.Context, id string) error
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = $1`, email)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING *
	`, params.Email, params.PasswordHash)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = $2 WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *userRepo) UpdateXtreamCredentials(ctx context.Context, id, url, encryptedCredentials string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET xtream_url = $2, xtream_credentials = $3 WHERE id = $1
	`, id, url, encryptedCredentials)
	return err
}

func (r *userRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}
