package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"posbridge/internal/model"
)

var ErrInvalidCredentials = errors.New("invalid login or password")

type AdminService struct {
	db *sql.DB
}

func NewAdminService(db *sql.DB) *AdminService {
	return &AdminService{db: db}
}

func (s *AdminService) Authenticate(ctx context.Context, login, password string) (*model.AdminUser, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, login, password_hash, created_at FROM admin_users WHERE login = $1`, login)

	var user model.AdminUser
	if err := row.Scan(&user.ID, &user.Login, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get admin user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

func (s *AdminService) Register(ctx context.Context, login, password string) (*model.AdminUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO admin_users (login, password_hash) VALUES ($1, $2) RETURNING id, login, created_at`,
		login, hash)

	var user model.AdminUser
	if err := row.Scan(&user.ID, &user.Login, &user.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert admin user: %w", err)
	}
	user.PasswordHash = hash

	return &user, nil
}
