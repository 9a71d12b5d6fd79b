package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"posbridge/internal/model"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrInvalidAPIKey  = errors.New("invalid api key")
)

type TenantService struct {
	db *sql.DB
}

func NewTenantService(db *sql.DB) *TenantService {
	return &TenantService{db: db}
}

const tenantColumns = `id, slug, name, api_key, pos_webhook_url, webhook_secret, created_at`

func scanTenant(row *sql.Row) (*model.Tenant, error) {
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.APIKey, &t.POSWebhookURL, &t.WebhookSecret, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}

func (s *TenantService) BySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	return scanTenant(row)
}

func (s *TenantService) ByID(ctx context.Context, id string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// AuthenticateKey resolves a legacy tenant-level API key. Kept for POS
// integrations that predate per-device keys.
func (s *TenantService) AuthenticateKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE api_key = $1`, apiKey)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, err
	}
	return t, nil
}
