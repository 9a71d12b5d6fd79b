package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"posbridge/internal/model"
)

var ErrDeviceNotFound = errors.New("device not found")

const apiKeyPrefixLen = 8

type DeviceService struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewDeviceService(db *sql.DB) *DeviceService {
	return &DeviceService{db: db, nowFunc: time.Now}
}

// GenerateDeviceID derives a device id from the sanitized uppercase device
// name plus a base-36 timestamp suffix. The timestamp makes collisions
// practically impossible without a uniqueness round-trip; a duplicate still
// trips the primary key and is surfaced to the caller.
func GenerateDeviceID(deviceName string, now time.Time) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToUpper(deviceName) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		name = "POS"
	}
	suffix := strings.ToUpper(strconv.FormatInt(now.UnixNano(), 36))
	return name + "-" + suffix
}

// GenerateAPIKey returns a fresh high-entropy device key. The full key is
// shown to the caller exactly once; only its prefix is stored for display.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return "pos_" + hex.EncodeToString(b), nil
}

// Generate creates a device for the tenant and returns it together with
// the one-time API key.
func (s *DeviceService) Generate(ctx context.Context, tenantSlug, deviceName string) (*model.Device, string, error) {
	var tenantID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tenants WHERE slug = $1`, tenantSlug).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrTenantNotFound
		}
		return nil, "", fmt.Errorf("lookup tenant: %w", err)
	}

	apiKey, err := GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	now := s.nowFunc()
	device := &model.Device{
		DeviceID:     GenerateDeviceID(deviceName, now),
		TenantID:     tenantID,
		DeviceName:   deviceName,
		APIKeyPrefix: apiKey[:apiKeyPrefixLen],
		IsActive:     true,
		CreatedAt:    now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pos_devices (device_id, tenant_id, device_name, api_key, api_key_prefix, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`, device.DeviceID, device.TenantID, device.DeviceName, apiKey, device.APIKeyPrefix, now)
	if err != nil {
		return nil, "", fmt.Errorf("insert device: %w", err)
	}

	return device, apiKey, nil
}

// AuthenticateKey looks up an active device by exact key match and touches
// its liveness timestamps.
func (s *DeviceService) AuthenticateKey(ctx context.Context, apiKey string) (*model.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pos_devices
		SET last_seen_at = NOW(), last_heartbeat_at = NOW()
		WHERE api_key = $1 AND is_active = TRUE
		RETURNING device_id, tenant_id, device_name, api_key_prefix, is_active, last_seen_at, last_heartbeat_at, created_at
	`, apiKey)

	var d model.Device
	err := row.Scan(&d.DeviceID, &d.TenantID, &d.DeviceName, &d.APIKeyPrefix, &d.IsActive,
		&d.LastSeenAt, &d.LastHeartbeatAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("authenticate device: %w", err)
	}
	return &d, nil
}

// SetActive toggles device visibility. Deactivation is the delete path;
// history stays intact.
func (s *DeviceService) SetActive(ctx context.Context, deviceID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pos_devices SET is_active = $1 WHERE device_id = $2`, active, deviceID)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *DeviceService) ListByTenant(ctx context.Context, tenantSlug string) ([]model.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.device_id, d.tenant_id, d.device_name, d.api_key_prefix, d.is_active,
		       d.last_seen_at, d.last_heartbeat_at, d.created_at
		FROM pos_devices d
		JOIN tenants t ON t.id = d.tenant_id
		WHERE t.slug = $1
		ORDER BY d.created_at DESC
	`, tenantSlug)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.DeviceID, &d.TenantID, &d.DeviceName, &d.APIKeyPrefix, &d.IsActive,
			&d.LastSeenAt, &d.LastHeartbeatAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return devices, nil
}
