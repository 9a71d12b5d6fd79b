package service

import (
	"context"
	"errors"
	"fmt"
)

// Principal is the identity resolved from a POS API key. DeviceID is empty
// when the caller authenticated with a legacy tenant-level key.
type Principal struct {
	TenantID   string
	TenantSlug string
	DeviceID   string
	DeviceName string
}

// Authenticator resolves an API key to a principal. Implementations return
// ErrInvalidAPIKey when the key does not match their credential scheme.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*Principal, error)
}

// Chain tries authenticators in a fixed priority order. Device keys are
// checked before legacy tenant keys during the migration window.
type Chain struct {
	authenticators []Authenticator
}

func NewChain(authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators}
}

func (c *Chain) Authenticate(ctx context.Context, apiKey string) (*Principal, error) {
	if apiKey == "" {
		return nil, ErrInvalidAPIKey
	}
	for _, a := range c.authenticators {
		p, err := a.Authenticate(ctx, apiKey)
		if err != nil {
			if errors.Is(err, ErrInvalidAPIKey) {
				continue
			}
			return nil, err
		}
		return p, nil
	}
	return nil, ErrInvalidAPIKey
}

type DeviceAuthenticator struct {
	devices *DeviceService
	tenants *TenantService
}

func NewDeviceAuthenticator(devices *DeviceService, tenants *TenantService) *DeviceAuthenticator {
	return &DeviceAuthenticator{devices: devices, tenants: tenants}
}

func (a *DeviceAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Principal, error) {
	device, err := a.devices.AuthenticateKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	tenant, err := a.tenants.ByID(ctx, device.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve device tenant: %w", err)
	}
	return &Principal{
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		DeviceID:   device.DeviceID,
		DeviceName: device.DeviceName,
	}, nil
}

type TenantAuthenticator struct {
	tenants *TenantService
}

func NewTenantAuthenticator(tenants *TenantService) *TenantAuthenticator {
	return &TenantAuthenticator{tenants: tenants}
}

func (a *TenantAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Principal, error) {
	tenant, err := a.tenants.AuthenticateKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return &Principal{TenantID: tenant.ID, TenantSlug: tenant.Slug}, nil
}
