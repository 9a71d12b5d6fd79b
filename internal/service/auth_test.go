package service

import (
	"context"
	"errors"
	"testing"
)

type fakeAuthenticator struct {
	principal *Principal
	err       error
	calls     int
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Principal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

func TestChainFirstMatchWins(t *testing.T) {
	device := &fakeAuthenticator{principal: &Principal{TenantID: "t-1", TenantSlug: "kitchen", DeviceID: "KITCHEN-ABC"}}
	tenant := &fakeAuthenticator{principal: &Principal{TenantID: "t-1", TenantSlug: "kitchen"}}

	chain := NewChain(device, tenant)
	p, err := chain.Authenticate(context.Background(), "pos_abc")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if p.DeviceID != "KITCHEN-ABC" {
		t.Fatalf("expected device principal, got %+v", p)
	}
	if tenant.calls != 0 {
		t.Fatalf("tenant authenticator must not run when device key matches")
	}
}

func TestChainFallsBackToLegacyTenantKey(t *testing.T) {
	device := &fakeAuthenticator{err: ErrInvalidAPIKey}
	tenant := &fakeAuthenticator{principal: &Principal{TenantID: "t-1", TenantSlug: "kitchen"}}

	chain := NewChain(device, tenant)
	p, err := chain.Authenticate(context.Background(), "legacy-key")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if p.DeviceID != "" {
		t.Fatalf("tenant principal must not carry a device id")
	}
	if device.calls != 1 || tenant.calls != 1 {
		t.Fatalf("expected both authenticators tried in order")
	}
}

func TestChainAllMiss(t *testing.T) {
	chain := NewChain(
		&fakeAuthenticator{err: ErrInvalidAPIKey},
		&fakeAuthenticator{err: ErrInvalidAPIKey},
	)
	_, err := chain.Authenticate(context.Background(), "nope")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestChainPropagatesInfrastructureError(t *testing.T) {
	boom := errors.New("db down")
	tenant := &fakeAuthenticator{principal: &Principal{TenantID: "t-1"}}
	chain := NewChain(&fakeAuthenticator{err: boom}, tenant)

	_, err := chain.Authenticate(context.Background(), "key")
	if !errors.Is(err, boom) {
		t.Fatalf("expected infrastructure error to propagate, got %v", err)
	}
	if tenant.calls != 0 {
		t.Fatalf("chain must stop on non-credential errors")
	}
}

func TestChainEmptyKey(t *testing.T) {
	device := &fakeAuthenticator{principal: &Principal{TenantID: "t-1"}}
	chain := NewChain(device)

	_, err := chain.Authenticate(context.Background(), "")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey for empty key, got %v", err)
	}
	if device.calls != 0 {
		t.Fatalf("empty key must not hit authenticators")
	}
}
