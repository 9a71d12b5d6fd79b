package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"posbridge/internal/model"
	"posbridge/internal/service"
)

type fakeDeviceStore struct {
	device     *model.Device
	apiKey     string
	generated  []string
	setActive  map[string]bool
	genErr     error
	activeErr  error
	listResult []model.Device
}

func (f *fakeDeviceStore) Generate(ctx context.Context, tenantSlug, deviceName string) (*model.Device, string, error) {
	if f.genErr != nil {
		return nil, "", f.genErr
	}
	f.generated = append(f.generated, deviceName)
	return f.device, f.apiKey, nil
}

func (f *fakeDeviceStore) ListByTenant(ctx context.Context, tenantSlug string) ([]model.Device, error) {
	return f.listResult, nil
}

func (f *fakeDeviceStore) SetActive(ctx context.Context, deviceID string, active bool) error {
	if f.activeErr != nil {
		return f.activeErr
	}
	if f.setActive == nil {
		f.setActive = make(map[string]bool)
	}
	f.setActive[deviceID] = active
	return nil
}

func TestCreateDeviceReturnsKeyOnce(t *testing.T) {
	store := &fakeDeviceStore{
		device: &model.Device{
			DeviceID:     "KITCHEN-ABC123",
			TenantID:     "t-1",
			DeviceName:   "Kitchen",
			APIKeyPrefix: "pos_1234",
			IsActive:     true,
		},
		apiKey: "pos_1234567890abcdef",
	}
	h := CreateDeviceHandler(store)

	body := []byte(`{"tenant_slug":"kitchen","device_name":"Kitchen"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/pos-devices", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["api_key"] != "pos_1234567890abcdef" {
		t.Fatalf("full api key must be returned on creation: %v", resp)
	}
	warning, _ := resp["warning"].(string)
	if !strings.Contains(warning, "cannot be retrieved again") {
		t.Fatalf("caller must be warned the key is one-time: %v", resp)
	}
}

func TestCreateDeviceUnknownTenant(t *testing.T) {
	h := CreateDeviceHandler(&fakeDeviceStore{genErr: service.ErrTenantNotFound})

	body := []byte(`{"tenant_slug":"nope","device_name":"Kitchen"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/pos-devices", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListDevicesExposesOnlyPrefix(t *testing.T) {
	store := &fakeDeviceStore{listResult: []model.Device{
		{DeviceID: "KITCHEN-ABC123", DeviceName: "Kitchen", APIKeyPrefix: "pos_1234", IsActive: true},
	}}
	h := ListDevicesHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/pos-devices?tenant=kitchen", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "pos_1234") {
		t.Fatalf("list should include the key prefix: %s", body)
	}
	if strings.Contains(body, "pos_1234567890abcdef") {
		t.Fatalf("list must never expose a full api key: %s", body)
	}
}

func TestDeleteDeviceIsSoft(t *testing.T) {
	store := &fakeDeviceStore{}
	h := DeleteDeviceHandler(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/pos-devices?device_id=KITCHEN-ABC123", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if active, ok := store.setActive["KITCHEN-ABC123"]; !ok || active {
		t.Fatalf("delete must deactivate, not remove: %v", store.setActive)
	}
}

func TestUpdateDeviceRequiresFields(t *testing.T) {
	h := UpdateDeviceHandler(&fakeDeviceStore{})

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/pos-devices", bytes.NewReader([]byte(`{"device_id":"X"}`)))
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing is_active must 400, got %d", rec.Code)
	}
}

func TestUpdateDeviceNotFound(t *testing.T) {
	h := UpdateDeviceHandler(&fakeDeviceStore{activeErr: service.ErrDeviceNotFound})

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/pos-devices",
		bytes.NewReader([]byte(`{"device_id":"GHOST","is_active":true}`)))
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
