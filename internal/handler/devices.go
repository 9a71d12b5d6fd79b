package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"posbridge/internal/service"
)

type createDeviceRequest struct {
	TenantSlug string `json:"tenant_slug" validate:"required"`
	DeviceName string `json:"device_name" validate:"required"`
}

// CreateDeviceHandler generates a device and returns its API key exactly
// once. Only the prefix is ever shown again.
func CreateDeviceHandler(devices DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDeviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "tenant_slug and device_name are required")
			return
		}

		device, apiKey, err := devices.Generate(r.Context(), req.TenantSlug, req.DeviceName)
		if err != nil {
			if errors.Is(err, service.ErrTenantNotFound) {
				writeError(w, http.StatusNotFound, "tenant not found")
				return
			}
			slog.Error("device generation failed", "tenant", req.TenantSlug, "error", err)
			writeInternalError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"device":  device,
			"api_key": apiKey,
			"warning": "store this key now; it cannot be retrieved again",
		})
	}
}

func ListDevicesHandler(devices DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := r.URL.Query().Get("tenant")
		if tenant == "" {
			writeError(w, http.StatusBadRequest, "tenant is required")
			return
		}

		list, err := devices.ListByTenant(r.Context(), tenant)
		if err != nil {
			slog.Error("device list failed", "tenant", tenant, "error", err)
			writeInternalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"count":   len(list),
			"devices": list,
		})
	}
}

type updateDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	IsActive *bool  `json:"is_active" validate:"required"`
}

func UpdateDeviceHandler(devices DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateDeviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "device_id and is_active are required")
			return
		}

		if err := devices.SetActive(r.Context(), req.DeviceID, *req.IsActive); err != nil {
			if errors.Is(err, service.ErrDeviceNotFound) {
				writeError(w, http.StatusNotFound, "device not found")
				return
			}
			slog.Error("device update failed", "device_id", req.DeviceID, "error", err)
			writeInternalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"device_id": req.DeviceID,
			"is_active": *req.IsActive,
		})
	}
}

// DeleteDeviceHandler deactivates; device rows and their history are never
// hard-deleted.
func DeleteDeviceHandler(devices DeviceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.URL.Query().Get("device_id")
		if deviceID == "" {
			var req struct {
				DeviceID string `json:"device_id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			deviceID = req.DeviceID
		}
		if deviceID == "" {
			writeError(w, http.StatusBadRequest, "device_id is required")
			return
		}

		if err := devices.SetActive(r.Context(), deviceID, false); err != nil {
			if errors.Is(err, service.ErrDeviceNotFound) {
				writeError(w, http.StatusNotFound, "device not found")
				return
			}
			slog.Error("device deactivation failed", "device_id", deviceID, "error", err)
			writeInternalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"device_id": deviceID,
			"is_active": false,
		})
	}
}
