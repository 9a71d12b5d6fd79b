package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"posbridge/internal/model"
)

const (
	DeviceStatusOnline   = "online"
	DeviceStatusOffline  = "offline"
	DeviceStatusDisabled = "disabled"

	AlertSeverityCritical = "critical"
	AlertSeverityHigh     = "high"

	onlineWindow   = 10 * time.Minute
	unprintedAfter = 15 * time.Minute
)

type DeviceHealth struct {
	model.Device
	Status string `json:"status"`
}

type Alert struct {
	Severity string `json:"severity"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	OrderID  string `json:"order_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

type HealthCounts struct {
	DevicesOnline   int `json:"devices_online"`
	DevicesOffline  int `json:"devices_offline"`
	DevicesDisabled int `json:"devices_disabled"`
	Critical        int `json:"critical_alerts"`
	High            int `json:"high_alerts"`
}

type HealthReport struct {
	Devices []DeviceHealth `json:"devices"`
	Alerts  []Alert        `json:"alerts"`
	Counts  HealthCounts   `json:"counts"`
}

// ClassifyDevice buckets a device as disabled, online, or offline.
// A device is online if it was seen within the last ten minutes.
func ClassifyDevice(d model.Device, now time.Time) string {
	if !d.IsActive {
		return DeviceStatusDisabled
	}
	if d.LastSeenAt != nil && now.Sub(*d.LastSeenAt) <= onlineWindow {
		return DeviceStatusOnline
	}
	return DeviceStatusOffline
}

// BuildReport is the pure aggregation over already-fetched rows. unprinted
// holds orders stuck in pending/sent_to_pos past the alert threshold;
// failedToday holds orders whose latest print attempt failed today.
func BuildReport(devices []model.Device, unprinted, failedToday []model.Order, now time.Time) *HealthReport {
	report := &HealthReport{
		Devices: make([]DeviceHealth, 0, len(devices)),
		Alerts:  []Alert{},
	}

	for _, d := range devices {
		status := ClassifyDevice(d, now)
		report.Devices = append(report.Devices, DeviceHealth{Device: d, Status: status})

		switch status {
		case DeviceStatusOnline:
			report.Counts.DevicesOnline++
		case DeviceStatusDisabled:
			report.Counts.DevicesDisabled++
		case DeviceStatusOffline:
			report.Counts.DevicesOffline++
			report.Alerts = append(report.Alerts, Alert{
				Severity: AlertSeverityHigh,
				Type:     "device_offline",
				Message:  fmt.Sprintf("device %s (%s) has not been seen for over 10 minutes", d.DeviceName, d.DeviceID),
				DeviceID: d.DeviceID,
			})
		}
	}

	for _, o := range unprinted {
		report.Alerts = append(report.Alerts, Alert{
			Severity: AlertSeverityCritical,
			Type:     "order_unprinted",
			Message:  fmt.Sprintf("order %s has not printed for over 15 minutes", o.OrderNumber),
			OrderID:  o.ID,
		})
	}

	for _, o := range failedToday {
		report.Alerts = append(report.Alerts, Alert{
			Severity: AlertSeverityHigh,
			Type:     "print_failed",
			Message:  fmt.Sprintf("order %s failed to print", o.OrderNumber),
			OrderID:  o.ID,
		})
	}

	for _, a := range report.Alerts {
		switch a.Severity {
		case AlertSeverityCritical:
			report.Counts.Critical++
		case AlertSeverityHigh:
			report.Counts.High++
		}
	}

	return report
}

// HealthService recomputes the report from live rows on every call; there
// is no cached state to go stale.
type HealthService struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewHealthService(db *sql.DB) *HealthService {
	return &HealthService{db: db, nowFunc: time.Now}
}

// Compute builds the health report. An empty tenantSlug covers all tenants.
func (s *HealthService) Compute(ctx context.Context, tenantSlug string) (*HealthReport, error) {
	now := s.nowFunc()

	devices, err := s.queryDevices(ctx, tenantSlug)
	if err != nil {
		return nil, err
	}

	// No lower bound on age: an order stuck since yesterday is the worst
	// case and must stay in the critical feed until resolved.
	unprinted, err := s.queryOrders(ctx, tenantSlug, `
		o.status = 'confirmed'
		AND o.print_status IN ('pending', 'sent_to_pos')
		AND o.created_at < $2
	`, now.Add(-unprintedAfter))
	if err != nil {
		return nil, fmt.Errorf("query unprinted: %w", err)
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	failedToday, err := s.queryOrders(ctx, tenantSlug, `
		o.print_status = 'failed' AND o.print_status_updated_at >= $2
	`, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("query failed prints: %w", err)
	}

	return BuildReport(devices, unprinted, failedToday, now), nil
}

func (s *HealthService) queryDevices(ctx context.Context, tenantSlug string) ([]model.Device, error) {
	query := `
		SELECT d.device_id, d.tenant_id, d.device_name, d.api_key_prefix, d.is_active,
		       d.last_seen_at, d.last_heartbeat_at, d.created_at
		FROM pos_devices d
		JOIN tenants t ON t.id = d.tenant_id
		WHERE ($1 = '' OR t.slug = $1)
		ORDER BY d.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantSlug)
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
	return devices, rows.Err()
}

func (s *HealthService) queryOrders(ctx context.Context, tenantSlug, where string, args ...any) ([]model.Order, error) {
	query := `
		SELECT o.id, o.tenant_id, o.order_number, o.print_status, o.created_at
		FROM orders o
		JOIN tenants t ON t.id = o.tenant_id
		WHERE ($1 = '' OR t.slug = $1) AND ` + where + `
		ORDER BY o.created_at ASC
	`
	queryArgs := append([]any{tenantSlug}, args...)
	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.TenantID, &o.OrderNumber, &o.PrintStatus, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
