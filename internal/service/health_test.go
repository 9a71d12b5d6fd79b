package service

import (
	"testing"
	"time"

	"posbridge/internal/model"
)

func deviceSeenAt(seen time.Time, active bool) model.Device {
	return model.Device{
		DeviceID:   "KITCHEN-ABC",
		DeviceName: "Kitchen",
		IsActive:   active,
		LastSeenAt: &seen,
	}
}

func TestClassifyDeviceOnlineWithinWindow(t *testing.T) {
	now := time.Now()
	d := deviceSeenAt(now.Add(-9*time.Minute), true)
	if got := ClassifyDevice(d, now); got != DeviceStatusOnline {
		t.Fatalf("device seen 9 minutes ago should be online, got %s", got)
	}
}

func TestClassifyDeviceOfflinePastWindow(t *testing.T) {
	now := time.Now()
	d := deviceSeenAt(now.Add(-11*time.Minute), true)
	if got := ClassifyDevice(d, now); got != DeviceStatusOffline {
		t.Fatalf("device seen 11 minutes ago should be offline, got %s", got)
	}
}

func TestClassifyDeviceDisabledTrumpsRecency(t *testing.T) {
	now := time.Now()
	d := deviceSeenAt(now, false)
	if got := ClassifyDevice(d, now); got != DeviceStatusDisabled {
		t.Fatalf("inactive device should be disabled, got %s", got)
	}
}

func TestClassifyDeviceNeverSeen(t *testing.T) {
	d := model.Device{DeviceID: "NEW-1", IsActive: true}
	if got := ClassifyDevice(d, time.Now()); got != DeviceStatusOffline {
		t.Fatalf("never-seen device should be offline, got %s", got)
	}
}

func TestBuildReportAlertsAndCounts(t *testing.T) {
	now := time.Now()
	online := deviceSeenAt(now.Add(-time.Minute), true)
	online.DeviceID = "ONLINE-1"
	offline := deviceSeenAt(now.Add(-time.Hour), true)
	offline.DeviceID = "OFFLINE-1"
	disabled := deviceSeenAt(now, false)
	disabled.DeviceID = "DISABLED-1"

	unprinted := []model.Order{{ID: "o-1", OrderNumber: "ORD-001", PrintStatus: model.PrintStatusPending}}
	failed := []model.Order{{ID: "o-2", OrderNumber: "ORD-002", PrintStatus: model.PrintStatusFailed}}

	report := BuildReport([]model.Device{online, offline, disabled}, unprinted, failed, now)

	if report.Counts.DevicesOnline != 1 || report.Counts.DevicesOffline != 1 || report.Counts.DevicesDisabled != 1 {
		t.Fatalf("unexpected device counts: %+v", report.Counts)
	}
	if report.Counts.Critical != 1 {
		t.Fatalf("expected 1 critical alert (unprinted order), got %d", report.Counts.Critical)
	}
	// offline device + failed print
	if report.Counts.High != 2 {
		t.Fatalf("expected 2 high alerts, got %d", report.Counts.High)
	}

	types := map[string]string{}
	for _, a := range report.Alerts {
		types[a.Type] = a.Severity
	}
	if types["order_unprinted"] != AlertSeverityCritical {
		t.Fatalf("unprinted order should be critical: %+v", report.Alerts)
	}
	if types["device_offline"] != AlertSeverityHigh {
		t.Fatalf("offline device should be high: %+v", report.Alerts)
	}
	if types["print_failed"] != AlertSeverityHigh {
		t.Fatalf("failed print should be high: %+v", report.Alerts)
	}
}

func TestBuildReportFlagsOrdersStuckForDays(t *testing.T) {
	now := time.Now()
	stuck := []model.Order{{
		ID:          "o-9",
		OrderNumber: "ORD-099",
		PrintStatus: model.PrintStatusSentToPOS,
		CreatedAt:   now.Add(-25 * time.Hour),
	}}

	report := BuildReport(nil, stuck, nil, now)
	if report.Counts.Critical != 1 {
		t.Fatalf("a day-old unprinted order must stay critical, got %d critical alerts", report.Counts.Critical)
	}
	if len(report.Alerts) != 1 || report.Alerts[0].Type != "order_unprinted" {
		t.Fatalf("expected a single order_unprinted alert: %+v", report.Alerts)
	}
}

func TestBuildReportEmptyInputs(t *testing.T) {
	report := BuildReport(nil, nil, nil, time.Now())
	if len(report.Alerts) != 0 {
		t.Fatalf("no inputs should produce no alerts")
	}
	if report.Devices == nil {
		t.Fatalf("devices slice should be non-nil for JSON encoding")
	}
}
