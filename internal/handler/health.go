package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// POSHealthHandler serves the admin dashboard's device/alert view. The
// report is recomputed from live rows on every call.
func POSHealthHandler(health HealthComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := health.Compute(r.Context(), r.URL.Query().Get("tenant"))
		if err != nil {
			slog.Error("health computation failed", "error", err)
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// DashboardStatsHandler aggregates print success rates and device counts
// over a period: today (default), 7d, or 30d.
func DashboardStatsHandler(orders StatsStore, health HealthComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := r.URL.Query().Get("tenant")
		if tenant == "" {
			writeError(w, http.StatusBadRequest, "tenant is required")
			return
		}

		period := r.URL.Query().Get("period")
		now := time.Now()
		var from time.Time
		switch period {
		case "", "today":
			period = "today"
			from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		case "7d":
			from = now.AddDate(0, 0, -7)
		case "30d":
			from = now.AddDate(0, 0, -30)
		default:
			writeError(w, http.StatusBadRequest, "period must be today, 7d or 30d")
			return
		}

		stats, err := orders.Stats(r.Context(), tenant, from)
		if err != nil {
			slog.Error("stats query failed", "tenant", tenant, "error", err)
			writeInternalError(w, err)
			return
		}

		report, err := health.Compute(r.Context(), tenant)
		if err != nil {
			slog.Error("health computation failed", "tenant", tenant, "error", err)
			writeInternalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"tenant": tenant,
			"period": period,
			"orders": stats,
			"devices": map[string]int{
				"online":   report.Counts.DevicesOnline,
				"offline":  report.Counts.DevicesOffline,
				"disabled": report.Counts.DevicesDisabled,
			},
		})
	}
}
