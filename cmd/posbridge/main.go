package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"posbridge/internal/config"
	"posbridge/internal/connmgr"
	"posbridge/internal/database"
	"posbridge/internal/dispatch"
	"posbridge/internal/handler"
	"posbridge/internal/metrics"
	"posbridge/internal/mw"
	"posbridge/internal/service"
)

func main() {
	cfg := config.New()

	db, err := database.NewDB(cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(db)

	if err := database.InitSchema(db); err != nil {
		slog.Error("failed to init DB schema", "error", err)
		os.Exit(1)
	}

	handler.SetDevMode(cfg.DevMode)

	// Services
	tenantSvc := service.NewTenantService(db)
	deviceSvc := service.NewDeviceService(db)
	orderSvc := service.NewOrderService(db)
	healthSvc := service.NewHealthService(db)
	adminSvc := service.NewAdminService(db)

	if cfg.AdminLogin != "" && cfg.AdminPassword != "" {
		if _, err := adminSvc.Register(context.Background(), cfg.AdminLogin, cfg.AdminPassword); err != nil {
			slog.Warn("admin bootstrap skipped", "login", cfg.AdminLogin, "error", err)
		}
	}

	// POS credential chain: device keys first, legacy tenant keys second.
	posAuth := service.NewChain(
		service.NewDeviceAuthenticator(deviceSvc, tenantSvc),
		service.NewTenantAuthenticator(tenantSvc),
	)

	// Live connection registry and dispatcher
	hub := connmgr.New()
	dispatcher := dispatch.New(hub)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// POS-facing routes (device/tenant API key auth inside handlers)
	r.Post("/api/pos/push-order", handler.PushOrderHandler(posAuth, tenantSvc, orderSvc, dispatcher))
	r.Get("/api/pos/stream-orders", handler.StreamOrdersHandler(posAuth, orderSvc, hub))
	r.Get("/api/pos/socket", handler.WSOrdersHandler(posAuth, hub))
	r.Get("/api/pos/orders/pending", handler.PendingOrdersHandler(posAuth, orderSvc))
	r.Post("/api/pos/heartbeat", handler.HeartbeatHandler(posAuth, orderSvc))
	r.Post("/api/pos/orders/ack", handler.AckHandler(posAuth, orderSvc))
	r.Get("/api/pos/orders/ack", handler.AckDebugHandler(posAuth, orderSvc))

	// Admin console
	r.Post("/api/admin/login", handler.AdminLoginHandler(adminSvc, cfg.JWTSecret))

	r.Group(func(r chi.Router) {
		r.Use(mw.AdminAuthMiddleware(cfg.JWTSecret))

		r.Post("/api/admin/pos-devices", handler.CreateDeviceHandler(deviceSvc))
		r.Get("/api/admin/pos-devices", handler.ListDevicesHandler(deviceSvc))
		r.Patch("/api/admin/pos-devices", handler.UpdateDeviceHandler(deviceSvc))
		r.Delete("/api/admin/pos-devices", handler.DeleteDeviceHandler(deviceSvc))

		r.Get("/api/admin/pos-health", handler.POSHealthHandler(healthSvc))
		r.Get("/api/admin/dashboard/stats", handler.DashboardStatsHandler(orderSvc, healthSvc))
	})

	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:        cfg.RunAddress,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: SSE and WebSocket responses stay open for the
		// connection's lifetime.
		IdleTimeout: 120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("starting server", "addr", cfg.RunAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	cancel() // stop sweeper
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}
