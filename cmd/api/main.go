package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vaccination-clinic/internal/adapters/storage/memory"
	"vaccination-clinic/internal/adapters/storage/postgres"
	"vaccination-clinic/internal/auth"
	"vaccination-clinic/internal/config"
	"vaccination-clinic/internal/domain/notifications"
	"vaccination-clinic/internal/domain/schedulings"
	"vaccination-clinic/internal/domain/users"
	"vaccination-clinic/internal/domain/vaccines"
	"vaccination-clinic/internal/platform/eventbus"
	"vaccination-clinic/internal/platform/logger"
	"vaccination-clinic/internal/router"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewFromEnv()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	bus := eventbus.New(log)

	var (
		userRepo         users.Repository
		vaccineRepo      vaccines.Repository
		schedulingRepo   schedulings.Repository
		notificationRepo notifications.Repository
	)

	if cfg.DatabaseDSN != "" {
		db, err := postgres.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatal("database connection failed", zap.Error(err))
		}
		if err := postgres.Migrate(db); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}

		userRepo = postgres.NewUsersRepo(db)
		vaccineRepo = postgres.NewVaccinesRepo(db)
		schedulingRepo = postgres.NewSchedulingsRepo(db, cfg.LockTimeout)
		notificationRepo = postgres.NewNotificationsRepo(db)
		log.Info("storage: postgres")
	} else {
		memVaccines := memory.NewVaccineRepo()
		userRepo = memory.NewUserRepo()
		vaccineRepo = memVaccines
		schedulingRepo = memory.NewSchedulingRepo(memVaccines)
		notificationRepo = memory.NewNotificationRepo()
		log.Info("storage: in-memory (dev)")
	}

	jwtSvc := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)

	usersSvc := users.NewService(userRepo, jwtSvc)
	vaccinesSvc := vaccines.NewService(vaccineRepo, bus, log)
	schedulingsSvc := schedulings.NewService(schedulingRepo, vaccinesSvc, bus, log, cfg.LockTimeout)
	notificationsSvc := notifications.NewService(notificationRepo)

	// Los suscriptores se registran una sola vez, antes de aceptar tráfico.
	notifications.Bootstrap(bus, notificationsSvc, usersSvc, log)

	go runStockScans(context.Background(), vaccinesSvc, cfg, log)

	r := router.NewRouter(router.Options{
		JWT:           jwtSvc,
		Users:         usersSvc,
		Vaccines:      vaccinesSvc,
		Schedulings:   schedulingsSvc,
		Notifications: notificationsSvc,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info("starting server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

// runStockScans dispara periódicamente los escaneos de stock bajo y de
// lotes por vencer. Un ticker simple alcanza: no hay framework de cron.
func runStockScans(ctx context.Context, svc *vaccines.Service, cfg config.Config, log *zap.Logger) {
	ticker := time.NewTicker(cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := svc.ScanLowStock(ctx); err != nil {
				log.Error("low stock scan failed", zap.Error(err))
			} else if n > 0 {
				log.Info("low stock scan", zap.Int("alerts", n))
			}

			if n, err := svc.ScanExpiringBatches(ctx, cfg.ExpiryWindowDays); err != nil {
				log.Error("batch expiry scan failed", zap.Error(err))
			} else if n > 0 {
				log.Info("batch expiry scan", zap.Int("alerts", n))
			}
		}
	}
}
