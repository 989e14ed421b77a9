package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posbackend/internal/cache"
	"posbackend/internal/config"
	"posbackend/internal/database"
	"posbackend/internal/handlers"
	"posbackend/internal/localstore"
	"posbackend/internal/logging"
	"posbackend/internal/metrics"
	"posbackend/internal/middleware"
	"posbackend/internal/models"
	"posbackend/internal/pos"
	"posbackend/internal/scheduler"
	"posbackend/internal/session"
	"posbackend/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Mode: cfg.LogMode, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		if cfg.StoreDriver != config.DriverMemory {
			zap.L().Fatal("JWT_SECRET is required")
		}
		// sessions do not survive a restart of the demo store anyway
		cfg.JWTSecret = uuid.NewString()
		zap.L().Warn("JWT_SECRET not set, using an ephemeral secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local, err := localstore.Open(cfg.LocalCachePath)
	if err != nil {
		zap.L().Fatal("open local cache", zap.String("path", cfg.LocalCachePath), zap.Error(err))
	}
	defer local.Close()

	remote, closeRemote, err := openStore(ctx, cfg)
	if err != nil {
		zap.L().Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeRemote()

	m := metrics.New()
	synchronizer := cache.New(remote, local, cfg.CacheTTL, cache.WithObserver(m))
	svc := pos.NewService(remote, synchronizer, pos.NewOfflineQueue(local), pos.Options{
		TaxRate:         cfg.TaxRate,
		LowStockDefault: cfg.LowStockDefault,
		PingTimeout:     cfg.PingTimeout,
	}, m)

	online := svc.Online(ctx)
	zap.L().Info("store ready", zap.String("driver", cfg.StoreDriver), zap.Bool("online", online))

	if online {
		bootstrapAdmin(ctx, remote, cfg)
	}

	sessions := session.NewManager(local, cfg.JWTSecret, cfg.AccessTokenTTL)
	if _, _, err := sessions.Restore(); err != nil {
		zap.L().Warn("session restore failed", zap.Error(err))
	}
	if online {
		if err := sessions.Reconcile(ctx, remote); err != nil {
			zap.L().Warn("session reconcile failed", zap.Error(err))
		}
	}

	warmCache(ctx, synchronizer)

	jobs := scheduler.New()
	if err := jobs.Add(scheduler.Job{
		Name:   "offline-replay",
		Spec:   cfg.OfflineReplaySchedule,
		Online: svc.Online,
		Run: func(ctx context.Context) error {
			report, err := svc.ReplayPending(ctx)
			if report.Applied+report.Duplicates+report.Conflicts > 0 {
				zap.L().Info("offline purchases replayed",
					zap.Int("applied", report.Applied),
					zap.Int("duplicates", report.Duplicates),
					zap.Int("conflicts", report.Conflicts),
					zap.Int("remaining", report.Remaining),
				)
			}
			return err
		},
	}); err != nil {
		zap.L().Fatal("schedule offline replay", zap.Error(err))
	}
	if err := jobs.Add(scheduler.Job{
		Name:   "cache-refresh",
		Spec:   cfg.CacheRefreshSchedule,
		Online: svc.Online,
		Run: func(ctx context.Context) error {
			_, _, err := synchronizer.Refresh(ctx)
			return err
		},
	}); err != nil {
		zap.L().Fatal("schedule cache refresh", zap.Error(err))
	}
	jobs.Start()

	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLog())

	tmpl, err := handlers.LoadTemplates()
	if err != nil {
		zap.L().Fatal("parse templates", zap.Error(err))
	}
	r.SetHTMLTemplate(tmpl)

	handlers.Register(r, handlers.Deps{
		Service:  svc,
		Store:    remote,
		Sessions: sessions,
		Metrics:  m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("http shutdown", zap.Error(err))
	}
	jobs.Stop(shutdownCtx)
}

// openStore selects the remote store. The returned close func is always safe
// to call.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		zap.L().Warn("using the in-memory store; data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	client, err := database.Connect(ctx, cfg.MongoURI, cfg.PingTimeout*5)
	if err != nil {
		return nil, func() {}, err
	}
	disconnect := func() { disconnectMongo(client) }

	db := client.Database(cfg.DBName)
	zap.L().Info("mongo database selected", zap.String("db", db.Name()))

	if err := database.EnsureIndexes(db); err != nil {
		zap.L().Warn("index setup incomplete", zap.Error(err))
	}
	return store.NewMongo(db), disconnect, nil
}

func disconnectMongo(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		zap.L().Warn("mongo disconnect", zap.Error(err))
	}
}

// bootstrapAdmin creates the ADMIN_EMAIL account on first start so a fresh
// store can be signed into.
func bootstrapAdmin(ctx context.Context, users store.Users, cfg config.Config) {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		return
	}

	_, err := users.UserByEmail(ctx, email)
	if err == nil {
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("admin bootstrap lookup failed", zap.Error(err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Warn("admin bootstrap hash failed", zap.Error(err))
		return
	}
	if _, err := users.CreateUser(ctx, models.User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  "Administrator",
		Role:         models.RoleAdmin,
	}); err != nil {
		zap.L().Warn("admin bootstrap create failed", zap.Error(err))
		return
	}
	zap.L().Info("admin account created", zap.String("email", email))
}

// warmCache serves the cached catalog right away and logs how the background
// refresh went.
func warmCache(ctx context.Context, synchronizer *cache.Synchronizer) {
	result := synchronizer.LoadWithCache(ctx)
	zap.L().Info("catalog loaded",
		zap.Int("products", len(result.Products)),
		zap.Int("customers", len(result.Customers)),
		zap.Bool("fromCache", result.FromCache),
	)

	go func() {
		out := <-result.Refresh
		if out.Err != nil {
			zap.L().Warn("startup refresh failed, serving cached catalog", zap.Error(out.Err))
			return
		}
		zap.L().Info("startup refresh done",
			zap.Int("products", len(out.Products)),
			zap.Int("customers", len(out.Customers)),
		)
	}()
}
