package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"answering-machine/internal/audit"
	"answering-machine/internal/auth"
	"answering-machine/internal/calls"
	"answering-machine/internal/config"
	"answering-machine/internal/gemini"
	"answering-machine/internal/httpapi"
	"answering-machine/internal/relay"
	"answering-machine/internal/reporting"
	"answering-machine/internal/storage"
	"answering-machine/internal/telephony"
	"answering-machine/pkg/logger"
	"answering-machine/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("dotenv load failed", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var authManager *auth.Manager
	if cfg.AuthEnabled() {
		authManager, err = auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("JWT_SECRET not set; client routes are unauthenticated")
	}

	var checks []httpapi.ReadinessCheck

	// Call record store
	storeOpts := calls.StoreOptions{RejectStale: cfg.Store.RejectStale}
	var store calls.Store
	var rdb *redis.Client
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxConns: int32(cfg.DB.MaxConns)})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := calls.NewPostgresStore(db, storeOpts)
		if err := pg.EnsureSchema(rootCtx); err != nil {
			log.Error("postgres schema failed", "err", err)
			os.Exit(1)
		}
		store = pg
		checks = append(checks, httpapi.ReadinessCheck{Name: "postgres", Check: db.Ping})

	case config.StoreRedis:
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		store = calls.NewRedisStore(rdb, cfg.Redis.Prefix, storeOpts)
		checks = append(checks, httpapi.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

	default:
		log.Warn("call records are kept in memory and lost on restart")
		store = calls.NewMemoryStore(storeOpts)
	}
	log.Info("call store ready", "backend", cfg.Store.Backend, "reject_stale", cfg.Store.RejectStale)

	// Telephony
	twilioProvider := telephony.NewTwilioProvider(telephony.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		Timeout:    cfg.App.ProviderTimeout,
	})
	gateway := telephony.NewGateway(twilioProvider, telephony.GatewayConfig{
		From:           cfg.Twilio.PhoneNumber,
		PublicBaseURL:  cfg.App.PublicBaseURL,
		CallsPerSecond: cfg.Twilio.CallsPerSecond,
	})
	checks = append(checks, httpapi.ReadinessCheck{Name: "twilio", Check: twilioProvider.HealthCheck})

	journal := audit.NewService(audit.NewMemoryRepo(0))
	callService := calls.NewService(store, gateway, twilioProvider, journal)

	// Generation and storage are optional; their routes answer 503 when unset.
	var (
		text     relay.TextGenerator
		speech   relay.SpeechGenerator
		uploader relay.Uploader
		slots    relay.Slots
	)
	if cfg.GeminiEnabled() {
		gc, err := gemini.NewClient(rootCtx, gemini.Config{
			APIKey:    cfg.Gemini.APIKey,
			TextModel: cfg.Gemini.TextModel,
			TTSModel:  cfg.Gemini.TTSModel,
			Voice:     cfg.Gemini.Voice,
			Timeout:   cfg.App.ProviderTimeout,
		})
		if err != nil {
			log.Error("gemini init failed", "err", err)
			os.Exit(1)
		}
		text, speech = gc, gc
	} else {
		log.Warn("GEMINI_API_KEY not set; generation routes disabled")
	}
	if cfg.GCSEnabled() {
		gcs, err := storage.NewGCSStore(rootCtx, storage.Config{
			Bucket:          cfg.GCS.Bucket,
			CredentialsJSON: cfg.GCS.ServiceAccountKeyJSON,
			SignedURLTTL:    cfg.GCS.SignedURLTTL,
		})
		if err != nil {
			log.Error("gcs init failed", "err", err)
			os.Exit(1)
		}
		defer gcs.Close()
		uploader = gcs
	} else {
		log.Warn("GCS_STORAGE_BUCKET not set; upload routes disabled")
	}
	if cfg.App.RelayMaxConcurrent > 0 {
		if rdb != nil {
			slots = relay.NewRedisSlots(rdb, cfg.Redis.Prefix, cfg.App.RelayMaxConcurrent, 4*cfg.App.ProviderTimeout)
		} else {
			log.Warn("RELAY_MAX_CONCURRENT ignored without the redis store")
		}
	}
	relayService := relay.NewService(text, speech, uploader, callService, slots)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:  cfg,
		auth: authManager,
		handlers: httpapi.Handlers{
			Calls:     callService,
			Summaries: reporting.NewService(store),
			Journal:   journal,
			Relay:     relayService,
		},
		health:   httpapi.Health{Checks: checks, Timeout: cfg.App.ProviderTimeout},
		callback: telephony.StatusCallbackHandler{Sink: callService},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(cfg.App.ProviderTimeout),
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// writeTimeout leaves room for a relay run: text, speech, upload and a call.
func writeTimeout(provider time.Duration) time.Duration {
	return 4*provider + 10*time.Second
}
