package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fernando2601/Dental360-APIC--sub004/handlers"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/audit"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/config"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/database"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/sessions"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/storage"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/tokens"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/users"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/logger"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/metrics"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/middleware"
)

var startTime = time.Now()

// backends records which optional dependencies came up, for /ready.
type backends struct {
	redis *redis.Client
	mongo *mongo.Client
	minio *storage.MinIOStorage
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: env=%s mongo=%v redis=%v minio=%v", cfg.Server.Environment, cfg.MongoDB.URI != "", cfg.Redis.Addr() != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var b backends
	if addr := cfg.Redis.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis %s unreachable, continuing without it: %v", addr, err)
			_ = client.Close()
		} else {
			b.redis = client
			defer client.Close()
			logger.Infof("connected to redis at %s", addr)
		}
	}
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("could not connect to MongoDB, using in-memory stores: %v", err)
		} else {
			b.mongo = client
			defer func() { _ = client.Disconnect(context.Background()) }()
		}
	}
	if cfg.MinIO.Endpoint != "" {
		st, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("minio unavailable, audit export disabled: %v", err)
		} else {
			b.minio = st
		}
	}
	if b.mongo == nil && cfg.Server.Environment == "production" {
		logger.Fatalf("MongoDB is required in production")
	}

	deps, err := wire(ctx, cfg, b)
	if err != nil {
		logger.Fatalf("failed to initialise services: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment != "production" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...), gin.Logger(), gin.Recovery())
	if cfg.RateLimit.Enabled {
		// Per client IP in front of everything; per identity once the bearer
		// token has been validated.
		r.Use(rateLimiter(cfg, b.redis, "api", cfg.RateLimit.RPS*4, cfg.RateLimit.Burst*4))
		deps.LoginMiddleware = append(deps.LoginMiddleware, rateLimiter(cfg, b.redis, "login", cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		deps.Authenticated = append(deps.Authenticated, rateLimiter(cfg, b.redis, "identity", cfg.RateLimit.RPS*2, cfg.RateLimit.Burst*2))
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", readiness(cfg, b))
	handlers.Mount(r, deps)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting auth service on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

// wire builds the services over whichever backends are available. Sessions
// prefer Redis, then MongoDB, then memory; identities and audit prefer MongoDB.
func wire(ctx context.Context, cfg *config.Config, b backends) (handlers.Deps, error) {
	var (
		userRepo    users.Repository    = users.NewMemoryRepository()
		sessionRepo sessions.Repository = sessions.NewMemoryRepository()
		recorder    audit.Recorder
		lister      audit.Lister
	)
	mem := audit.NewMemoryRecorder()
	recorder, lister = mem, mem

	if b.mongo != nil {
		db := b.mongo.Database(cfg.MongoDB.Database)
		ur := users.NewMongoRepository(db.Collection(database.UsersCollection), db.Collection(database.CountersCollection))
		if err := ur.EnsureIndexes(ctx); err != nil {
			return handlers.Deps{}, err
		}
		userRepo = ur

		sr := sessions.NewMongoRepository(db.Collection(database.SessionsCollection))
		if err := sr.EnsureIndexes(ctx); err != nil {
			return handlers.Deps{}, err
		}
		sessionRepo = sr

		ar := audit.NewMongoRecorder(db.Collection(database.AuditCollection))
		if err := ar.EnsureIndexes(ctx); err != nil {
			return handlers.Deps{}, err
		}
		recorder, lister = ar, ar
	} else {
		logger.Warnf("identities and audit events are held in memory and lost on restart")
	}

	opts := []sessions.Option{sessions.WithAudit(recorder)}
	if b.redis != nil {
		sessionRepo = sessions.NewRedisRepository(b.redis, "session:")
		opts = append(opts, sessions.WithRevocationList(sessions.NewRevocationList(b.redis)))
		logger.Infof("using redis for session storage")
	}

	userSvc := users.NewService(userRepo, users.NewHasher(cfg.Security.BcryptCost))
	sessionSvc := sessions.NewService(
		sessionRepo,
		tokens.NewMinter(cfg.JWT.Secret, cfg.JWT.Issuer),
		userSvc,
		sessions.Config{
			AccessTTL:            cfg.JWT.AccessTokenTTL,
			RefreshTTL:           cfg.JWT.RefreshTokenTTL,
			RememberMeMultiplier: cfg.Session.RememberMeMultiplier,
			SinglePerIdentity:    cfg.Session.SinglePerIdentity,
		},
		opts...,
	)

	deps := handlers.Deps{Users: userSvc, Sessions: sessionSvc, Audit: recorder}
	if b.minio != nil {
		deps.Exporter = audit.NewExporter(lister, b.minio)
	}
	return deps, nil
}

func rateLimiter(cfg *config.Config, client *redis.Client, scope string, rps float64, burst int) gin.HandlerFunc {
	if cfg.RateLimit.UseRedis && client != nil {
		win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		return middleware.RedisRateLimitMiddleware(client, scope, rps, burst, win)
	}
	return middleware.RateLimitMiddleware(rps, burst)
}

// readiness reports 503 while a configured dependency is unreachable.
func readiness(cfg *config.Config, b backends) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		ready := true
		deps := map[string]string{}
		check := func(name string, configured bool, ping func() error) {
			switch {
			case !configured:
				deps[name] = "not configured"
			case ping == nil:
				deps[name] = "unavailable"
				ready = false
			default:
				if err := ping(); err != nil {
					deps[name] = "unavailable"
					ready = false
					return
				}
				deps[name] = "ok"
			}
		}

		var redisPing, mongoPing, minioPing func() error
		if b.redis != nil {
			redisPing = func() error { return b.redis.Ping(ctx).Err() }
		}
		if b.mongo != nil {
			mongoPing = func() error { return b.mongo.Ping(ctx, nil) }
		}
		if b.minio != nil {
			minioPing = func() error { return b.minio.Ping(ctx) }
		}
		check("redis", cfg.Redis.Addr() != "", redisPing)
		check("mongodb", cfg.MongoDB.URI != "", mongoPing)
		check("minio", cfg.MinIO.Endpoint != "", minioPing)

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	}
}
