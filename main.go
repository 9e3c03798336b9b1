package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docugate/docugate/handlers"
	"github.com/docugate/docugate/internal/callback"
	"github.com/docugate/docugate/internal/config"
	"github.com/docugate/docugate/internal/database"
	"github.com/docugate/docugate/internal/document"
	docrepo "github.com/docugate/docugate/internal/document/repository"
	dochandler "github.com/docugate/docugate/internal/document/handler"
	"github.com/docugate/docugate/internal/oidc"
	"github.com/docugate/docugate/internal/sessions"
	"github.com/docugate/docugate/internal/storage"
	"github.com/docugate/docugate/internal/tokens"
	"github.com/docugate/docugate/internal/users"
	"github.com/docugate/docugate/internal/versions"
	"github.com/docugate/docugate/pkg/logger"
	"github.com/docugate/docugate/pkg/metrics"
	"github.com/docugate/docugate/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: oidc=%v mongo=%v redis=%v docserver=%v",
		cfg.OIDC.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.DocServer.BaseURL != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()

	// Connect to Redis early so the rate limiter and session store can use it
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// OIDC verifier for platform users; insecure fallback only under explicit opt-in
	var verifier middleware.Verifier
	if cfg.OIDC.URL != "" && cfg.OIDC.ClientID != "" && cfg.OIDC.Realm != "" {
		issuer := strings.TrimRight(cfg.OIDC.URL, "/") + "/realms/" + cfg.OIDC.Realm
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.OIDC.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	}
	if verifier == nil {
		if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
			logger.Warn("enabling insecure OIDC verifier (integration mode)")
			verifier = oidc.NewInsecureVerifier()
		}
	}
	if verifier == nil {
		logger.Fatalf("no OIDC verifier available; set OIDC_URL/OIDC_REALM/OIDC_CLIENT_ID or ALLOW_INSECURE_TOKEN=true")
	}

	// Session store: Redis when available, in-process otherwise
	var sessRepo sessions.Repository
	if redisClient != nil {
		sessRepo = sessions.NewRedisRepository(redisClient, "docugate:")
		logger.Infof("Using Redis for session storage")
	} else {
		sessRepo = sessions.NewMemoryRepository()
		logger.Warnf("Redis unavailable, using in-process session storage (sessions do not survive restarts)")
	}
	manager := sessions.NewManager(sessRepo, cfg.Sessions.InactivityTimeout)

	// MongoDB-backed catalog, version metadata and user directory.
	// Retry/backoff tolerates startup races with the database container.
	var docs document.Repository
	var versionMeta versions.MetadataRepository
	var userRepo users.UserRepository
	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
			mongoClient = nil
		} else {
			defer func() { _ = mongoClient.Disconnect(ctx) }()
			db := mongoClient.Database(cfg.MongoDB.Database)
			docs = docrepo.NewMongoRepo(db.Collection("documents"))
			versionMeta = versions.NewMongoMetadataRepo(db)
			userRepo = users.NewMongoUserRepository(db.Collection("users"))
			logger.Infof("Connected to MongoDB: %s", cfg.MongoDB.Database)
		}
	}
	if docs == nil {
		logger.Warnf("MongoDB unavailable, using in-process catalog and version metadata")
		docs = docrepo.NewMemoryRepo()
		versionMeta = versions.NewMemoryMetadataRepo()
		userRepo = users.NewMemoryUserRepository()
	}

	// Object storage for document bytes and committed versions
	var blobs storage.ObjectStore
	minioCfg := storage.LoadMinIOConfig()
	if minioCfg.Endpoint != "" {
		s, err := storage.NewMinIOStorage(minioCfg)
		if err != nil {
			logger.Warnf("failed to initialize MinIO storage: %v", err)
		} else {
			blobs = s
			logger.Infof("Using MinIO object storage: %s/%s", minioCfg.Endpoint, minioCfg.Bucket)
		}
	}
	if blobs == nil {
		logger.Warnf("MinIO unavailable, using in-memory object storage")
		blobs = storage.NewMemoryStorage()
	}

	codec := tokens.NewCodec(cfg.JWT.Secret)
	resolver := document.NewResolver(docs, blobs)
	store := versions.NewStore(versionMeta, blobs)
	fetcher := callback.NewHTTPFetcher(cfg.Callback.FetchTimeout, cfg.Callback.MaxBytes)
	if cfg.DocServer.BaseURL != "" {
		if err := fetcher.RestrictHost(cfg.DocServer.BaseURL); err != nil {
			logger.Fatalf("DOCSERVER_URL: %v", err)
		}
		logger.Infof("callback fetches restricted to document server host %s", cfg.DocServer.BaseURL)
	}
	machine := callback.NewMachine(codec, manager, store, docs, fetcher)
	userSvc := users.NewService(userRepo)

	platformAuth := middleware.AuthMiddleware(verifier)
	gw := handlers.NewGatewayHandler(cfg, codec, resolver, docs, manager, machine, store, userSvc)
	gw.Register(r, platformAuth)
	dochandler.RegisterCatalogRoutes(r, docs)
	handlers.RegisterSwagger(r)

	// readiness: 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{
			"oidc":     verifier != nil,
			"sessions": sessRepo != nil,
			"storage":  blobs != nil,
			"catalog":  docs != nil,
		}
		if cfg.Redis.Host != "" {
			deps["redis"] = redisClient != nil
			if !deps["redis"] {
				ready = false
			}
		}
		if cfg.MongoDB.URI != "" {
			deps["mongodb"] = mongoClient != nil
			if !deps["mongodb"] {
				ready = false
			}
		}
		status := gin.H{"deps": deps, "uptime": time.Since(startTime).String()}
		if !ready {
			status["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["status"] = "ready"
		c.JSON(http.StatusOK, status)
	})

	// background reaper frees locks abandoned by crashed or silent editors
	go func() {
		interval := cfg.Sessions.InactivityTimeout / 2
		if interval < time.Minute {
			interval = time.Minute
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for now := range t.C {
			n, err := manager.ExpireStaleSessions(ctx, now)
			if err != nil {
				logger.Warnf("session reaper: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("session reaper: expired %d stale sessions", n)
			}
		}
	}()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Config summary: oidc=%v mongo=%v redis=%v jwt_secret_set=%v public_url=%s",
		cfg.OIDC.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.JWT.Secret != "", cfg.Server.PublicBaseURL)
	logger.Infof("Starting document gateway on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
