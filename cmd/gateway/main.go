package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docugate/docugate/handlers"
	"github.com/docugate/docugate/internal/callback"
	"github.com/docugate/docugate/internal/config"
	"github.com/docugate/docugate/internal/document"
	dochandler "github.com/docugate/docugate/internal/document/handler"
	docrepo "github.com/docugate/docugate/internal/document/repository"
	"github.com/docugate/docugate/internal/oidc"
	"github.com/docugate/docugate/internal/sessions"
	"github.com/docugate/docugate/internal/storage"
	"github.com/docugate/docugate/internal/tokens"
	"github.com/docugate/docugate/internal/users"
	"github.com/docugate/docugate/internal/versions"
	"github.com/docugate/docugate/pkg/middleware"
)

// Development gateway: everything in memory, no signature verification on
// platform tokens. Useful for wiring a local Document Server against the API
// without Mongo, Redis or MinIO running.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "dev-only-secret"
		log.Printf("warning: JWT_SECRET not set, using a development default")
	}

	r := gin.New()
	r.Use(gin.Recovery())

	docs := docrepo.NewMemoryRepo()
	blobs := storage.NewMemoryStorage()
	codec := tokens.NewCodec(cfg.JWT.Secret)
	resolver := document.NewResolver(docs, blobs)
	manager := sessions.NewManager(sessions.NewMemoryRepository(), cfg.Sessions.InactivityTimeout)
	store := versions.NewStore(versions.NewMemoryMetadataRepo(), blobs)
	machine := callback.NewMachine(codec, manager, store, docs,
		callback.NewHTTPFetcher(cfg.Callback.FetchTimeout, cfg.Callback.MaxBytes))
	userSvc := users.NewService(users.NewMemoryUserRepository())

	gw := handlers.NewGatewayHandler(cfg, codec, resolver, docs, manager, machine, store, userSvc)
	gw.Register(r, middleware.AuthMiddleware(oidc.NewInsecureVerifier()))
	dochandler.RegisterCatalogRoutes(r, docs)

	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for now := range t.C {
			if _, err := manager.ExpireStaleSessions(context.Background(), now); err != nil {
				log.Printf("session reaper: %v", err)
			}
		}
	}()

	port := os.Getenv("GATEWAY_DEV_PORT")
	if port == "" {
		port = "5021"
	}
	log.Printf("development gateway listening on :%s (insecure token mode)", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
