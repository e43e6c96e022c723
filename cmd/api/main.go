package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"caseflow/api/internal/app"
	"caseflow/api/internal/config"
	"caseflow/api/internal/docpolicy"
	"caseflow/api/internal/drive"
	"caseflow/api/internal/push"
	"caseflow/api/internal/search"
	"caseflow/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	policy, err := docpolicy.Load(cfg.DocumentPolicyPath)
	if err != nil {
		log.Fatalf("document policy failed: %v", err)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	// Redis backs the folder provisioning lock and the Graph token cache.
	// Without it both degrade to in-process behavior.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url invalid: %v", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("WARNING: redis unavailable, provisioning locks disabled: %v", err)
			redisClient = nil
		}
		cancel()
		if redisClient != nil {
			defer redisClient.Close()
		}
	}

	var driveClient *drive.Client
	if cfg.GraphTenantID != "" && cfg.GraphClientID != "" && cfg.GraphClientSecret != "" && cfg.GraphDriveID != "" {
		var tokenCache drive.TokenCache
		var locker drive.Locker = drive.NoopLocker{}
		if redisClient != nil {
			tokenCache = drive.NewRedisTokenCache(redisClient)
			locker = drive.NewRedisLocker(redisClient)
		}
		tokens := drive.NewTokenSource(cfg.GraphAuthBaseURL, cfg.GraphTenantID, cfg.GraphClientID, cfg.GraphClientSecret, tokenCache)
		driveClient = drive.NewClient(cfg.GraphBaseURL, cfg.GraphDriveID, tokens, locker)
		log.Printf("OneDrive integration enabled for drive %s", cfg.GraphDriveID)
	} else {
		log.Printf("OneDrive integration disabled (Graph credentials not configured)")
	}

	var pushService *push.Service
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushService = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.PushSubscriber)
	} else {
		log.Printf("Push notifications disabled (VAPID keys not configured)")
	}

	service := app.New(cfg, dataStore, driveClient, pushService, searchService, policy)

	go searchService.ReindexAllFromPG(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.APIToken)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("CaseFlow API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
