package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/picvault/internal/album"
	"github.com/abduss/picvault/internal/allocator"
	"github.com/abduss/picvault/internal/assetid"
	"github.com/abduss/picvault/internal/audit"
	"github.com/abduss/picvault/internal/auth"
	"github.com/abduss/picvault/internal/config"
	"github.com/abduss/picvault/internal/gallery"
	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/logger"
	"github.com/abduss/picvault/internal/metrics"
	"github.com/abduss/picvault/internal/registry"
	"github.com/abduss/picvault/internal/remote"
	"github.com/abduss/picvault/internal/server"
	"github.com/abduss/picvault/internal/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const indexBackoff = 200 * time.Millisecond

func main() {
	// a missing .env is fine; the environment wins either way
	_ = godotenv.Load()

	zl, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}
	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	store, err := newStore(cfg, zl)
	if err != nil {
		zl.Fatal("build storage backend", zap.Error(err), zap.String("backend", cfg.Storage.Backend))
	}

	var cache registry.Cache
	if cfg.Redis.Enabled() {
		redisClient, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			zl.Fatal("connect redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache = registry.NewRedisCache(redisClient, zl.Named("registry"))
	}

	idx := index.NewManager(index.NewRemoteStore(store), index.Config{
		Retries: cfg.Storage.IndexRetries,
		Backoff: indexBackoff,
	}, zl.Named("index"))

	reg := registry.New(store, idx, cache, registry.Config{
		Prefix:   cfg.Storage.RepoPrefix,
		MaxRepos: cfg.Storage.MaxRepos,
		HardCap:  cfg.Storage.HardCap,
		TTL:      cfg.Storage.CacheTTL,
	}, zl.Named("registry"))

	alloc := allocator.New(store, reg, allocator.Config{
		SoftThreshold: cfg.Storage.SoftThreshold,
		HardCap:       cfg.Storage.HardCap,
		MaxRepos:      cfg.Storage.MaxRepos,
		SettleDelay:   cfg.Storage.SettleDelay,
		VaultRepo:     cfg.Storage.VaultRepo,
	}, zl.Named("allocator"))

	albums := album.NewManager(idx, reg, alloc, nil, nil, zl.Named("album"))

	galleryService := gallery.NewService(gallery.Config{
		Owner:          cfg.Storage.Owner,
		VaultRepo:      cfg.Storage.VaultRepo,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}, gallery.Dependencies{
		Blobs:     store,
		Index:     idx,
		Allocator: alloc,
		Registry:  reg,
		Albums:    albums,
		IDs:       assetid.New(store),
		Audit:     audit.NewRepository(dbPool),
		Log:       zl.Named("gallery"),
	})

	authService := auth.NewService(auth.NewRepository(dbPool), cfg.Auth)

	router := server.NewRouter(server.Dependencies{
		Config:         cfg,
		DB:             dbPool,
		Store:          store,
		AuthService:    authService,
		GalleryService: galleryService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zl.Info("picvault API listening",
			zap.String("addr", cfg.Server.Address()),
			zap.String("backend", cfg.Storage.Backend),
			zap.String("owner", cfg.Storage.Owner))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zl.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}

func newStore(cfg config.Config, zl *zap.Logger) (remote.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendGitHub:
		return remote.NewGitHubClient(remote.GitHubConfig{
			APIURL:  cfg.GitHub.APIURL,
			RawURL:  cfg.GitHub.RawURL,
			Token:   cfg.GitHub.Token,
			Branch:  cfg.GitHub.Branch,
			Timeout: cfg.Storage.RequestTimeout,
		}, zl.Named("github")), nil
	case config.BackendMinIO:
		client, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		anon, err := storage.NewAnonymousMinIOClient(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return remote.NewMinIOStore(client, anon, remote.MinIOStoreConfig{
			Region:     cfg.MinIO.Region,
			Scope:      cfg.MinIO.AccessKeyID,
			PresignTTL: cfg.MinIO.PresignTTL,
			Timeout:    cfg.Storage.RequestTimeout,
		}, zl.Named("minio")), nil
	case config.BackendMemory:
		zl.Warn("using in-memory storage backend; data is lost on restart")
		return remote.NewMemoryStore(""), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
