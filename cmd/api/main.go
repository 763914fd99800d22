package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/joho/godotenv"

	"gallinga/internal/adapter/repo"
	"gallinga/internal/http/handlers"
	"gallinga/internal/http/httpapi"
	"gallinga/internal/infra"
	"gallinga/internal/infra/geoip"
	"gallinga/internal/middleware"
	"gallinga/internal/providers/image"
	"gallinga/internal/providers/prompt"
	"gallinga/internal/storage/objectstore"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	secrets, err := infra.EnvSecretProvider{}.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load secrets")
	}

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := infra.EnsureSchema(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect object store")
	}

	refiner, err := prompt.NewGeminiRefiner(prompt.GeminiOptions{
		APIKey:  secrets.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build prompt refiner")
	}

	generator, err := image.NewLeonardoClient(image.LeonardoOptions{
		APIKey:  secrets.LeonardoAPIKey,
		BaseURL: cfg.LeonardoBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build image provider client")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip resolver unavailable, country audit fields disabled")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.CountryCode
	}

	previewOrigins, err := regexp.Compile(cfg.PreviewOriginPattern)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid preview origin pattern")
	}

	app := &handlers.App{
		Config:  cfg,
		Secrets: secrets,
		Log:     logger,
		Jobs:    repo.NewJobRepository(dbpool),
		Gallery: repo.NewGalleryRepository(dbpool, logger),
		Limits:  repo.NewRateLimitRepository(dbpool, cfg.SubmitLimit, cfg.SubmitWindow),
		Refiner: refiner,
		Images:  generator,
		Blobs:   blobs,
		Fetch:   &handlers.HTTPArtifactFetcher{},
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		PreviewOrigins: previewOrigins,
		ThrottlePerMin: cfg.ThrottlePerMin,
		DefaultLocale:  cfg.DefaultLocale,
		CountryLookup:  lookup,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newBlobStore(ctx context.Context, cfg *infra.Config) (objectstore.Store, error) {
	if cfg.BlobBackend == "filesystem" {
		return objectstore.NewFileStore(cfg.BlobFSPath, cfg.MinioPublicBase)
	}
	return objectstore.NewMinioStore(ctx, objectstore.Options{
		Endpoint:   cfg.MinioEndpoint,
		AccessKey:  cfg.MinioAccessKey,
		SecretKey:  cfg.MinioSecretKey,
		UseSSL:     cfg.MinioUseSSL,
		Bucket:     cfg.MinioBucket,
		PublicBase: cfg.MinioPublicBase,
	})
}
