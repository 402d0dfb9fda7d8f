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

	"landgov/api/internal/analyzer"
	"landgov/api/internal/app"
	"landgov/api/internal/blob"
	"landgov/api/internal/config"
	"landgov/api/internal/email"
	"landgov/api/internal/export"
	"landgov/api/internal/search"
	"landgov/api/internal/session"
	"landgov/api/internal/store"
)

// serverWriteTimeout leaves headroom over the analyzer deadline so a
// long-running analysis response is never cut off mid-write.
func serverWriteTimeout(analyzerTimeout time.Duration) time.Duration {
	const floor = 30 * time.Second
	timeout := analyzerTimeout + 10*time.Second
	if timeout < floor {
		return floor
	}
	return timeout
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		searchService.ReindexAllFromPG(ctx)
	}

	// Redis holds refresh tokens when configured; Postgres otherwise.
	var sessions *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		sessions, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer sessions.Close()
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	// The blob store is optional; without it analyses fail with a
	// storage gateway error instead of blocking startup.
	var blobs *blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err = blob.New(ctx, blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Printf("WARNING: blob store unavailable, reports disabled: %v", err)
			blobs = nil
		}
	}

	var uploader analyzer.Uploader
	if blobs != nil {
		uploader = blobs
	}
	gateway := analyzer.New(analyzer.Config{
		Bin:       cfg.AnalyzerBin,
		Script:    cfg.AnalyzerScript,
		AssetsDir: cfg.AnalyzerAssets,
		OutDir:    cfg.AnalyzerOutDir,
		PDFName:   cfg.AnalyzerPDFName,
		ImgName:   cfg.AnalyzerImgName,
		Mock:      cfg.AnalyzerMock,
		Timeout:   cfg.AnalyzerTimeout,
	}, uploader)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	exporter := export.NewService(dataStore)

	var service *app.Service
	if sessions != nil {
		service = app.New(cfg, dataStore, sessions, gateway, blobs, searchService, exporter, mailer)
	} else {
		service = app.New(cfg, dataStore, nil, gateway, blobs, searchService, exporter, mailer)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      serverWriteTimeout(cfg.AnalyzerTimeout),
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Land allocation API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
