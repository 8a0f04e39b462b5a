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

	"selah/api/internal/app"
	"selah/api/internal/archive"
	"selah/api/internal/authpw"
	"selah/api/internal/bible"
	"selah/api/internal/config"
	"selah/api/internal/contentlog"
	"selah/api/internal/devotion"
	"selah/api/internal/email"
	"selah/api/internal/export"
	"selah/api/internal/journal"
	"selah/api/internal/mirror"
	"selah/api/internal/reflection"
	"selah/api/internal/search"
	"selah/api/internal/store"
)

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

	if err := os.MkdirAll(cfg.ContentLogDir, 0o755); err != nil {
		log.Fatalf("failed to create content log dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	// Local Mirror. Redis being down is not fatal; everything that uses the
	// mirror degrades to remote-only behavior.
	var mirrorCache *mirror.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := mirror.New(cfg.RedisURL, cfg.MirrorTTL, cfg.MirrorCapacity)
		if err != nil {
			log.Printf("WARNING: local mirror unavailable: %v", err)
		} else {
			mirrorCache = cache
			defer mirrorCache.Close()
		}
	}

	var primary bible.Provider
	if strings.TrimSpace(cfg.ESVAPIKey) != "" {
		primary = bible.NewESVClient(cfg.ESVAPIURL, cfg.ESVAPIKey, cfg.VerseTimeout)
	}
	var secondary bible.Provider = bible.NewBibleAPIClient(cfg.BibleAPIURL, cfg.VerseTimeout)
	verses := newFetcher(mirrorCache, primary, secondary)

	journalService := newJournalService(dataStore, mirrorCache)
	reflections := newReflectionService(ctx, cfg, mirrorCache)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPostgres(dataStore))
	if meiliClient != nil {
		go reindexAll(ctx, dataStore, searchService)
	}

	audit := contentlog.New(cfg.ContentLogDir)

	var archiveService *archive.Service
	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		archiveService, err = archive.New(ctx, cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket, cfg.ArchiveUseSSL)
		if err != nil {
			log.Printf("WARNING: upload archive unavailable: %v", err)
			archiveService = nil
		}
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !emailService.IsConfigured() {
		log.Printf("SMTP not configured, verification emails disabled")
	}

	deps := app.Deps{
		Resolver:    devotion.NewResolver(dataStore),
		Verses:      verses,
		Journal:     journalService,
		Reflections: reflections,
		Search:      searchService,
		Audit:       audit,
		Export:      export.NewService(dataStore),
		AuthPW:      authpw.NewService(dataStore),
		Email:       emailService,
	}
	if archiveService != nil {
		deps.Archive = archiveService
	}
	service := app.New(cfg, dataStore, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Selah API listening on %s", cfg.Addr)
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

// The constructors below keep typed-nil pointers out of interface fields.

func newFetcher(cache *mirror.Cache, primary, secondary bible.Provider) *bible.Fetcher {
	if cache != nil {
		return bible.NewFetcher(cache, primary, secondary)
	}
	return bible.NewFetcher(nil, primary, secondary)
}

func newJournalService(dataStore *store.PostgresStore, cache *mirror.Cache) *journal.Service {
	if cache != nil {
		return journal.NewService(dataStore, cache)
	}
	return journal.NewService(dataStore, nil)
}

func newReflectionService(ctx context.Context, cfg config.Config, cache *mirror.Cache) *reflection.Service {
	var generator reflection.Generator
	if strings.TrimSpace(cfg.GenAIAPIKey) != "" {
		client, err := reflection.NewGenAIClient(ctx, cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			log.Printf("WARNING: generative AI unavailable, serving mock reflections: %v", err)
		} else {
			generator = client
		}
	}
	if cache != nil {
		return reflection.NewService(generator, cache)
	}
	return reflection.NewService(generator, nil)
}

// reindexAll seeds the search index from the content store on startup so a
// fresh Meilisearch instance catches up without an admin reimport.
func reindexAll(ctx context.Context, dataStore *store.PostgresStore, searchService *search.Service) {
	devotions, err := dataStore.ListAllDevotions(ctx)
	if err != nil {
		log.Printf("WARNING: search reindex skipped, list devotions: %v", err)
		return
	}
	hymns, err := dataStore.ListAllHymns(ctx)
	if err != nil {
		log.Printf("WARNING: search reindex skipped, list hymns: %v", err)
		return
	}
	searchService.ReindexAll(devotions, hymns)
	log.Printf("search reindex queued: %d devotions, %d hymns", len(devotions), len(hymns))
}
