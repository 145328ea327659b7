package main

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/liamcoop/querybuilder/fields"
	"github.com/liamcoop/querybuilder/internal/config"
	"github.com/liamcoop/querybuilder/internal/logger"
	"github.com/liamcoop/querybuilder/session"
	"github.com/liamcoop/querybuilder/store"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// loadCatalogs reads the configured catalog file, or the built-in catalog
// when path is empty.
func loadCatalogs(path string) (map[string]*fields.Catalog, error) {
	if path == "" {
		return fields.ParseCatalogs(defaultCatalog, "yaml", nil)
	}
	return fields.LoadCatalogFile(path, nil)
}

func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

const minReapInterval = time.Second

// reapInterval is half the idle timeout, never below minReapInterval.
func reapInterval(idle time.Duration) time.Duration {
	return max(idle/2, minReapInterval)
}

// reapIdleSessions closes idle sessions until ctx is done.
func reapIdleSessions(ctx context.Context, m *session.Manager, idle time.Duration) {
	ticker := time.NewTicker(reapInterval(idle))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CloseIdle(idle); n > 0 {
				logger.Info("closed idle sessions", "count", n)
			}
		}
	}
}

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	catalogs, err := loadCatalogs(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("failed to load catalogs", "path", cfg.Catalog.Path, "error", err)
	}

	var (
		db      *sql.DB
		queries store.QueryStore
	)
	if cfg.Database.URL != "" {
		db, err = openDatabase(cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to connect to database", "error", err)
		}
		defer db.Close()
		queries = store.NewPostgresQueryStore(db)
	} else {
		logger.Warn("no database configured, saved queries are kept in memory")
		queries = store.NewInMemoryQueryStore()
	}

	loader := store.NewLoader(queries, store.NewInMemoryTreeCache(store.CacheConfig{TTL: cfg.Cache.TTL}))
	manager := session.NewManager(
		session.WithMaxDepth(cfg.Engine.MaxDepth),
		session.WithCaseSensitive(cfg.Engine.CaseSensitive),
		session.WithWorkers(cfg.Engine.Workers),
		session.WithLoader(loader),
	)
	for name, cat := range catalogs {
		manager.RegisterCatalog(name, cat)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Session.IdleTimeout > 0 {
		go reapIdleSessions(ctx, manager, cfg.Session.IdleTimeout)
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      NewServer(manager, loader, db, cfg.HTTP.SlowRequest),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port, "catalogs", len(catalogs))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
