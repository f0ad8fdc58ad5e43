// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/gleaner/internal/api"
	"github.com/starford/gleaner/internal/batch"
	"github.com/starford/gleaner/internal/blob"
	"github.com/starford/gleaner/internal/bot"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/folder"
	"github.com/starford/gleaner/internal/index"
	"github.com/starford/gleaner/internal/ingest"
	"github.com/starford/gleaner/internal/mcpserver"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/recordstore"
	"github.com/starford/gleaner/internal/services/article"
	"github.com/starford/gleaner/internal/services/arxiv"
	"github.com/starford/gleaner/internal/services/llm"
	"github.com/starford/gleaner/internal/sse"
	"github.com/starford/gleaner/internal/storage"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	store   *recordstore.Store
	vault   *storage.FS
	db      *index.DB
	broker  *sse.Broker
	blob    *blob.Store
	fetcher *article.Fetcher
	svc     *ingest.Service
}

func (r *runtime) Close() {
	r.broker.Close()
	if err := r.db.Close(); err != nil {
		r.logger.Warn("index close failed", slog.String("error", err.Error()))
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("store close failed", slog.String("error", err.Error()))
	}
	_ = r.vault.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup initializes logging, storage, the index and the ingestion service.
func setup(ctx context.Context, app *application) (*runtime, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("store_path", cfg.Store.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("llm_enabled", cfg.LLM.APIKey != ""),
		slog.Bool("nats_enabled", cfg.NATS.Enabled),
		slog.Bool("blob_enabled", cfg.Blob.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	for _, dir := range []string{cfg.Vault.Path, filepath.Dir(cfg.Store.Path), filepath.Dir(cfg.SQLite.Path)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	vault, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	store, err := recordstore.Open(cfg.Store.Path, recordstore.WithLogger(logger))
	if err != nil {
		_ = vault.Close()
		return nil, fmt.Errorf("init record store: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		_ = store.Close()
		_ = vault.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		vault:  vault,
		db:     db,
		broker: sse.NewBroker(
			sse.WithStatsThrottle(2*time.Second),
			sse.WithStatsSource(func() any { return store.Stats() }),
		),
		fetcher: article.NewFetcher(),
	}

	if _, err := index.Sync(db, vault, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	ingestOpts := []ingest.Option{
		ingest.WithIndex(db),
		ingest.WithPaperSearch(arxiv.NewClient(cfg.Arxiv.BaseURL, cfg.Arxiv.MaxResults)),
		ingest.WithPublisher(rt.broker),
		ingest.WithLogger(logger),
	}

	if cfg.Blob.Enabled {
		bs, err := blob.New(blob.Config{
			Endpoint:  cfg.Blob.Endpoint,
			Bucket:    cfg.Blob.Bucket,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			UseSSL:    cfg.Blob.UseSSL,
			Prefix:    cfg.Blob.Prefix,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		if err := bs.EnsureBucket(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		rt.blob = bs
		ingestOpts = append(ingestOpts, ingest.WithMirror(bs))
	}

	summarizerOpts := []enrich.Option{
		enrich.WithArticleSource(rt.fetcher),
		enrich.WithLogger(logger),
	}
	if cfg.LLM.APIKey != "" {
		summarizerOpts = append(summarizerOpts, enrich.WithCompleter(llm.NewClient(llm.Config{
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.LLM.Model,
			TimeoutSeconds:    cfg.LLM.TimeoutSeconds,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		})))
	} else {
		logger.Warn("llm api key not set, enrichment runs offline")
	}

	exec := batch.NewExecutor(cfg.Batch.Interval, batch.WithLogger(logger))
	rt.svc = ingest.New(store, enrich.NewSummarizer(summarizerOpts...), vault,
		folder.NewPolicy(vault, cfg.Folders.Aliases), exec, ingestOpts...)
	return rt, nil
}

// Run starts the HTTP server, the vault watcher and, when a transport is
// available, the chat bot.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	routerCfg := api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      rt.broker,
	}
	if rt.blob != nil {
		routerCfg.Assets = rt.blob
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api", api.NewRouter(rt.svc, routerCfg))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	transport := app.transport
	if transport == nil && cfg.NATS.Enabled {
		nt, err := bot.NewNATSTransport(bot.NATSConfig{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject}, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := nt.Close(); err != nil {
				logger.Warn("nats drain failed", slog.String("error", err.Error()))
			}
		}()
		transport = nt
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher; hand edits in the vault are reindexed and streamed.
	g.Go(func() error {
		w := index.NewWatcher(rt.db, rt.vault, cfg.Vault.Path,
			index.WithWatchLogger(logger),
			index.OnChange(func(c index.Change) {
				ev := sse.DocumentChanged
				if c.Op == index.ChangeRemoved {
					ev = sse.DocumentRemoved
				}
				rt.broker.PublishRecordEvent(ev, sse.RecordEvent{ID: c.RecordID, Path: c.Path})
			}),
		)
		err := w.Run(gCtx)
		if err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	if transport != nil {
		b := bot.New(rt.svc, transport, botOptions(rt)...)
		g.Go(func() error {
			if err := b.Run(gCtx); err != nil {
				return fmt.Errorf("chat bot: %w", err)
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the watcher and the bot.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown requested")

func botOptions(rt *runtime) []bot.Option {
	opts := []bot.Option{
		bot.WithMessageLimit(rt.cfg.Chat.MessageLimit),
		bot.WithLogger(rt.logger),
	}
	if rt.blob != nil {
		opts = append(opts, bot.WithAssetMirror(rt.blob, rt.fetcher))
	}
	return opts
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}

// Rerender rewrites the document of record id and returns the updated record.
func Rerender(ctx context.Context, id string, opts ...Option) (models.Record, error) {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return models.Record{}, err
	}
	rt, err := setup(ctx, app)
	if err != nil {
		return models.Record{}, err
	}
	defer rt.Close()
	return rt.svc.Rerender(ctx, id)
}

// Reindex rebuilds the document index from the vault.
func Reindex(ctx context.Context, opts ...Option) (index.Report, error) {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return index.Report{}, err
	}
	rt, err := setup(ctx, app)
	if err != nil {
		return index.Report{}, err
	}
	defer rt.Close()
	return index.Rebuild(rt.db, rt.vault, rt.logger)
}

// LoadStats reads record counts from the store at path.
func LoadStats(path string) (recordstore.Stats, error) {
	store, err := recordstore.Open(path, recordstore.WithLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil))))
	if err != nil {
		return recordstore.Stats{}, err
	}
	defer store.Close()
	return store.Stats(), nil
}
