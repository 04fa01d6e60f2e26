// Command gentoc is the table-of-contents sidebar daemon. It drives pages
// in a Chrome instance, keeps a navigable heading sidebar on each one, and
// exposes the registry over HTTP, websocket, and MCP.
//
// Usage:
//
//	gentoc -config gentoc.yaml              # full daemon from config
//	gentoc -url https://example.com/docs    # quick single-page session
//	gentoc -config gentoc.yaml -mcp         # also serve MCP tools on stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/EaziSpace/gen-toc/api"
	"github.com/EaziSpace/gen-toc/browser"
	"github.com/EaziSpace/gen-toc/config"
	"github.com/EaziSpace/gen-toc/coordinator"
	"github.com/EaziSpace/gen-toc/pageagent"
	"github.com/EaziSpace/gen-toc/prefs"
)

func main() {
	configPath := flag.String("config", "", "path to gentoc.yaml config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "preferences database path (overrides config)")
	singleURL := flag.String("url", "", "attach a single URL at startup")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio")
	headful := flag.Bool("headful", false, "run Chrome with a visible window")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("gentoc: config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dbPath != "" {
		cfg.DB = *dbPath
	}
	if *headful {
		cfg.Browser.Headful = true
	}
	if *singleURL != "" {
		cfg.Pages = append(cfg.Pages, config.PageConfig{URL: *singleURL})
	}

	if err := run(ctx, logger, cfg, *mcpStdio); err != nil {
		logger.Error("gentoc: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, mcpStdio bool) error {
	// Preferences.
	store, err := prefs.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, rule := range cfg.Domains {
		if err := store.SetDomainRule(rule.Domain, rule.Allowed); err != nil {
			return err
		}
	}

	// Browser.
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Headful:         cfg.Browser.Headful,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
		RecycleInterval: cfg.Browser.RecycleInterval,
		Logger:          logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	injector := browser.NewInjector(mgr, store, logger, pageagent.Intervals{
		RefreshThrottle:     cfg.Agent.RefreshThrottle,
		EmptyRetry:          cfg.Agent.EmptyRetry,
		Debounce:            cfg.Agent.Debounce,
		Sweep:               cfg.Agent.Sweep,
		AutoRefreshEvery:    cfg.Agent.AutoRefreshEvery,
		AutoRefreshAttempts: cfg.Agent.AutoRefreshAttempts,
		InteractionReset:    cfg.Agent.InteractionReset,
		SizeDelta:           cfg.Agent.SizeDelta,
		MaxLevel:            cfg.Agent.MaxLevel,
	})

	coord, err := coordinator.New(coordinator.Config{
		Injector:    injector,
		Policy:      store,
		Logger:      logger,
		SettleDelay: cfg.Coordinator.SettleDelay,
	})
	if err != nil {
		return err
	}
	defer coord.Close()

	// A Chrome recycle orphans every live agent. Invalidate before the
	// swap, reattach after it.
	mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: coord.InvalidateAll,
		AfterRecycle: func() {
			go func() {
				for _, rec := range coord.Pages() {
					if !rec.Allowed {
						continue
					}
					if _, err := coord.EnsureInjected(ctx, rec.PageID); err != nil {
						logger.Warn("reattach after recycle failed",
							"page_id", rec.PageID, "error", err)
					}
				}
			}()
		},
	})

	// Startup pages.
	for _, pc := range cfg.Pages {
		id, err := coord.Attach(ctx, pc.URL)
		if err != nil {
			logger.Error("attach failed", "url", pc.URL, "error", err)
			continue
		}
		if _, err := coord.EnsureInjected(ctx, id); err != nil {
			logger.Error("inject failed", "url", pc.URL, "error", err)
		}
	}

	// Optional MCP stdio.
	if mcpStdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "gentoc",
			Version: "1.0.0",
		}, nil)
		coord.RegisterMCP(mcpSrv)
		go func() {
			logger.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("MCP stdio", "error", err)
			}
		}()
	}

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(coord, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gentoc: server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
