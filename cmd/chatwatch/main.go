// Command chatwatch watches a third-party chat widget from a Chrome tab,
// shows a typing indicator while the agent is expected to reply and makes
// links in messages clickable.
//
// Usage:
//
//	chatwatch -config chatwatch.yaml                 # watch pages from YAML config
//	chatwatch -url https://shop.example/             # quick single-page watch (stdout sink)
//	chatwatch -config chatwatch.yaml -db pages.db    # also follow the chat_pages registry
//	chatwatch -augment message.html                  # rewrite links in a file and exit
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/widgetwatch/chatwatch"
	"github.com/hazyhaar/widgetwatch/dbopen"
	"github.com/hazyhaar/widgetwatch/horosafe"
	"github.com/hazyhaar/widgetwatch/idgen"
)

func main() {
	configPath := flag.String("config", "", "path to chatwatch.yaml config file")
	singleURL := flag.String("url", "", "watch a single URL (stdout sink)")
	dbPath := flag.String("db", "", "SQLite page registry (chat_pages table)")
	augmentPath := flag.String("augment", "", "rewrite links in an HTML file to stdout and exit")
	httpAddr := flag.String("http", "", "status API listen address, overrides http.addr")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		configPath:  *configPath,
		singleURL:   *singleURL,
		dbPath:      *dbPath,
		augmentPath: *augmentPath,
		httpAddr:    *httpAddr,
	}
	err := run(ctx, logger, opts)
	stop()
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	case err != nil:
		logger.Error("chatwatch: fatal", "error", err)
		os.Exit(1)
	}
}

const usage = "usage: chatwatch -config <file> | -url <url> | -db <file> | -augment <file>"

// errUsage means no page source was given.
var errUsage = errors.New("no pages to watch")

type options struct {
	configPath  string
	singleURL   string
	dbPath      string
	augmentPath string
	httpAddr    string
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	cfg := chatwatch.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = chatwatch.LoadConfigFile(opts.configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	if opts.augmentPath != "" {
		return runAugment(logger, opts.augmentPath, cfg.Widget.IndicatorID)
	}

	if opts.singleURL != "" {
		if err := horosafe.ValidatePageURL(opts.singleURL); err != nil {
			return fmt.Errorf("-url: %w", err)
		}
		cfg.Pages = append(cfg.Pages, chatwatch.PageConfig{ID: idgen.PageID(), URL: opts.singleURL})
	}
	if opts.httpAddr != "" {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if opts.dbPath != "" {
		cfg.Registry.Path = opts.dbPath
	}
	if len(cfg.Pages) == 0 && cfg.Registry.Path == "" {
		return errUsage
	}

	return runWatch(ctx, logger, cfg)
}

func runAugment(logger *slog.Logger, path, reservedID string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := horosafe.LimitedReadAll(f, horosafe.MaxDocument)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	n, err := chatwatch.AugmentDocument(bytes.NewReader(data), os.Stdout, reservedID)
	if err != nil {
		return fmt.Errorf("augment %s: %w", path, err)
	}
	logger.Info("chatwatch: document augmented", "path", path, "links", n)
	return nil
}

func runWatch(ctx context.Context, logger *slog.Logger, cfg *chatwatch.Config) error {
	sinks, err := chatwatch.SinksFromConfig(cfg.Sinks, nil, logger)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		sinks = append(sinks, chatwatch.NewStdoutSink(nil))
	}

	w := chatwatch.New(cfg, logger, sinks...)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer w.Stop()

	if cfg.Registry.Path != "" {
		db, err := dbopen.Open(cfg.Registry.Path,
			dbopen.WithMkdirAll(),
			dbopen.WithSchema(chatwatch.RegistrySchema),
			dbopen.WithMaxOpenConns(1),
		)
		if err != nil {
			return fmt.Errorf("open registry: %w", err)
		}
		defer db.Close()
		go w.WatchRegistry(ctx, db)
	}

	if cfg.HTTP.Addr != "" {
		api := chatwatch.NewAPI(w, w.ReservedID(), logger)
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("chatwatch: status API listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("chatwatch: status API", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	return nil
}
