package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"moledger/internal/assets"
	"moledger/internal/audit"
	"moledger/internal/clock"
	"moledger/internal/config"
	"moledger/internal/document"
	"moledger/internal/gate"
	"moledger/internal/mo"
	"moledger/internal/models"
	"moledger/internal/notify"
	"moledger/internal/render"
	"moledger/internal/scancode"
	"moledger/internal/store"
	"moledger/internal/store/postgres"
	"moledger/internal/websocket"
)

// ledgerStore is what both the sqlite and Postgres stores provide.
type ledgerStore interface {
	mo.Catalog
	mo.Ledger
	store.ProductWriter
	audit.Store
	notify.EmailLogger
	ListEmailLog(ctx context.Context, limit int) ([]models.EmailLogEntry, error)
	Close() error
}

// App is the wired process: one store, one gate, one service.
type App struct {
	Config  config.Config
	Store   ledgerStore
	Service *mo.Service
	Hub     *websocket.Hub
	Logger  *log.Logger
}

func newLogger(verbose bool) *log.Logger {
	if verbose {
		return log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	blobs, err := openAssets(ctx, cfg.Assets)
	if err != nil {
		st.Close()
		return nil, err
	}
	if blobs == nil {
		logger.Printf("WARN: no asset backend configured, documents will carry the no-image marker")
	}

	tpl, err := loadTemplate(cfg.Template)
	if err != nil {
		st.Close()
		return nil, err
	}

	engine := &document.Engine{
		Assets:    blobs,
		ScanCodes: scancode.NewHTTPClient(cfg.ScanCode.URL, cfg.ScanCode.Timeout),
		QRSize:    cfg.ScanCode.Size,
		Location:  loc,
		Logger:    logger,
	}

	var notifier notify.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notify.NewSMTP(cfg.SMTP, st, logger)
	} else {
		logger.Printf("WARN: SMTP not configured, notifications are disabled")
	}

	hub := websocket.NewHub()
	svc := mo.New(mo.Config{
		Catalog:    st,
		Ledger:     st,
		Gate:       gate.New(),
		Clock:      clock.NewSystem(loc),
		Assembler:  document.NewAssembler(engine, tpl),
		Renderer:   newRenderer(cfg.Render),
		Notifier:   notifier,
		Events:     hub,
		Audit:      audit.New(st),
		Logger:     logger,
		SingleWait: cfg.Ledger.SingleWait,
		BatchWait:  cfg.Ledger.BatchWait,
	})

	return &App{Config: cfg, Store: st, Service: svc, Hub: hub, Logger: logger}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (ledgerStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.DriverSQLite:
		s, err := store.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openAssets(ctx context.Context, cfg config.AssetsConfig) (assets.Store, error) {
	switch cfg.Backend {
	case config.AssetsMinIO:
		m, err := assets.NewMinIO(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := m.CheckBucket(ctx); err != nil {
			return nil, err
		}
		return m, nil
	case config.AssetsDir:
		return assets.Dir{Root: cfg.Dir}, nil
	default:
		return nil, nil
	}
}

func loadTemplate(cfg config.TemplateConfig) (*document.Template, error) {
	if cfg.Path == "" {
		return document.DefaultTemplate()
	}
	return document.LoadTemplate(cfg.Path, cfg.Sheet)
}

func newRenderer(cfg config.RenderConfig) render.Renderer {
	if cfg.Kind == config.RenderPDF {
		return render.NewPDF(cfg.URL, cfg.Timeout)
	}
	return render.XLSX{}
}
