package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/star-achiever/star/internal/api"
	"github.com/star-achiever/star/internal/catalog"
	"github.com/star-achiever/star/internal/infra/sqlite"
)

// shutdownGrace bounds how long in-flight requests get on shutdown.
const shutdownGrace = 10 * time.Second

// Daemon is the running sync server.
type Daemon struct {
	cfg Config
	db  *sqlite.DB
	api *api.Server
	log *slog.Logger
}

// New opens storage and builds the API server.
func New(cfg Config, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sqlite.Open(cfg.StorageDir(), sqlite.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	srv := api.NewServer(db, catalog.Default(), log)
	srv.SetRequestTimeout(cfg.RequestTimeout())
	if cfg.Metrics.Enabled {
		srv.EnableMetrics()
	}
	return &Daemon{
		cfg: cfg,
		db:  db,
		api: srv,
		log: log.With("component", "daemon"),
	}, nil
}

// Handler exposes the HTTP handler.
func (d *Daemon) Handler() http.Handler { return d.api.Handler() }

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()
	d.log.Info("listening", "addr", ln.Addr().String(), "storage", d.cfg.StorageDir())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	d.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Run listens on the configured address and serves until ctx ends.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Addr(), err)
	}
	return d.Serve(ctx, ln)
}

// Close releases storage.
func (d *Daemon) Close() error { return d.db.Close() }
