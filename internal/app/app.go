package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/netchat-io/netchat-server/internal/config"
	"github.com/netchat-io/netchat-server/internal/core"
	"github.com/netchat-io/netchat-server/internal/transport/httpapi"
	"github.com/netchat-io/netchat-server/internal/transport/tcp"
)

// App wires the registry, router, and both transports together.
type App struct {
	tcpServer       *tcp.Server
	httpServer      *stdhttp.Server
	registry        *core.Registry
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	registry := core.NewRegistry()
	router := core.NewRouter(registry, logger)

	return &App{
		tcpServer:       tcp.NewServer(cfg.Addr, cfg.HandshakeTimeout, router, logger),
		httpServer:      httpapi.NewServer(cfg, registry, router, logger),
		registry:        registry,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}
}

// Run starts both servers and blocks until context cancellation or a
// fatal error. A failed bind is fatal; anything after that is contained
// per connection.
func (a *App) Run(ctx context.Context) error {
	if err := a.tcpServer.Listen(); err != nil {
		return err
	}

	tcpErr := make(chan error, 1)
	httpErr := make(chan error, 1)

	tcpCtx, cancelTCP := context.WithCancel(ctx)
	defer cancelTCP()

	go func() {
		tcpErr <- a.tcpServer.Run(tcpCtx)
	}()
	go func() {
		a.log.Info().Str("addr", a.httpServer.Addr).Msg("http server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			httpErr <- err
			return
		}
		httpErr <- nil
	}()

	select {
	case err := <-tcpErr:
		a.shutdownHTTP()
		return err
	case err := <-httpErr:
		cancelTCP()
		<-tcpErr
		return err
	case <-ctx.Done():
		a.shutdownHTTP()
		cancelTCP()
		return <-tcpErr
	}
}

func (a *App) shutdownHTTP() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.log.Info().Msg("shutting down http server")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown failed")
	}
}
