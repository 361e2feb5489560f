package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/seld-go/internal/logger"
	"github.com/tphakala/seld-go/internal/observability/metrics"
)

// Endpoint serves /metrics while a run is in progress.
type Endpoint struct {
	server   *http.Server
	listener net.Listener
}

// ListenEndpoint binds address for serving m. Nothing is served until Serve.
func ListenEndpoint(address string, m *Metrics) (*Endpoint, error) {
	if address == "" {
		return nil, fmt.Errorf("metrics endpoint: empty listen address")
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("metrics endpoint: listen on %s: %w", address, err)
	}

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	return &Endpoint{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		listener: listener,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (e *Endpoint) Addr() string { return e.listener.Addr().String() }

// Serve serves until ctx is done, then shuts the server down gracefully.
// A serve failure is returned without waiting for ctx.
func (e *Endpoint) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		GetLogger().Info("metrics endpoint starting", logger.String("address", e.Addr()))
		if err := e.server.Serve(e.listener); !errors.Is(err, http.ErrServerClosed) {
			GetLogger().Error("metrics HTTP server error", logger.Error(err))
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		GetLogger().Info("stopping metrics endpoint")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
		defer cancel()
		return e.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
