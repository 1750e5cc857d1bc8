package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const gracefulShutdownTimeout = 5 * time.Second

// serve runs srv on listener until ctx is done, then shuts it down.
// A closed listener or server is a normal stop.
func serve(ctx context.Context, name string, srv *http.Server, listener net.Listener) error {
	logger := zap.S().Named(name)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Infof("Shutdown signal received: %s", ctx.Err())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("forced shutdown", "error", err)
		}
	}()

	logger.Infof("Listening on %s...", listener.Addr().String())
	err := srv.Serve(listener)
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if ctx.Err() != nil {
		<-stopped
	}
	logger.Info("terminated")
	return nil
}
