package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	logx "flushq/pkg/logx"
)

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// Serve runs an HTTP server until ctx is done, then shuts it down
// gracefully. It is shaped for supervisor.Go.
func Serve(ctx context.Context, cfg ServerConfig, h http.Handler, log logx.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, cfg, h, log)
}

func ServeListener(ctx context.Context, ln net.Listener, cfg ServerConfig, h http.Handler, log logx.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info("http api listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http api shutdown", logx.Err(err))
		return err
	}
	log.Info("http api stopped")
	return nil
}
