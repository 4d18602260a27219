package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// NewEcho returns an echo instance serving /metrics and /healthz. It is kept
// separate from the command API so scrapers never share its listener.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e
}

// Serve runs the metrics listener until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	e := NewEcho()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()
	log.Info("metrics listening", "addr", addr)
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	}
}
