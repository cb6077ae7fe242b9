package pprofserver

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/myrjola/clustereval/internal/errors"
)

func handle(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
}

func newServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	handle(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ReadHeaderTimeout: time.Second,
	}
}

// Launch starts a pprof server at addr in the background and stops it when ctx is done.
//
// Keep addr on a loopback interface such as localhost:6060 so that the profiles are not open to the world. An empty
// addr disables the server.
func Launch(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	srv := newServer(addr, logger)
	go func() {
		logger.LogAttrs(ctx, slog.LevelInfo, "starting pprof server", slog.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			err = errors.Wrap(err, "pprof listen and serve", slog.String("addr", addr))
			logger.LogAttrs(ctx, slog.LevelError, "pprof server stopped", errors.SlogError(err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
