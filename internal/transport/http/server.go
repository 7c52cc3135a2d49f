package httptransport

import (
	"context"
	"net"
	"net/http"
	"time"
)

type ServerOptions struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// NewServer builds the API server. There is no write timeout because progress
// streams stay open for the whole relay budget; instead every request context
// is cancelled as soon as Shutdown starts, so open streams end and Shutdown
// only waits for ordinary requests.
func NewServer(h http.Handler, opts ServerOptions) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		IdleTimeout:       opts.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
