package service

import (
	"context"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type HealthzServer struct {
	ctx    context.Context
	log    zerolog.Logger
	server *http.Server
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
	}
	h.server = server
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Str("path", r.URL.Path).Msg("received health check request")
	w.Write([]byte("OK")) //nolint:errcheck
}
