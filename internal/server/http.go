package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServerManagerCtx owns the HTTP listener and its chi router, mirroring the
// teacher's internal/server manager shape (logger + config + router +
// *http.Server), upgraded to chi v5 and with a rate limiter in front of the
// transcoding routes.
type ServerManagerCtx struct {
	logger  zerolog.Logger
	config  *Config
	router  *chi.Mux
	limited chi.Router
	server  *http.Server
}

func New(config *Config, registry *prometheus.Registry) *ServerManagerCtx {
	logger := log.With().Str("module", "server").Logger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)

	if config.Proxy {
		router.Use(middleware.RealIP)
	}

	router.Use(middleware.RequestLogger(&logFormatter{logger}))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if config.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	limited := router.Group(func(r chi.Router) {
		if config.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(config.RateLimitRequests, config.RateLimitWindow))
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "404 not found", http.StatusNotFound)
	})

	return &ServerManagerCtx{
		logger:  logger,
		config:  config,
		router:  router,
		limited: limited,
		server: &http.Server{
			Addr:              config.Bind,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *ServerManagerCtx) Start() {
	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		s.logger.Warn().Msg("TLS support is provided for convenience, but you should never use it in production. Use a reverse proxy (nginx, caddy, traefik) instead!")
		go func() {
			if err := s.server.ListenAndServeTLS(s.config.SSLCert, s.config.SSLKey); err != http.ErrServerClosed {
				s.logger.Panic().Err(err).Msg("unable to start https server")
			}
		}()
		s.logger.Info().Msgf("https listening on %s", s.server.Addr)
		return
	}

	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Panic().Err(err).Msg("unable to start http server")
		}
	}()
	s.logger.Info().Msgf("http listening on %s", s.server.Addr)
}

func (s *ServerManagerCtx) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Mount registers routes directly on the root router, bypassing the
// rate limiter (used for ambient endpoints like the browse surface).
func (s *ServerManagerCtx) Mount(fn func(r *chi.Mux)) {
	fn(s.router)
}

// MountRateLimited registers routes behind the /hls* rate limiter group,
// used for the transcoding endpoints spec.md's External Interfaces name.
func (s *ServerManagerCtx) MountRateLimited(fn func(r chi.Router)) {
	fn(s.limited)
}
