package kestrel

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelfm/kestrel/internal/config"
	"github.com/kestrelfm/kestrel/internal/hlscache"
	"github.com/kestrelfm/kestrel/internal/library"
	"github.com/kestrelfm/kestrel/internal/server"
	transporthttp "github.com/kestrelfm/kestrel/internal/transport/http"
)

var Service *Main

func init() {
	Service = &Main{
		RootConfig:   &config.Root{},
		ServerConfig: &server.Config{},
	}
}

// Main is the process-level object the cmd package drives, mirroring the
// teacher's own Main/Service shape: two Config structs filled in by cobra,
// a Preflight step that derives the loggers, then Start/Shutdown around
// the actual server lifetime.
type Main struct {
	RootConfig   *config.Root
	ServerConfig *server.Config

	logger zerolog.Logger

	store     *hlscache.CacheStore
	registry  *hlscache.JobRegistry
	readiness *hlscache.ReadinessProbe
	streamer  *hlscache.Streamer
	janitor   *hlscache.JanitorLoop
	index     *library.MemoryIndex
	srv       *server.ServerManagerCtx

	cancel context.CancelFunc
	group  *errgroup.Group
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) Start() {
	cacheConfig := main.RootConfig.HLSCache()
	promRegistry := prometheus.NewRegistry()
	metrics := hlscache.NewMetrics(promRegistry)

	store, err := hlscache.NewCacheStore(cacheConfig, main.logger, metrics)
	if err != nil {
		main.logger.Panic().Err(err).Msg("unable to open cache store")
	}
	main.store = store

	main.registry = hlscache.NewJobRegistry(cacheConfig, main.logger, metrics)
	main.readiness = hlscache.NewReadinessProbe(cacheConfig, main.logger)

	main.index = library.NewMemoryIndex(main.RootConfig.LibraryDir, main.logger)
	if snapshot, err := library.LoadSnapshot(main.RootConfig.IndexSnapshotPath()); err == nil {
		main.index.Seed(snapshot)
		main.logger.Info().Int("items", len(snapshot)).Msg("library index warm-started from snapshot")
	}
	if err := main.index.Scan(); err != nil {
		main.logger.Error().Err(err).Msg("initial library scan failed")
	}

	main.streamer = hlscache.NewStreamer(cacheConfig, main.store, main.registry, main.readiness, main.index, metrics, main.logger)
	main.janitor = hlscache.NewJanitorLoop(main.store, main.logger)

	main.srv = server.New(main.ServerConfig, promRegistry)

	hlsHandlers := transporthttp.NewHLSHandlers(main.streamer, main.logger)
	browseHandlers := transporthttp.NewBrowseHandlers()

	main.srv.MountRateLimited(func(r chi.Router) {
		r.Get("/hls.m3u8", hlsHandlers.Playlist)
		r.Get("/hls", hlsHandlers.Segment)
	})
	main.srv.Mount(func(r *chi.Mux) {
		r.Get("/rest/ping", browseHandlers.Ping)
		r.Get("/rest/getMusicFolders", browseHandlers.GetMusicFolders)
	})

	ctx, cancel := context.WithCancel(context.Background())
	main.cancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	main.group = group

	group.Go(func() error {
		return main.index.Watch(ctx)
	})

	go main.janitor.Run()

	main.srv.Start()
}

func (main *Main) Shutdown() {
	if main.cancel != nil {
		main.cancel()
	}

	main.janitor.Stop()

	if err := main.srv.Shutdown(); err != nil {
		main.logger.Err(err).Msg("server shutdown with an error")
	}

	if err := main.index.Close(); err != nil {
		main.logger.Err(err).Msg("library watcher shutdown with an error")
	}

	if err := main.index.SaveSnapshot(main.RootConfig.IndexSnapshotPath()); err != nil {
		main.logger.Err(err).Msg("unable to save library index snapshot")
	}

	if err := main.streamer.Close(); err != nil {
		main.logger.Err(err).Msg("streamer shutdown with an error")
	}

	if main.group != nil {
		if err := main.group.Wait(); err != nil {
			main.logger.Err(err).Msg("background watcher exited with an error")
		}
	}

	main.logger.Debug().Msg("main shutdown")
}

func (main *Main) ServeCommand(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	main.Start()
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.Shutdown()
	main.logger.Info().Msg("shutdown complete")
}
