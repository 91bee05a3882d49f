package cmd

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kestrelfm/kestrel"
)

func init() {
	command := &cobra.Command{
		Use:   "serve",
		Short: "serve kestrel",
		Long:  `serve the kestrel HLS transcoding and caching server`,
		Run:   kestrel.Service.ServeCommand,
	}

	configs := []Config{
		kestrel.Service.RootConfig,
		kestrel.Service.ServerConfig,
	}

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	// cfg.Set() is registered as a reload hook rather than a plain
	// cobra.OnInitialize, so the config structs are re-populated every time
	// viper.WatchConfig fires, not just once at startup. The hlscache
	// components are built from a copy of these values in Start and do not
	// see later reloads.
	for _, cfg := range configs {
		cfg := cfg
		OnConfigReload(cfg.Set)
	}

	OnConfigReload(validateServeConfig)

	cobra.OnInitialize(kestrel.Service.Preflight)

	rootCmd.AddCommand(command)
}

// validateServeConfig warns about configuration that would leave kestrel
// serving an empty library or unable to transcode, without refusing to
// start — a missing library directory is recoverable by editing the
// config and letting fsnotify pick up the directory later.
func validateServeConfig() {
	root := kestrel.Service.RootConfig

	if root.LibraryDir == "" {
		log.Warn().Msg("no libraryDir configured; the library index will stay empty until one is set")
	} else if info, err := os.Stat(root.LibraryDir); err != nil || !info.IsDir() {
		log.Warn().Str("libraryDir", root.LibraryDir).Msg("libraryDir does not exist or is not a directory")
	}

	transcoderPath := root.Transcoder.Path
	if transcoderPath == "" {
		transcoderPath = os.Getenv("TRANSCODER_PATH")
	}
	if transcoderPath == "" {
		transcoderPath = "ffmpeg"
	}

	if filepath.IsAbs(transcoderPath) {
		if _, err := os.Stat(transcoderPath); err != nil {
			log.Warn().Str("transcoderPath", transcoderPath).Msg("configured transcoder binary not found")
		}
	} else if _, err := exec.LookPath(transcoderPath); err != nil {
		log.Warn().Str("transcoderPath", transcoderPath).Msg("transcoder binary not found on PATH")
	}
}
