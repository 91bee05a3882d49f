package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kestrelfm/kestrel/internal/hlscache"
)

// Root carries every kestrel-specific setting, filled in by Init/Set the
// way the teacher's own Server config works: cobra registers flags and
// binds them into viper, Set unmarshals the resolved values afterward so
// config file, env var and flag precedence all go through one path.
type Root struct {
	WorkingDir string `mapstructure:"workingDir"`
	LibraryDir string `mapstructure:"libraryDir"`

	Cache       CacheConfig       `mapstructure:"cache"`
	Transcoder  TranscoderConfig  `mapstructure:"transcoder"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Readiness   ReadinessConfig   `mapstructure:"readiness"`
	Job         JobConfig         `mapstructure:"job"`
}

type CacheConfig struct {
	Root          string `mapstructure:"root"`
	Enabled       bool   `mapstructure:"enabled"`
	MaxEntries    int    `mapstructure:"maxEntries"`
	MaxAgeMinutes int    `mapstructure:"maxAgeMinutes"`
}

type TranscoderConfig struct {
	Path string `mapstructure:"path"`
}

type ConcurrencyConfig struct {
	MaxJobs int `mapstructure:"maxJobs"`
}

type ReadinessConfig struct {
	MinSegments int `mapstructure:"minSegments"`
	TimeoutMs   int `mapstructure:"timeoutMs"`
	PollMs      int `mapstructure:"pollMs"`
	FallbackMs  int `mapstructure:"fallbackMs"`
}

type JobConfig struct {
	TimeoutMinutes int `mapstructure:"timeoutMinutes"`
}

func (Root) Init(cmd *cobra.Command) error {
	flags := []struct {
		key, flag, value, usage string
	}{
		{"workingDir", "working-dir", "", "parent directory for cache and library index (default: process directory)"},
		{"libraryDir", "library-dir", "", "root directory of the music library to index"},
		{"cache.root", "cache-root", "", "directory containing transcode work directories (default: <workingDir>/hls_segments)"},
		{"transcoder.path", "transcoder-path", "", "ffmpeg-equivalent executable (env TRANSCODER_PATH overrides)"},
	}
	for _, f := range flags {
		cmd.PersistentFlags().String(f.flag, f.value, f.usage)
		if err := viper.BindPFlag(f.key, cmd.PersistentFlags().Lookup(f.flag)); err != nil {
			return err
		}
	}

	cmd.PersistentFlags().Bool("cache-enabled", true, "enable the on-disk transcode cache")
	if err := viper.BindPFlag("cache.enabled", cmd.PersistentFlags().Lookup("cache-enabled")); err != nil {
		return err
	}

	intFlags := []struct {
		key, flag string
		value     int
		usage     string
	}{
		{"cache.maxEntries", "cache-max-entries", 100, "FIFO cache cap"},
		{"cache.maxAgeMinutes", "cache-max-age-minutes", 60, "cache entry TTL in minutes"},
		{"concurrency.maxJobs", "max-concurrent-jobs", 4, "max simultaneous transcoder subprocesses"},
		{"readiness.minSegments", "readiness-min-segments", 2, "segments required before the fast readiness path accepts"},
		{"readiness.timeoutMs", "readiness-timeout-ms", 30_000, "hard readiness timeout in milliseconds"},
		{"readiness.pollMs", "readiness-poll-ms", 200, "readiness poll interval in milliseconds"},
		{"readiness.fallbackMs", "readiness-fallback-ms", 2_000, "readiness fallback delay in milliseconds"},
		{"job.timeoutMinutes", "job-timeout-minutes", 10, "hard per-job timeout in minutes"},
	}
	for _, f := range intFlags {
		cmd.PersistentFlags().Int(f.flag, f.value, f.usage)
		if err := viper.BindPFlag(f.key, cmd.PersistentFlags().Lookup(f.flag)); err != nil {
			return err
		}
	}

	return nil
}

func (r *Root) Set() {
	if err := viper.Unmarshal(r); err != nil {
		panic(err)
	}

	if r.WorkingDir == "" {
		cwd, _ := os.Getwd()
		r.WorkingDir = cwd
	}

	if r.Cache.Root == "" {
		r.Cache.Root = filepath.Join(r.WorkingDir, "hls_segments")
	}
}

// HLSCache translates the unmarshalled viper config into the core's own
// Config shape, applying spec.md's stated defaults for anything left zero.
func (r *Root) HLSCache() hlscache.Config {
	return hlscache.Config{
		CacheRoot:         r.Cache.Root,
		Enabled:           r.Cache.Enabled,
		MaxEntries:        r.Cache.MaxEntries,
		MaxAge:            time.Duration(r.Cache.MaxAgeMinutes) * time.Minute,
		TranscoderPath:    r.Transcoder.Path,
		MaxConcurrentJobs: r.Concurrency.MaxJobs,
		MinSegments:       r.Readiness.MinSegments,
		ReadinessPoll:     time.Duration(r.Readiness.PollMs) * time.Millisecond,
		ReadinessTimeout:  time.Duration(r.Readiness.TimeoutMs) * time.Millisecond,
		ReadinessFallback: time.Duration(r.Readiness.FallbackMs) * time.Millisecond,
		JobTimeout:        time.Duration(r.Job.TimeoutMinutes) * time.Minute,
	}.WithDefaultValues()
}

// IndexSnapshotPath is where the library index's warm-start snapshot lives.
func (r *Root) IndexSnapshotPath() string {
	return filepath.Join(r.WorkingDir, "index.json")
}
