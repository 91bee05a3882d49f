package hlscache

import (
	"os"
	"time"
)

// Config carries every tunable spec.md §6 names for the core.
type Config struct {
	CacheRoot string // directory containing WorkDirs
	Enabled   bool   // if false, cache lookups/storage are skipped entirely

	MaxEntries     int           // cache.maxEntries
	MaxAge         time.Duration // cache.maxAgeMinutes

	TranscoderPath string // ffmpeg-equivalent binary; TRANSCODER_PATH env overrides

	MaxConcurrentJobs int // concurrency.maxJobs

	MinSegments     int           // readiness.minSegments
	ReadinessPoll   time.Duration // readiness.pollMs
	ReadinessTimeout time.Duration // readiness.timeoutMs
	ReadinessFallback time.Duration // readiness.fallbackMs

	JobTimeout time.Duration // job.timeoutMinutes

	SegmentDuration time.Duration // fixed 3s HLS segment target, per spec.md §4.3
}

// WithDefaultValues fills in the zero-valued fields with spec.md's stated
// defaults, mirroring the teacher's Config.withDefaultValues pattern.
func (c Config) WithDefaultValues() Config {
	if c.CacheRoot == "" {
		wd, _ := os.Getwd()
		c.CacheRoot = wd + "/hls_segments"
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 100
	}
	if c.MaxAge == 0 {
		c.MaxAge = 60 * time.Minute
	}
	if c.TranscoderPath == "" {
		if env := os.Getenv("TRANSCODER_PATH"); env != "" {
			c.TranscoderPath = env
		} else {
			c.TranscoderPath = "ffmpeg"
		}
	}
	if c.MaxConcurrentJobs == 0 {
		c.MaxConcurrentJobs = 4
	}
	if c.MinSegments == 0 {
		c.MinSegments = 2
	}
	if c.ReadinessPoll == 0 {
		c.ReadinessPoll = 200 * time.Millisecond
	}
	if c.ReadinessTimeout == 0 {
		c.ReadinessTimeout = 30 * time.Second
	}
	if c.ReadinessFallback == 0 {
		c.ReadinessFallback = 2 * time.Second
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 10 * time.Minute
	}
	if c.SegmentDuration == 0 {
		c.SegmentDuration = 3 * time.Second
	}
	return c
}
