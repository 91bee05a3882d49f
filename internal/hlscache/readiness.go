package hlscache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ReadinessProbe watches a work directory's playlist file to decide when
// enough output exists to answer the client's first request, per
// spec.md §4.2. The polling/close(chan) gate is grounded on the teacher's
// pkg/hlsvod/manager.go ready-channel pattern.
type ReadinessProbe struct {
	logger zerolog.Logger
	config Config
}

func NewReadinessProbe(config Config, logger zerolog.Logger) *ReadinessProbe {
	return &ReadinessProbe{
		logger: logger.With().Str("submodule", "readiness").Logger(),
		config: config,
	}
}

// jobSentinel reports the lifecycle state of the job backing a WorkDir.
type jobSentinel interface {
	Status() JobStatus
}

// Await blocks until the WorkDir's playlist satisfies one of the readiness
// conditions, the job ends without ever satisfying them, or the overall
// timeout elapses.
func (p *ReadinessProbe) Await(workDir string, job jobSentinel) error {
	deadline := time.Now().Add(p.config.ReadinessTimeout)
	start := time.Now()
	playlistPath := filepath.Join(workDir, playlistFileName)

	ticker := time.NewTicker(p.config.ReadinessPoll)
	defer ticker.Stop()

	for {
		playlist, _ := readPlaylist(playlistPath)

		if ready(workDir, playlist, start, p.config.ReadinessFallback, p.config.MinSegments) {
			return nil
		}

		if job.Status().Terminal() {
			// Final look: the job ended before satisfying the fast-path
			// conditions above. Accept a single non-empty segment, else
			// report that the transcoder produced nothing usable.
			//
			// Terminal() (rather than the coarser Running()) is required here:
			// a job still queued behind the registry's rate limiter is neither
			// running nor terminated, and Running() can't tell the two apart —
			// treating "not running" as "finished" would spuriously report
			// TranscoderExitedWithoutOutput on a job that hasn't started yet.
			if playlist != nil && len(playlist.segments) >= 1 && segmentNonEmpty(workDir, playlist.segments[0]) {
				return nil
			}
			return newError(KindTranscoderExitedWithoutOutput, "readiness probe", nil)
		}

		if time.Now().After(deadline) {
			return newError(KindReadinessTimeout, "readiness probe", nil)
		}

		<-ticker.C
	}
}

// ready implements the three acceptance clauses of spec.md §4.2.
func ready(workDir string, playlist *parsedPlaylist, start time.Time, fallback time.Duration, minSegments int) bool {
	if playlist == nil || len(playlist.segments) == 0 {
		return false
	}

	// (b) at least one segment and the stream has already ended.
	if playlist.ended {
		return true
	}

	// (a) at least MIN_SEGMENTS and the last one is non-empty on disk.
	lastSegment := playlist.segments[len(playlist.segments)-1]
	if len(playlist.segments) >= minSegments && segmentNonEmpty(workDir, lastSegment) {
		return true
	}

	// Fallback: at least one segment and the fast path hasn't landed within
	// `fallback` — prefer a short start-up delay over a long one.
	if len(playlist.segments) >= 1 && time.Since(start) >= fallback {
		return true
	}

	return false
}

func segmentNonEmpty(workDir, segmentFile string) bool {
	info, err := os.Stat(filepath.Join(workDir, segmentFile))
	return err == nil && info.Size() > 0
}
