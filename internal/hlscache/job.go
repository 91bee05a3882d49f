package hlscache

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxStderrTail bounds how much of the transcoder's stderr is retained for
// diagnostics, per spec.md §4.3.
const maxStderrTail = 4 * 1024

// ArgvInput describes the source media a TranscoderJob reads from.
type ArgvInput struct {
	MediaPath  string
	IsCueTrack bool
	CueStart   float64
	CueDuration *float64
}

// ArgvOutput describes the HLS output a TranscoderJob is asked to produce.
type ArgvOutput struct {
	BitrateKbps   int // 0 means codec default
	OutputDir     string
	SegmentTarget time.Duration
}

// BuildArgv constructs the ffmpeg-equivalent argument list per spec.md §4.3:
// optional pre-input seek/duration bound for cue tracks, audio-only AAC
// output at the requested bitrate (or codec default), 3s HLS segments with
// an unbounded list, zero-padded sequential naming, errors-only logging,
// and overwrite.
func BuildArgv(in ArgvInput, out ArgvOutput) []string {
	args := []string{"-y", "-v", "error"}

	if in.IsCueTrack {
		args = append(args, "-ss", formatSeconds(in.CueStart))
		if in.CueDuration != nil {
			args = append(args, "-t", formatSeconds(*in.CueDuration))
		}
	}

	args = append(args, "-i", in.MediaPath)

	// video suppressed: audio-only HLS output.
	args = append(args, "-vn", "-acodec", "aac")
	if out.BitrateKbps > 0 {
		args = append(args, "-b:a", strconv.Itoa(out.BitrateKbps)+"k")
	}

	segLen := out.SegmentTarget.Seconds()
	if segLen <= 0 {
		segLen = 3
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", formatSeconds(segLen),
		"-hls_list_size", "0",
		"-hls_segment_filename", out.OutputDir+"/segment_%03d.ts",
		"-start_number", "0",
		out.OutputDir+"/"+playlistFileName,
	)

	return args
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

// TranscoderJob wraps exactly one transcoder subprocess: its lifecycle,
// stdout/stderr drains, and cancellation under a combined external-cancel +
// hard-timeout deadline. It does not interpret output files — file
// semantics live in ReadinessProbe and CacheStore.
type TranscoderJob struct {
	logger zerolog.Logger
	binary string

	mu      sync.Mutex
	running bool
	status  JobStatus

	stderrTail *tailBuffer
}

func NewTranscoderJob(binary string, logger zerolog.Logger) *TranscoderJob {
	return &TranscoderJob{
		logger:     logger.With().Str("submodule", "transcoderjob").Logger(),
		binary:     binary,
		status:     StatusSpawning,
		stderrTail: newTailBuffer(maxStderrTail),
	}
}

// Running reports whether the subprocess is currently executing.
func (j *TranscoderJob) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *TranscoderJob) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *TranscoderJob) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// Run spawns the subprocess and blocks until it exits, is cancelled via
// cancelSignal, or exceeds timeout. Stderr is drained continuously into a
// bounded tail so a full pipe buffer can never deadlock a long-running
// transcode, per spec.md §9.
func (j *TranscoderJob) Run(ctx context.Context, argv []string, timeout time.Duration) (exitErr error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, j.binary, argv...)
	cmd.Stderr = j.stderrTail
	cmd.Stdout = nil

	if err := cmd.Start(); err != nil {
		if ctx.Err() == context.Canceled {
			j.setStatus(StatusCancelled)
			return nil
		}
		j.setStatus(StatusFailed)
		return newError(KindTranscoderUnavailable, "start transcoder", err)
	}

	j.mu.Lock()
	j.running = true
	j.status = StatusRunning
	j.mu.Unlock()

	err := cmd.Wait()

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		j.setStatus(StatusTimedOut)
		return ErrTimeoutElapsed
	case ctx.Err() == context.Canceled:
		j.setStatus(StatusCancelled)
		return nil
	case err != nil:
		j.setStatus(StatusFailed)
		return err
	default:
		j.setStatus(StatusCompleted)
		return nil
	}
}

// StderrTail returns the retained (bounded) diagnostic output.
func (j *TranscoderJob) StderrTail() string {
	return j.stderrTail.String()
}

// tailBuffer retains only the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Write(p)
	if excess := t.buf.Len() - t.limit; excess > 0 {
		t.buf.Next(excess)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
