package hlscache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SpawnSpec is everything JobRegistry needs to start a transcode once it
// has decided to do so.
type SpawnSpec struct {
	ItemId  ItemId
	Variant Variant
	WorkDir string
	Argv    []string
}

// JobHandle is the record returned for a running (or just-finished)
// transcode, per spec.md's data model.
type JobHandle struct {
	ID        string
	ItemId    ItemId
	Variant   Variant
	WorkDir   string
	StartedAt time.Time

	job    *TranscoderJob
	cancel context.CancelFunc

	done chan struct{}
	err  error
}

// Status satisfies the jobSentinel interface ReadinessProbe consumes.
func (h *JobHandle) Status() JobStatus { return h.job.Status() }

// Wait blocks until the job reaches a terminal state, or ctx is done.
func (h *JobHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JobRegistry serializes and bounds concurrent transcodes: at most one
// active job per item, variant-mismatch preemption, and a global cap with
// oldest-victim eviction, per spec.md §4.4. The mutex is held only across
// map mutations, never across I/O — spawning and waiting both happen
// outside the lock, mirroring ManuGH-xg2g's vod.Manager.EnsureSpec
// unlock-before-start discipline.
type JobRegistry struct {
	logger zerolog.Logger
	config Config

	mu     sync.Mutex
	byItem map[ItemId]*JobHandle

	limiter *rate.Limiter
	metrics *metrics
}

func NewJobRegistry(config Config, logger zerolog.Logger, m *metrics) *JobRegistry {
	return &JobRegistry{
		logger:  logger.With().Str("submodule", "jobregistry").Logger(),
		config:  config,
		byItem:  map[ItemId]*JobHandle{},
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), config.MaxConcurrentJobs),
		metrics: m,
	}
}

// EnsureRunning returns the handle transcoding spec.ItemId+spec.Variant,
// reusing an in-flight job for the same variant, preempting a job for a
// different variant on the same item, and evicting the oldest job if the
// registry is already at MAX_CONCURRENT_JOBS.
func (r *JobRegistry) EnsureRunning(ctx context.Context, spec SpawnSpec) *JobHandle {
	r.mu.Lock()

	if existing, ok := r.byItem[spec.ItemId]; ok {
		if existing.Variant == spec.Variant {
			r.mu.Unlock()
			return existing
		}

		r.logger.Info().Str("item", spec.ItemId).Msg("preempting job for variant change")
		existing.cancel()
		delete(r.byItem, spec.ItemId)
		r.metrics.jobsCancelledTotal.Inc()
	}

	if r.config.MaxConcurrentJobs > 0 && len(r.byItem) >= r.config.MaxConcurrentJobs {
		victimID, victim := r.oldestLocked()
		if victim != nil {
			r.logger.Info().Str("item", victimID).Msg("evicting oldest job over concurrency cap")
			victim.cancel()
			delete(r.byItem, victimID)
			r.metrics.jobsCancelledTotal.Inc()
		}
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	handle := &JobHandle{
		ID:        uuid.NewString(),
		ItemId:    spec.ItemId,
		Variant:   spec.Variant,
		WorkDir:   spec.WorkDir,
		StartedAt: time.Now(),
		job:       NewTranscoderJob(r.config.TranscoderPath, r.logger),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.byItem[spec.ItemId] = handle
	r.mu.Unlock()

	r.metrics.jobsStartedTotal.Inc()
	r.metrics.jobsRunning.Inc()

	go r.run(jobCtx, handle, spec)

	return handle
}

func (r *JobRegistry) run(ctx context.Context, handle *JobHandle, spec SpawnSpec) {
	defer func() {
		r.mu.Lock()
		if current, ok := r.byItem[spec.ItemId]; ok && current == handle {
			delete(r.byItem, spec.ItemId)
		}
		r.mu.Unlock()

		r.metrics.jobsRunning.Dec()
		close(handle.done)
	}()

	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			// Cancelled while still queued behind the limiter: no process
			// was started, and the handle reports a clean cancellation.
			handle.job.setStatus(StatusCancelled)
			return
		}
		handle.err = err
		return
	}

	err := handle.job.Run(ctx, spec.Argv, r.config.JobTimeout)
	if err != nil && KindOf(err) != KindTranscoderUnavailable {
		r.metrics.jobsFailedTotal.Inc()
	}
	handle.err = err
}

// oldestLocked returns the item/handle with the smallest StartedAt. Caller
// must hold r.mu.
func (r *JobRegistry) oldestLocked() (ItemId, *JobHandle) {
	var oldestItem ItemId
	var oldest *JobHandle

	for item, handle := range r.byItem {
		if oldest == nil || handle.StartedAt.Before(oldest.StartedAt) {
			oldestItem = item
			oldest = handle
		}
	}

	return oldestItem, oldest
}

// Running reports the current number of active jobs (for tests/metrics).
func (r *JobRegistry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byItem)
}

// Shutdown cancels every in-flight job, used on process teardown.
func (r *JobRegistry) Shutdown() {
	r.mu.Lock()
	handles := make([]*JobHandle, 0, len(r.byItem))
	for _, h := range r.byItem {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		r.metrics.jobsCancelledTotal.Inc()
	}
}
