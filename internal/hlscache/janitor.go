package hlscache

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	janitorInterval = 60 * time.Second
	janitorBackoff  = 10 * time.Minute
)

// JanitorLoop periodically sweeps CacheStore for expired or vanished
// entries in the background, grounded on the teacher's hlsproxy cleanup
// goroutine (ticker + stop channel, joinable on shutdown).
type JanitorLoop struct {
	logger zerolog.Logger
	store  *CacheStore
	stop   chan struct{}
	done   chan struct{}
}

func NewJanitorLoop(store *CacheStore, logger zerolog.Logger) *JanitorLoop {
	return &JanitorLoop{
		logger: logger.With().Str("submodule", "janitor").Logger(),
		store:  store,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run blocks, sweeping every janitorInterval, until Stop is called. A
// sweep that panics is recovered and backs off for janitorBackoff; the
// next successful sweep restores the normal cadence.
func (j *JanitorLoop) Run() {
	defer close(j.done)

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.sweep(ticker)
		}
	}
}

func (j *JanitorLoop) sweep(ticker *time.Ticker) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error().Interface("panic", r).Msg("cache sweep panicked, backing off")
			ticker.Reset(janitorBackoff)
		}
	}()

	j.store.SweepExpired()
	ticker.Reset(janitorInterval)
}

// Stop signals Run to exit and blocks until it has.
func (j *JanitorLoop) Stop() {
	close(j.stop)
	<-j.done
}
