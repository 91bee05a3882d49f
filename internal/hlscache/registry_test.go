package hlscache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// badger runs background compaction goroutines that don't tear down
		// deterministically within a single test's lifetime.
		goleak.IgnoreTopFunction("github.com/dgraph-io/badger/v4.(*levelsController).runCompact.func1"),
		goleak.IgnoreTopFunction("github.com/dgraph-io/badger/v4.(*levelsController).runWorker"),
		goleak.IgnoreTopFunction("github.com/dgraph-io/ristretto/v2/z.(*ContentionRing).ring.func1"),
	)
}

func newTestRegistry(t *testing.T, maxJobs int) *JobRegistry {
	t.Helper()
	config := Config{
		TranscoderPath:    writeScript(t, "sleep 0.3\n"),
		MaxConcurrentJobs: maxJobs,
		JobTimeout:        5 * time.Second,
	}
	return NewJobRegistry(config, zerolog.Nop(), noopMetrics())
}

func TestJobRegistry_ReusesSameVariant(t *testing.T) {
	registry := newTestRegistry(t, 4)
	spec := SpawnSpec{ItemId: "item", Variant: Variant{BitrateKbps: 128}, WorkDir: t.TempDir()}

	h1 := registry.EnsureRunning(context.Background(), spec)
	h2 := registry.EnsureRunning(context.Background(), spec)

	assert.Same(t, h1, h2)
	assert.NoError(t, h1.Wait(context.Background()))
}

func TestJobRegistry_PreemptsOnVariantChange(t *testing.T) {
	registry := newTestRegistry(t, 4)
	spec1 := SpawnSpec{ItemId: "item", Variant: Variant{BitrateKbps: 128}, WorkDir: t.TempDir()}
	spec2 := SpawnSpec{ItemId: "item", Variant: Variant{BitrateKbps: 320}, WorkDir: t.TempDir()}

	h1 := registry.EnsureRunning(context.Background(), spec1)
	h2 := registry.EnsureRunning(context.Background(), spec2)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, Variant{BitrateKbps: 320}, h2.Variant)

	_ = h1.Wait(context.Background())
	_ = h2.Wait(context.Background())
}

func TestJobRegistry_EvictsOldestOverCap(t *testing.T) {
	registry := newTestRegistry(t, 1)

	h1 := registry.EnsureRunning(context.Background(), SpawnSpec{ItemId: "a", WorkDir: t.TempDir()})
	time.Sleep(5 * time.Millisecond)
	h2 := registry.EnsureRunning(context.Background(), SpawnSpec{ItemId: "b", WorkDir: t.TempDir()})

	assert.NotSame(t, h1, h2)

	_ = h1.Wait(context.Background())
	_ = h2.Wait(context.Background())

	assert.LessOrEqual(t, registry.Running(), 1)
}

func TestJobRegistry_RemovesSelfWhenDone(t *testing.T) {
	registry := newTestRegistry(t, 4)
	spec := SpawnSpec{ItemId: "item", WorkDir: t.TempDir()}

	h := registry.EnsureRunning(context.Background(), spec)
	require.NoError(t, h.Wait(context.Background()))

	assert.Eventually(t, func() bool { return registry.Running() == 0 }, time.Second, 10*time.Millisecond)
}

func TestJobRegistry_ShutdownCancelsInFlight(t *testing.T) {
	registry := newTestRegistry(t, 4)
	registry.config.TranscoderPath = writeScript(t, "sleep 5\n")
	h := registry.EnsureRunning(context.Background(), SpawnSpec{ItemId: "item", WorkDir: t.TempDir()})

	registry.Shutdown()

	err := h.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, h.Status())
}

func TestTranscoderJob_ProducesRealOutput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, `
mkdir -p "$1"
cat > "$1/`+playlistFileName+`" <<'EOF'
#EXTM3U
segment_000.ts
#EXT-X-ENDLIST
EOF
touch "$1/segment_000.ts"
printf 'x' > "$1/segment_000.ts"
exit 0
`)
	job := NewTranscoderJob(script, zerolog.Nop())
	err := job.Run(context.Background(), []string{dir}, time.Second)
	require.NoError(t, err)

	assert.True(t, isComplete(dir))
	_, statErr := os.Stat(filepath.Join(dir, "segment_000.ts"))
	assert.NoError(t, statErr)
}
