package http

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelfm/kestrel/internal/hlscache"
)

type fakeLibrary struct {
	sources map[hlscache.ItemId]hlscache.MediaSource
}

func (f *fakeLibrary) Lookup(item hlscache.ItemId) (hlscache.MediaSource, bool) {
	s, ok := f.sources[item]
	return s, ok
}

// writeFakeTranscoder writes a POSIX sh script standing in for the real
// transcoder: it drops a complete playlist + one segment into the output
// directory derived from its last argv element, the way the real
// transcoder is invoked with the playlist path as its final argument.
func writeFakeTranscoder(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-transcoder.sh")
	script := "#!/bin/sh\n" +
		"last=\"\"\n" +
		"for a in \"$@\"; do last=\"$a\"; done\n" +
		"outdir=$(dirname \"$last\")\n" +
		"cat > \"$outdir/playlist.m3u8\" <<'EOF'\n" +
		"#EXTM3U\n" +
		"segment_000.ts\n" +
		"#EXT-X-ENDLIST\n" +
		"EOF\n" +
		"printf 'x' > \"$outdir/segment_000.ts\"\n" +
		"exit 0\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestHandlers(t *testing.T, library *fakeLibrary) *HLSHandlers {
	t.Helper()
	config := hlscache.Config{
		CacheRoot:         t.TempDir(),
		Enabled:           true,
		MaxEntries:        10,
		MaxAge:            time.Hour,
		TranscoderPath:    writeFakeTranscoder(t),
		MaxConcurrentJobs: 4,
		MinSegments:       1,
		ReadinessPoll:     5 * time.Millisecond,
		ReadinessTimeout:  time.Second,
		ReadinessFallback: 500 * time.Millisecond,
		JobTimeout:        5 * time.Second,
		SegmentDuration:   3 * time.Second,
	}

	logger := zerolog.Nop()
	metrics := hlscache.NewMetrics(prometheus.NewRegistry())

	store, err := hlscache.NewCacheStore(config, logger, metrics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := hlscache.NewJobRegistry(config, logger, metrics)
	readiness := hlscache.NewReadinessProbe(config, logger)
	streamer := hlscache.NewStreamer(config, store, registry, readiness, library, metrics, logger)

	return NewHLSHandlers(streamer, logger)
}

func TestHLSHandlers_Playlist_MissingID(t *testing.T) {
	h := newTestHandlers(t, &fakeLibrary{})

	req := httptest.NewRequest("GET", "/hls.m3u8", nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestHLSHandlers_Playlist_NotFound(t *testing.T) {
	h := newTestHandlers(t, &fakeLibrary{sources: map[hlscache.ItemId]hlscache.MediaSource{}})

	req := httptest.NewRequest("GET", "/hls.m3u8?id=missing", nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestHLSHandlers_Playlist_Success(t *testing.T) {
	mediaPath := filepath.Join(t.TempDir(), "track.flac")
	require.NoError(t, os.WriteFile(mediaPath, []byte("fake audio"), 0o644))

	library := &fakeLibrary{sources: map[hlscache.ItemId]hlscache.MediaSource{
		"item": {AbsolutePath: mediaPath},
	}}
	h := newTestHandlers(t, library)

	req := httptest.NewRequest("GET", "/hls.m3u8?id=item&bitRate=192", nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/hls?key=")
}

func TestHLSHandlers_Playlist_InvalidBitRate(t *testing.T) {
	h := newTestHandlers(t, &fakeLibrary{})

	req := httptest.NewRequest("GET", "/hls.m3u8?id=item&bitRate=notanumber", nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestHLSHandlers_Segment_MissingKey(t *testing.T) {
	h := newTestHandlers(t, &fakeLibrary{})

	req := httptest.NewRequest("GET", "/hls", nil)
	rec := httptest.NewRecorder()
	h.Segment(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestHLSHandlers_Segment_NotFound(t *testing.T) {
	h := newTestHandlers(t, &fakeLibrary{})

	req := httptest.NewRequest("GET", "/hls?key=missing%2Fsegment_000.ts", nil)
	rec := httptest.NewRecorder()
	h.Segment(rec, req)

	assert.Equal(t, 404, rec.Code)
}
