// Package http holds the chi handlers the core's Streamer is served
// through: the two routes spec.md §6 names, GET /hls.m3u8 and GET /hls.
package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kestrelfm/kestrel/internal/hlscache"
)

// HLSHandlers wires a Streamer into the chi routes the core talks through.
type HLSHandlers struct {
	logger   zerolog.Logger
	streamer *hlscache.Streamer
}

func NewHLSHandlers(streamer *hlscache.Streamer, logger zerolog.Logger) *HLSHandlers {
	return &HLSHandlers{
		logger:   logger.With().Str("module", "transport/hls").Logger(),
		streamer: streamer,
	}
}

// Playlist serves GET /hls.m3u8?id=...&bitRate=...&audioTrack=...
func (h *HLSHandlers) Playlist(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("id")
	if itemID == "" {
		http.Error(w, "400 missing id", http.StatusBadRequest)
		return
	}

	bitRate := 128
	if raw := r.URL.Query().Get("bitRate"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "400 invalid bitRate", http.StatusBadRequest)
			return
		}
		bitRate = parsed
	}

	variant := hlscache.Variant{
		BitrateKbps: bitRate,
		AudioTrack:  r.URL.Query().Get("audioTrack"),
	}

	text, err := h.streamer.GeneratePlaylist(r.Context(), itemID, variant, "")
	if err != nil {
		h.writeError(w, r, "generate playlist", err)
		return
	}

	noStoreHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = w.Write([]byte(text))
}

// Segment serves GET /hls?key=...
func (h *HLSHandlers) Segment(w http.ResponseWriter, r *http.Request) {
	// The still-encoded value is taken from the raw query string, so that
	// ParseSegmentRequest is the only decoding step.
	raw := ""
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		if value, ok := strings.CutPrefix(pair, "key="); ok {
			raw = value
			break
		}
	}
	if raw == "" {
		http.Error(w, "400 missing key", http.StatusBadRequest)
		return
	}

	relPath, err := hlscache.ParseSegmentRequest(raw)
	if err != nil {
		http.Error(w, "404 not found", http.StatusNotFound)
		return
	}

	path, mime, err := h.streamer.ServeSegment(relPath)
	if err != nil {
		h.writeError(w, r, "serve segment", err)
		return
	}

	w.Header().Set("Content-Type", mime)
	http.ServeFile(w, r, path)
}

func noStoreHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// writeError maps a core Kind onto the status codes spec.md §7 requires.
func (h *HLSHandlers) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := hlscache.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case hlscache.KindItemNotFound, hlscache.KindSourceMissing, hlscache.KindSegmentNotFound:
		status = http.StatusNotFound
	case hlscache.KindPathEscape:
		status = http.StatusForbidden
	case hlscache.KindTranscoderUnavailable, hlscache.KindReadinessTimeout, hlscache.KindTranscoderExitedWithoutOutput:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("hls request failed")
	} else {
		h.logger.Debug().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("hls request rejected")
	}

	http.Error(w, strconv.Itoa(status)+" "+http.StatusText(status), status)
}
