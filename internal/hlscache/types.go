package hlscache

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ItemId is an opaque library identifier, path-like but treated as an
// ordinary string (e.g. "/Artist/Album/01.flac").
type ItemId = string

// Variant selects a bitrate + audio track combination for a transcode.
// BitrateKbps == 0 means "default codec default".
type Variant struct {
	BitrateKbps int
	AudioTrack  string
}

// key returns the canonical "<bitrateOrDefault>_<trackOrDefault>" fragment
// used inside a CacheKey and as the on-disk variant directory name.
func (v Variant) key() string {
	bitrate := "default"
	if v.BitrateKbps > 0 {
		bitrate = strconv.Itoa(v.BitrateKbps)
	}

	track := v.AudioTrack
	if track == "" {
		track = "default"
	}

	return bitrate + "_" + track
}

// CacheKey is itemId + "/" + variantKey; it doubles as the on-disk subpath
// under cacheRoot.
type CacheKey string

func newCacheKey(item ItemId, variant Variant) CacheKey {
	return CacheKey(item + "/" + variant.key())
}

func (k CacheKey) String() string { return string(k) }

// EncodedPrefix returns the RFC 3986 percent-encoded form of key+"/", the
// exact query value the playlist rewrite rule embeds, per spec.
func (k CacheKey) EncodedPrefix() string {
	return strings.ReplaceAll(url.QueryEscape(string(k)+"/"), "+", "%20")
}

// MediaSource is what the library index resolves an ItemId to.
type MediaSource struct {
	AbsolutePath string

	IsCueTrack        bool
	CueStartSeconds   float64
	CueDurationSeconds *float64 // nil when unknown/unbounded
}

// JobStatus is the terminal-or-not state of a TranscoderJob.
type JobStatus int

const (
	StatusSpawning JobStatus = iota
	StatusRunning
	StatusCompleted
	StatusCancelled
	StatusFailed
	StatusTimedOut
)

func (s JobStatus) String() string {
	switch s {
	case StatusSpawning:
		return "spawning"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

func (s JobStatus) Terminal() bool {
	return s != StatusSpawning && s != StatusRunning
}

// CacheEntry is the in-memory record CacheStore keeps per CacheKey.
type CacheEntry struct {
	Key            CacheKey
	WorkDir        string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Complete       bool
}

// segmentName returns the zero-padded 3-digit segment file name for index i.
func segmentName(i int) string {
	return fmt.Sprintf("segment_%03d.ts", i)
}

const playlistFileName = "playlist.m3u8"

// hlsHeaderMagic and hlsEndMarker are the two playlist lines the
// completeness check requires, per spec.md §4.1 and §4.2.
const (
	hlsHeaderMagic = "#EXTM3U"
	hlsEndMarker   = "#EXT-X-ENDLIST"
)
