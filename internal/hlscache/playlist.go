package hlscache

import (
	"bufio"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// parsedPlaylist is the subset of an HLS VOD playlist ReadinessProbe and the
// completeness check care about: which .ts files it references, in order,
// and whether the stream-end marker is present.
type parsedPlaylist struct {
	hasHeader bool
	segments  []string
	ended     bool
}

func readPlaylist(path string) (*parsedPlaylist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := &parsedPlaylist{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == hlsHeaderMagic:
			p.hasHeader = true
		case line == hlsEndMarker:
			p.ended = true
		case strings.HasSuffix(line, ".ts") && !strings.HasPrefix(line, "#"):
			p.segments = append(p.segments, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return p, nil
}

// isComplete implements the completeness check of spec.md §4.1: the
// playlist carries the HLS header magic and the stream-end marker, and
// every referenced .ts file resolves to a non-empty file inside workDir.
func isComplete(workDir string) bool {
	playlist, err := readPlaylist(filepath.Join(workDir, playlistFileName))
	if err != nil {
		return false
	}
	if !playlist.hasHeader || !playlist.ended || len(playlist.segments) == 0 {
		return false
	}

	for _, seg := range playlist.segments {
		info, err := os.Stat(filepath.Join(workDir, seg))
		if err != nil || info.Size() == 0 {
			return false
		}
	}

	return true
}

// rewritePlaylist implements the normative rewrite rule of spec.md §4.5:
// every occurrence of the literal prefix "segment_" is replaced with
// "<basePath>?key=<percent-encoded(cacheKey + "/")>segment_".
//
// basePath is a scheme-less, host-less, root-relative path (e.g.
// "/hls" when pathBase is empty, or "/api/hls" when pathBase is "/api").
func rewritePlaylist(playlistText string, key CacheKey, pathBase string) string {
	basePath := strings.TrimSuffix(pathBase, "/") + "/hls"
	prefix := basePath + "?key=" + key.EncodedPrefix() + "segment_"
	return strings.ReplaceAll(playlistText, "segment_", prefix)
}

// mimeTypeFor returns the MIME type for a served HLS resource, per
// spec.md §4.5.
func mimeTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".ts"):
		return "video/MP2T"
	case strings.HasSuffix(name, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	default:
		return "application/octet-stream"
	}
}

// unescapeKey undoes the percent-encoding rewritePlaylist applied.
func unescapeKey(raw string) (string, error) {
	return url.QueryUnescape(raw)
}
