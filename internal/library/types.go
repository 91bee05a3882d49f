package library

import "github.com/kestrelfm/kestrel/internal/hlscache"

// ItemId and MediaSource are re-exported from hlscache so callers never
// need to import both packages just to build an Index.
type ItemId = hlscache.ItemId
type MediaSource = hlscache.MediaSource

// Index resolves an opaque library identifier to playable media, per
// spec.md's library index interface. It intentionally knows nothing about
// scanning policy, tag extraction or cue-sheet parsing — those are out of
// scope; an Index only answers Lookup.
type Index interface {
	Lookup(item ItemId) (MediaSource, bool)
}

// audioExtensions bounds what the filesystem scan considers playable.
// Non-goals exclude library scanning *policy* (e.g. what counts as a valid
// track beyond extension, metadata-driven inclusion rules); this is the
// minimal extension allowlist needed to exercise the rest of the system.
var audioExtensions = map[string]bool{
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
}
