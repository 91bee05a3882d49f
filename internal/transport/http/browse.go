package http

import (
	"encoding/json"
	"net/http"
)

// BrowseHandlers is the minimal Subsonic-shaped surface: just enough for a
// Subsonic client to discover the server and start requesting
// /hls.m3u8?id=... directly. It is not a faithful Subsonic implementation.
type BrowseHandlers struct{}

func NewBrowseHandlers() *BrowseHandlers { return &BrowseHandlers{} }

type subsonicEnvelope struct {
	SubsonicResponse subsonicBody `json:"subsonic-response"`
}

type subsonicBody struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	Type          string          `json:"type"`
	ServerVersion string          `json:"serverVersion"`
	OpenSubsonic  bool            `json:"openSubsonic"`
	MusicFolders  *musicFoldersDoc `json:"musicFolders,omitempty"`
}

type musicFoldersDoc struct {
	MusicFolder []musicFolder `json:"musicFolder"`
}

type musicFolder struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

const subsonicAPIVersion = "1.16.1"

// Ping serves GET /rest/ping.
func (h *BrowseHandlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeSubsonic(w, subsonicBody{
		Status:        "ok",
		Version:       subsonicAPIVersion,
		Type:          "kestrel",
		ServerVersion: "1.0.0",
	})
}

// GetMusicFolders serves GET /rest/getMusicFolders, reporting a single
// folder since kestrel doesn't model multi-root libraries.
func (h *BrowseHandlers) GetMusicFolders(w http.ResponseWriter, r *http.Request) {
	writeSubsonic(w, subsonicBody{
		Status:        "ok",
		Version:       subsonicAPIVersion,
		Type:          "kestrel",
		ServerVersion: "1.0.0",
		MusicFolders: &musicFoldersDoc{
			MusicFolder: []musicFolder{{Id: 1, Name: "Library"}},
		},
	})
}

func writeSubsonic(w http.ResponseWriter, body subsonicBody) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(subsonicEnvelope{SubsonicResponse: body})
}
