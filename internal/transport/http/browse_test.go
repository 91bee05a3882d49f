package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowseHandlers_Ping(t *testing.T) {
	h := NewBrowseHandlers()

	req := httptest.NewRequest("GET", "/rest/ping", nil)
	rec := httptest.NewRecorder()
	h.Ping(rec, req)

	require.Equal(t, 200, rec.Code)

	var envelope subsonicEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ok", envelope.SubsonicResponse.Status)
	assert.Nil(t, envelope.SubsonicResponse.MusicFolders)
}

func TestBrowseHandlers_GetMusicFolders(t *testing.T) {
	h := NewBrowseHandlers()

	req := httptest.NewRequest("GET", "/rest/getMusicFolders", nil)
	rec := httptest.NewRecorder()
	h.GetMusicFolders(rec, req)

	require.Equal(t, 200, rec.Code)

	var envelope subsonicEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.SubsonicResponse.MusicFolders)
	require.Len(t, envelope.SubsonicResponse.MusicFolders.MusicFolder, 1)
	assert.Equal(t, "Library", envelope.SubsonicResponse.MusicFolders.MusicFolder[0].Name)
}
