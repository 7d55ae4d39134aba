package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	SendJSONError(rec, "header row not found", http.StatusUnprocessableEntity)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "header row not found", body["error"])
}

func TestETag(t *testing.T) {
	etag, err := GenerateETag(map[string]int{"a": 1})
	require.NoError(t, err)
	again, err := GenerateETag(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, etag, again)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", `"other", "`+etag+`"`)
	rec := httptest.NewRecorder()
	assert.True(t, ETagMatches(rec, req, etag))
	assert.Equal(t, `"`+etag+`"`, rec.Header().Get("ETag"))

	assert.False(t, ETagMatches(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), etag))
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t, HashBytes([]byte("sbi"), []byte("data")), HashBytes([]byte("sbi"), []byte("data")))
	assert.NotEqual(t, HashBytes([]byte("sb"), []byte("idata")), HashBytes([]byte("sbi"), []byte("data")))
}
