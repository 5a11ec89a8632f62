package storage

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodoapp/lullaby-backend/internal/config"
)

var (
	_ Storage = (*SupabaseStorage)(nil)
	_ Storage = (*MinioStorage)(nil)
	_ Storage = (*Memory)(nil)
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "voices/p1/source-2", VoiceSamplePath("p1", 2))
	assert.Equal(t, "lullabies/l1", LullabyPath("l1"))
}

func TestSupabaseUploadUpserts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/storage/v1/object/dodo-audio/lullabies/l1", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.Header.Get("x-upsert"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "ID3", string(b))
		_, _ = w.Write([]byte(`{"Key":"dodo-audio/lullabies/l1"}`))
	}))
	defer srv.Close()

	s := NewSupabaseStorage(srv.URL, "key", "dodo-audio")
	require.NoError(t, s.Upload(t.Context(), "lullabies/l1", strings.NewReader("ID3"), "audio/mpeg"))
}

func TestSupabaseUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Bucket not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSupabaseStorage(srv.URL, "key", "missing").Upload(t.Context(), "x", strings.NewReader("a"), "audio/mpeg")
	require.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "Bucket not found")
}

func TestSupabaseSignedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/sign/dodo-audio/lullabies/l1", r.URL.Path)
		var body signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(7*24*3600), body.ExpiresIn)
		_, _ = w.Write([]byte(`{"signedURL":"/object/sign/dodo-audio/lullabies/l1?token=abc"}`))
	}))
	defer srv.Close()

	s := NewSupabaseStorage(srv.URL, "key", "dodo-audio")
	u, err := s.SignedURL(t.Context(), "lullabies/l1", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/storage/v1/object/sign/dodo-audio/lullabies/l1?token=abc", u)
}

func TestResolveURLFallsBackToPublic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signing disabled", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSupabaseStorage(srv.URL, "key", "dodo-audio")
	u, signed := ResolveURL(t.Context(), s, "lullabies/l1", time.Hour)
	assert.False(t, signed)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/dodo-audio/lullabies/l1", u)
}

func TestSupabaseDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewSupabaseStorage(srv.URL, "key", "b").Download(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMinioURLs(t *testing.T) {
	m, err := NewMinioStorage(config.StorageConfig{
		MinioEndpoint:  "localhost:9000",
		MinioAccessKey: "ak",
		MinioSecretKey: "sk",
		Bucket:         "dodo-audio",
		MinioRegion:    "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/dodo-audio/lullabies/l1", m.PublicURL("lullabies/l1"))

	// Presigning is computed locally, no server round trip.
	u, err := m.SignedURL(t.Context(), "lullabies/l1", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "/dodo-audio/lullabies/l1")

	m.publicBase = "https://cdn.dodo.app/"
	assert.Equal(t, "https://cdn.dodo.app/lullabies/l1", m.PublicURL("lullabies/l1"))
}

func TestMemory(t *testing.T) {
	m := NewMemory("mem://blobs")
	ctx := t.Context()

	require.NoError(t, m.Upload(ctx, "a", strings.NewReader("one"), "audio/mpeg"))
	require.NoError(t, m.Upload(ctx, "a", strings.NewReader("two"), "audio/mpeg"))
	data, ct, ok := m.Object("a")
	require.True(t, ok)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, "audio/mpeg", ct)

	u, signed := ResolveURL(ctx, m, "a", time.Minute)
	assert.True(t, signed)
	assert.Equal(t, "mem://blobs/signed/a?ttl=60", u)

	m.Signing = false
	u, signed = ResolveURL(ctx, m, "a", time.Minute)
	assert.False(t, signed)
	assert.Equal(t, "mem://blobs/public/a", u)

	m.SetFailUploads(true)
	assert.ErrorIs(t, m.Upload(ctx, "b", strings.NewReader("x"), "audio/mpeg"), ErrStorage)

	require.NoError(t, m.Delete(ctx, "a"))
	_, err := m.Download(ctx, "a")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
