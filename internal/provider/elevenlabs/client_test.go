package elevenlabs

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/provider"
)

func newTestClient(url string) *Client {
	return NewClient(config.ElevenLabsConfig{APIKey: "xi-test", BaseURL: url, ModelID: "eleven_multilingual_v2"})
}

func writeSample(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestCloneVoice(t *testing.T) {
	var gotFiles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voices/add", r.URL.Path)
		assert.Equal(t, "xi-test", r.Header.Get("xi-api-key"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Maman", r.FormValue("name"))
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			require.NoError(t, err)
			b, _ := io.ReadAll(f)
			f.Close()
			gotFiles = append(gotFiles, string(b))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"voice_id": "voice-123"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	id, err := c.CloneVoice(t.Context(), "Maman", []string{
		writeSample(t, "a.m4a", "first"),
		writeSample(t, "b.m4a", "second"),
	})

	require.NoError(t, err)
	assert.Equal(t, "voice-123", id)
	assert.Equal(t, []string{"first", "second"}, gotFiles)
}

func TestCloneVoiceDownloadsURLSamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/samples/1.m4a":
			_, _ = w.Write([]byte("remote"))
		case "/voices/add":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Len(t, r.MultipartForm.File["files"], 1)
			_ = json.NewEncoder(w).Encode(map[string]string{"voice_id": "voice-remote"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).CloneVoice(t.Context(), "", []string{srv.URL + "/samples/1.m4a"})
	require.NoError(t, err)
	assert.Equal(t, "voice-remote", id)
}

func TestCloneVoiceErrors(t *testing.T) {
	t.Run("no samples", func(t *testing.T) {
		_, err := newTestClient("http://unused").CloneVoice(t.Context(), "x", nil)
		assert.ErrorIs(t, err, provider.ErrInvalidRequest)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := newTestClient("http://unused").CloneVoice(t.Context(), "x", []string{"/nonexistent/sample.m4a"})
		assert.ErrorIs(t, err, provider.ErrInvalidRequest)
	})

	t.Run("quota reached", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":{"status":"voice_limit_reached","message":"You have reached your maximum amount of custom voices"}}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).CloneVoice(t.Context(), "x", []string{writeSample(t, "a.m4a", "x")})
		require.ErrorIs(t, err, provider.ErrRejected)
		assert.Contains(t, err.Error(), "maximum amount of custom voices")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := newTestClient(url).CloneVoice(t.Context(), "x", []string{writeSample(t, "a.m4a", "x")})
		assert.ErrorIs(t, err, provider.ErrUnavailable)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).CloneVoice(t.Context(), "x", []string{writeSample(t, "a.m4a", "x")})
		assert.ErrorIs(t, err, provider.ErrUnavailable)
	})
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		var body ttsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Dors mon petit", body.Text)
		assert.Equal(t, "eleven_multilingual_v2", body.ModelID)
		assert.Equal(t, 0.5, body.VoiceSettings.Stability)
		assert.Equal(t, 0.75, body.VoiceSettings.SimilarityBoost)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3"))
	}))
	defer srv.Close()

	audio, err := newTestClient(srv.URL).Synthesize(t.Context(), "voice-1", "Dors mon petit")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3"), audio)
}

func TestSynthesizeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Synthesize(t.Context(), "voice-1", "text")
	require.ErrorIs(t, err, provider.ErrRejected)
	assert.Contains(t, err.Error(), "invalid api key")
}
