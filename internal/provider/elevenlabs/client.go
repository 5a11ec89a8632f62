// Package elevenlabs is the gateway to the ElevenLabs voice API: instant voice
// cloning and text to speech with a cloned voice.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/provider"
)

const name = "elevenlabs"

type Client struct {
	baseURL     string
	apiKey      string
	modelID     string
	cloneClient *http.Client
	ttsClient   *http.Client
	fetchClient *http.Client
}

func NewClient(cfg config.ElevenLabsConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		modelID:     cfg.ModelID,
		cloneClient: &http.Client{Timeout: 2 * time.Minute},
		ttsClient:   &http.Client{Timeout: 60 * time.Second},
		fetchClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type addVoiceResponse struct {
	VoiceID string `json:"voice_id"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// CloneVoice uploads the samples found at sources (local paths or http(s)
// URLs) and returns the new voice id.
func (c *Client) CloneVoice(ctx context.Context, voiceName string, sources []string) (string, error) {
	if len(sources) == 0 {
		return "", provider.Invalid(name, "at least one sample is required")
	}
	if voiceName == "" {
		voiceName = "DODO Voice"
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("name", voiceName); err != nil {
		return "", fmt.Errorf("write name field: %w", err)
	}
	for i, src := range sources {
		data, err := c.readSample(ctx, src)
		if err != nil {
			return "", err
		}
		part, err := mw.CreateFormFile("files", fmt.Sprintf("sample-%d%s", i+1, sampleExt(src)))
		if err != nil {
			return "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return "", fmt.Errorf("write sample: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/voices/add", body)
	if err != nil {
		return "", fmt.Errorf("create clone request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	slog.Info("cloning voice", "provider", name, "samples", len(sources))
	resp, err := c.cloneClient.Do(req)
	if err != nil {
		return "", provider.Unavailable(name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var out addVoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", provider.Rejected(name, resp.StatusCode, "decode clone response: "+err.Error())
	}
	if out.VoiceID == "" {
		return "", provider.Rejected(name, resp.StatusCode, "no voice_id in response")
	}
	return out.VoiceID, nil
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize renders text with the given voice and returns MP3 bytes.
func (c *Client) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	if voiceID == "" || strings.TrimSpace(text) == "" {
		return nil, provider.Invalid(name, "voice id and text are required")
	}

	payload, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       c.modelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/text-to-speech/"+voiceID, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.ttsClient.Do(req)
	if err != nil {
		return nil, provider.Unavailable(name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Unavailable(name, err)
	}
	if len(audio) == 0 {
		return nil, provider.Rejected(name, resp.StatusCode, "empty audio")
	}
	return audio, nil
}

func (c *Client) readSample(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, provider.Invalid(name, "bad sample url: "+err.Error())
		}
		resp, err := c.fetchClient.Do(req)
		if err != nil {
			return nil, provider.Unavailable(name, fmt.Errorf("download sample: %w", err))
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, provider.Invalid(name, fmt.Sprintf("sample %s not retrievable (status %d)", src, resp.StatusCode))
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, provider.Unavailable(name, fmt.Errorf("read sample: %w", err))
		}
		return data, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, provider.Invalid(name, "sample not found: "+src)
		}
		return nil, fmt.Errorf("read sample %s: %w", src, err)
	}
	return data, nil
}

// statusError turns a non-2xx answer into a provider error, keeping
// detail.message (or the raw detail) when the body carries one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))

	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && len(eb.Detail) > 0 {
		var detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		}
		var s string
		switch {
		case json.Unmarshal(eb.Detail, &detail) == nil && detail.Message != "":
			msg = detail.Message
			if detail.Status != "" {
				msg = detail.Status + ": " + msg
			}
		case json.Unmarshal(eb.Detail, &s) == nil:
			msg = s
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return provider.FromStatus(name, resp.StatusCode, msg)
}

func sampleExt(src string) string {
	ext := filepath.Ext(src)
	if ext == "" || len(ext) > 5 || strings.ContainsAny(ext, "?&=/") {
		return ".m4a"
	}
	return ext
}
