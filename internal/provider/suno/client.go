// Package suno is the gateway to the Suno music API: direct generation with a
// persona, upload-and-cover of a vocal track, job polling and result download.
package suno

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
	"net/url"
	"strings"
	"time"

	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/models"
	"github.com/dodoapp/lullaby-backend/internal/poller"
	"github.com/dodoapp/lullaby-backend/internal/provider"
)

const (
	name = "suno"

	maxPromptLen = 5000
	maxStyleLen  = 1000
	maxTitleLen  = 100

	// MaxDurationMinutes is the longest track the configured models produce.
	MaxDurationMinutes = 8
)

// errPathNotFound tells the candidate loop to move on to the next path.
var errPathNotFound = errors.New("path not found")

type Client struct {
	baseURL     string
	apiKey      string
	model       string
	callbackURL string
	statusPaths []string
	coverPaths  []string

	submitClient   *http.Client
	coverClient    *http.Client
	pollClient     *http.Client
	downloadClient *http.Client
}

func NewClient(cfg config.SunoConfig) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		callbackURL:    cfg.CallbackURL,
		statusPaths:    cfg.StatusPaths,
		coverPaths:     cfg.CoverPaths,
		submitClient:   &http.Client{Timeout: 30 * time.Second},
		coverClient:    &http.Client{Timeout: 60 * time.Second},
		pollClient:     &http.Client{Timeout: 10 * time.Second},
		downloadClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type GenerationRequest struct {
	Prompt          string
	Style           string
	DurationMinutes float64
	PersonaID       string
}

type generatePayload struct {
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	PersonaID    string `json:"personaId,omitempty"`
}

// SubmitGeneration starts a custom-mode generation and returns the task id.
func (c *Client) SubmitGeneration(ctx context.Context, req GenerationRequest) (string, error) {
	if err := validate(req.Style, req.DurationMinutes); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", provider.Invalid(name, "prompt is required")
	}

	payload, err := json.Marshal(generatePayload{
		CustomMode:   true,
		Instrumental: false,
		Model:        c.model,
		CallBackURL:  c.callbackURL,
		Prompt:       truncate(req.Prompt, maxPromptLen),
		Style:        truncate(styleTags(req.Style), maxStyleLen),
		Title:        Title(req.Style),
		PersonaID:    req.PersonaID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(c.submitClient, httpReq)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", provider.FromStatus(name, status, errorMessage(body))
	}
	return taskID(body, status)
}

type CoverRequest struct {
	Vocals []byte
	Style  string
	Prompt string
}

// SubmitCover uploads a vocal track to the first cover endpoint that exists
// and returns the task id.
func (c *Client) SubmitCover(ctx context.Context, req CoverRequest) (string, error) {
	if !models.ValidStyle(req.Style) {
		return "", provider.Invalid(name, "unknown style "+req.Style)
	}
	if len(req.Vocals) == 0 {
		return "", provider.Invalid(name, "vocal track is empty")
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf("A %s lullaby with these vocals", models.StyleLabel(req.Style))
	}

	return tryPaths(c.coverPaths, func(path string) (string, error) {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		part, err := mw.CreateFormFile("audio", "vocals.mp3")
		if err != nil {
			return "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(req.Vocals); err != nil {
			return "", fmt.Errorf("write vocals: %w", err)
		}
		fields := map[string]string{
			"style":       truncate(styleTags(req.Style), maxStyleLen),
			"prompt":      truncate(prompt, maxPromptLen),
			"title":       Title(req.Style),
			"model":       c.model,
			"callBackUrl": c.callbackURL,
		}
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				return "", fmt.Errorf("write field %s: %w", k, err)
			}
		}
		if err := mw.Close(); err != nil {
			return "", fmt.Errorf("close multipart: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
		if err != nil {
			return "", fmt.Errorf("create cover request: %w", err)
		}
		httpReq.Header.Set("Content-Type", mw.FormDataContentType())

		respBody, status, err := c.do(c.coverClient, httpReq)
		if err != nil {
			return "", err
		}
		if status == http.StatusNotFound {
			return "", errPathNotFound
		}
		if status >= 300 {
			return "", provider.FromStatus(name, status, errorMessage(respBody))
		}
		return taskID(respBody, status)
	})
}

// PollJob reads the job status from the first status path that exists.
func (c *Client) PollJob(ctx context.Context, jobID string) (poller.Check, error) {
	if jobID == "" {
		return poller.Check{}, provider.Invalid(name, "job id is required")
	}
	return tryPaths(c.statusPaths, func(path string) (poller.Check, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+expandPath(path, jobID), nil)
		if err != nil {
			return poller.Check{}, fmt.Errorf("create status request: %w", err)
		}
		body, status, err := c.do(c.pollClient, req)
		if err != nil {
			return poller.Check{}, err
		}
		if status == http.StatusNotFound {
			return poller.Check{}, errPathNotFound
		}
		if status >= 300 {
			return poller.Check{}, provider.FromStatus(name, status, errorMessage(body))
		}
		return Normalize(body)
	})
}

// Download fetches a finished track.
func (c *Client) Download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, provider.Invalid(name, "bad audio url: "+err.Error())
	}
	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, provider.Unavailable(name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, provider.FromStatus(name, resp.StatusCode, "download audio")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Unavailable(name, err)
	}
	if len(data) == 0 {
		return nil, provider.Rejected(name, resp.StatusCode, "downloaded audio is empty")
	}
	return data, nil
}

func (c *Client) do(hc *http.Client, req *http.Request) ([]byte, int, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, provider.Unavailable(name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, provider.Unavailable(name, err)
	}
	return body, resp.StatusCode, nil
}

// tryPaths calls fn for each candidate until one answers with something other
// than errPathNotFound.
func tryPaths[T any](paths []string, fn func(path string) (T, error)) (T, error) {
	var zero T
	for _, p := range paths {
		out, err := fn(p)
		if errors.Is(err, errPathNotFound) {
			slog.Debug("candidate path not found", "provider", name, "path", p)
			continue
		}
		return out, err
	}
	return zero, provider.Rejected(name, http.StatusNotFound, fmt.Sprintf("none of %d candidate paths exist", len(paths)))
}

func validate(style string, durationMinutes float64) error {
	if !models.ValidStyle(style) {
		return provider.Invalid(name, "unknown style "+style)
	}
	if durationMinutes <= 0 || durationMinutes > MaxDurationMinutes {
		return provider.Invalid(name, fmt.Sprintf("duration %.1f min outside (0, %d]", durationMinutes, MaxDurationMinutes))
	}
	return nil
}

// Title is the track title sent for a style.
func Title(style string) string {
	return truncate("Lullaby - "+style, maxTitleLen)
}

func styleTags(style string) string {
	return "lullaby, " + models.StyleLabel(style) + ", gentle, calm"
}

func expandPath(path, jobID string) string {
	return strings.ReplaceAll(path, "{id}", url.PathEscape(jobID))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
