// Package fallback supplies the stand-in lullaby used whenever the music
// provider cannot deliver.
package fallback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dodoapp/lullaby-backend/internal/config"
)

// ErrUnavailable means neither the bundled asset nor a fallback URL exists.
var ErrUnavailable = config.ErrFallbackUnavailable

const (
	SourceAsset = "asset"
	SourceURL   = "url"
)

type Audio struct {
	Data        []byte
	ContentType string
	Source      string
}

type Provider interface {
	Fetch(ctx context.Context) (*Audio, error)
}

// AssetProvider serves the bundled file when present, otherwise downloads the
// configured URL.
type AssetProvider struct {
	assetPath  string
	url        string
	httpClient *http.Client
}

func New(cfg config.FallbackConfig) *AssetProvider {
	return &AssetProvider{
		assetPath:  cfg.AssetPath,
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *AssetProvider) Fetch(ctx context.Context) (*Audio, error) {
	if p.assetPath != "" {
		data, err := os.ReadFile(p.assetPath)
		if err == nil && len(data) > 0 {
			return &Audio{Data: data, ContentType: "audio/mpeg", Source: SourceAsset}, nil
		}
	}
	if p.url == "" {
		return nil, ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create fallback request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download fallback audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download fallback audio: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fallback audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fallback audio at %s is empty", p.url)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = "audio/mpeg"
	}
	return &Audio{Data: data, ContentType: ct, Source: SourceURL}, nil
}
