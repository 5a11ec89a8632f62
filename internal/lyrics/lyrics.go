// Package lyrics writes the words of a lullaby. They are used as the prompt in
// direct generation and as the sung text in cover mode.
package lyrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/models"
)

type Request struct {
	ChildName       string
	Style           string
	LanguageCode    string
	DurationMinutes float64
}

type Writer interface {
	Write(ctx context.Context, req Request) (string, error)
}

// New returns an LLM-backed writer that falls back to the template, or the
// template alone when no API key is configured.
func New(cfg config.LyricsConfig) Writer {
	if cfg.OpenAIKey == "" {
		return Template{}
	}
	return &withFallback{
		primary:  NewOpenAIWriter(cfg.OpenAIKey, cfg.BaseURL, cfg.Model),
		fallback: Template{},
	}
}

type withFallback struct {
	primary  Writer
	fallback Writer
}

func (w *withFallback) Write(ctx context.Context, req Request) (string, error) {
	text, err := w.primary.Write(ctx, req)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	slog.Warn("lyric writer failed, using template", "error", err)
	return w.fallback.Write(ctx, req)
}

// Template is a deterministic writer with no external dependency.
type Template struct{}

func (Template) Write(_ context.Context, req Request) (string, error) {
	name := strings.TrimSpace(req.ChildName)
	label := models.StyleLabel(req.Style)

	if isFrench(req.LanguageCode) {
		if name == "" {
			name = "mon tout-petit"
		}
		return fmt.Sprintf(
			"Une comptine %s pour endormir %s, en français.\n"+
				"Ferme les yeux, %s, la lune veille sur toi,\n"+
				"les étoiles chantent tout bas, dors, je suis là.",
			frenchLabel(req.Style), name, name), nil
	}

	if name == "" {
		name = "little one"
	}
	return fmt.Sprintf(
		"A %s lullaby to help %s fall asleep.\n"+
			"Close your eyes, %s, the moon is watching over you,\n"+
			"the stars are singing softly, sleep, I am here.",
		label, name, name), nil
}

func isFrench(code string) bool {
	return strings.HasPrefix(strings.ToLower(code), "fr")
}

func frenchLabel(style string) string {
	switch style {
	case models.StyleSoft:
		return "douce et lente"
	case models.StyleJoyful:
		return "joyeuse et rassurante"
	case models.StyleSpoken:
		return "plus parlée que chantée"
	case models.StyleMelodic:
		return "plus mélodique"
	}
	return style
}
