package generation

import (
	"context"
	"fmt"

	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/poller"
	"github.com/dodoapp/lullaby-backend/internal/provider/suno"
)

type VoiceCloner interface {
	CloneVoice(ctx context.Context, name string, sources []string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
}

// MusicProvider is the music generation gateway.
type MusicProvider interface {
	SubmitGeneration(ctx context.Context, req suno.GenerationRequest) (string, error)
	SubmitCover(ctx context.Context, req suno.CoverRequest) (string, error)
	PollJob(ctx context.Context, jobID string) (poller.Check, error)
	Download(ctx context.Context, audioURL string) ([]byte, error)
}

type Submission struct {
	VoiceID         string
	Lyrics          string
	Style           string
	DurationMinutes float64
}

// Strategy starts a provider job for one lullaby. One strategy is chosen at
// startup and used for every lullaby.
type Strategy interface {
	Name() string
	Submit(ctx context.Context, s Submission) (jobID string, err error)
}

// DirectStrategy asks the provider to compose and sing with the cloned voice
// as persona.
type DirectStrategy struct {
	Music MusicProvider
}

func (DirectStrategy) Name() string { return config.ModeDirect }

func (d DirectStrategy) Submit(ctx context.Context, s Submission) (string, error) {
	return d.Music.SubmitGeneration(ctx, suno.GenerationRequest{
		Prompt:          s.Lyrics,
		Style:           s.Style,
		DurationMinutes: s.DurationMinutes,
		PersonaID:       s.VoiceID,
	})
}

// CoverStrategy sings the lyrics with the cloned voice first, then has the
// provider compose music around that vocal track.
type CoverStrategy struct {
	Voice Synthesizer
	Music MusicProvider
}

func (CoverStrategy) Name() string { return config.ModeCover }

func (c CoverStrategy) Submit(ctx context.Context, s Submission) (string, error) {
	vocals, err := c.Voice.Synthesize(ctx, s.VoiceID, s.Lyrics)
	if err != nil {
		return "", fmt.Errorf("synthesize vocals: %w", err)
	}
	return c.Music.SubmitCover(ctx, suno.CoverRequest{Vocals: vocals, Style: s.Style})
}

func NewStrategy(mode string, voice Synthesizer, music MusicProvider) (Strategy, error) {
	switch mode {
	case config.ModeDirect:
		return DirectStrategy{Music: music}, nil
	case config.ModeCover:
		return CoverStrategy{Voice: voice, Music: music}, nil
	default:
		return nil, fmt.Errorf("unknown generation mode %q", mode)
	}
}
