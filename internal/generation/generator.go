package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dodoapp/lullaby-backend/internal/fallback"
	"github.com/dodoapp/lullaby-backend/internal/lyrics"
	"github.com/dodoapp/lullaby-backend/internal/metrics"
	"github.com/dodoapp/lullaby-backend/internal/models"
	"github.com/dodoapp/lullaby-backend/internal/poller"
	"github.com/dodoapp/lullaby-backend/internal/provider"
	"github.com/dodoapp/lullaby-backend/internal/storage"
	"github.com/dodoapp/lullaby-backend/internal/store"
)

const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"

	terminalWriteTimeout = 15 * time.Second
)

type GeneratorDeps struct {
	Store        store.Store
	Blobs        storage.Storage
	Strategy     Strategy
	Music        MusicProvider
	Fallback     fallback.Provider
	Lyrics       lyrics.Writer
	Poller       *poller.Poller
	PollRounds   int
	SignedURLTTL time.Duration
	Metrics      *metrics.Metrics
}

// Generator runs the lullaby pipeline: primary generation when a voice
// identity exists, fallback audio otherwise, then upload and the terminal
// status write.
type Generator struct {
	store        store.Store
	blobs        storage.Storage
	strategy     Strategy
	music        MusicProvider
	fallback     fallback.Provider
	lyrics       lyrics.Writer
	poller       *poller.Poller
	rounds       int
	signedURLTTL time.Duration
	metrics      *metrics.Metrics
}

func NewGenerator(d GeneratorDeps) *Generator {
	rounds := d.PollRounds
	if rounds <= 0 {
		rounds = 1
	}
	lw := d.Lyrics
	if lw == nil {
		lw = lyrics.Template{}
	}
	return &Generator{
		store:        d.Store,
		blobs:        d.Blobs,
		strategy:     d.Strategy,
		music:        d.Music,
		fallback:     d.Fallback,
		lyrics:       lw,
		poller:       d.Poller,
		rounds:       rounds,
		signedURLTTL: d.SignedURLTTL,
		metrics:      d.Metrics,
	}
}

type producedAudio struct {
	data        []byte
	contentType string
	source      string
}

// Run drives one lullaby to a terminal state. It returns an error only when
// the work should be retried later: the record could not be read or ctx was
// cancelled before a terminal write.
func (g *Generator) Run(ctx context.Context, lullabyID uuid.UUID) (err error) {
	log := slog.With("lullaby_id", lullabyID)

	l, err := g.store.GetLullaby(ctx, lullabyID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("lullaby vanished, nothing to generate")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load lullaby: %w", err)
	}

	job, err := g.startJob(ctx, lullabyID)
	if err != nil {
		return err
	}

	if l.IsTerminal() {
		log.Info("lullaby already terminal", "status", l.Status)
		g.finishJob(ctx, job.ID, nil)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("lullaby pipeline panicked", "panic", r)
			g.markFailed(ctx, l.ID, job.ID, "none", fmt.Errorf("panic: %v", r))
			err = nil
		}
	}()

	audio, err := g.produce(ctx, l, job)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("lullaby pipeline interrupted, leaving it for recovery", "error", err)
			return ctx.Err()
		}
		g.markFailed(ctx, l.ID, job.ID, "none", err)
		return nil
	}

	path := storage.LullabyPath(l.ID.String())
	if err := g.blobs.Upload(ctx, path, bytes.NewReader(audio.data), audio.contentType); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.markFailed(ctx, l.ID, job.ID, audio.source, fmt.Errorf("persist audio: %w", err))
		return nil
	}
	url, signed := storage.ResolveURL(ctx, g.blobs, path, g.signedURLTTL)

	wctx, cancel := terminalContext(ctx)
	defer cancel()
	err = g.store.UpdateLullaby(wctx, l.ID, store.LullabyUpdate{Status: models.LullabyStatusReady, AudioURL: &url})
	switch {
	case errors.Is(err, store.ErrTerminal):
		log.Warn("lullaby reached a terminal state elsewhere, keeping it")
	case err != nil:
		g.markFailed(ctx, l.ID, job.ID, audio.source, fmt.Errorf("mark ready: %w", err))
		return nil
	default:
		g.metrics.LullabyFinished(models.LullabyStatusReady, audio.source)
		log.Info("lullaby ready", "source", audio.source, "signed_url", signed)
	}
	g.finishJob(ctx, job.ID, nil)
	return nil
}

func (g *Generator) startJob(ctx context.Context, lullabyID uuid.UUID) (*models.GenerationJob, error) {
	job, err := g.store.GetJobByLullaby(ctx, lullabyID)
	if errors.Is(err, store.ErrNotFound) {
		job, err = g.store.InsertJob(ctx, lullabyID)
	}
	if err != nil {
		return nil, fmt.Errorf("load generation job: %w", err)
	}
	if err := g.store.UpdateJob(ctx, job.ID, store.JobUpdate{State: models.JobStateRunning, IncrementAttempts: true}); err != nil {
		return nil, fmt.Errorf("start generation job: %w", err)
	}
	return job, nil
}

// produce returns playable audio from the primary provider or the fallback.
// An error means even the fallback could not deliver.
func (g *Generator) produce(ctx context.Context, l *models.Lullaby, job *models.GenerationJob) (*producedAudio, error) {
	log := slog.With("lullaby_id", l.ID)

	identity := g.voiceIdentity(ctx, l)
	reason := "missing_identity"
	if identity != "" {
		data, err := g.primary(ctx, l, job, identity)
		if err == nil {
			return &producedAudio{data: data, contentType: "audio/mpeg", source: SourcePrimary}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason = failureReason(err)
		log.Warn("primary generation failed, using fallback", "strategy", g.strategy.Name(), "reason", reason, "error", err)
	} else {
		log.Info("no voice identity, using fallback")
	}

	g.metrics.Fallback(reason)
	audio, err := g.fallback.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fallback audio: %w", err)
	}
	return &producedAudio{data: audio.Data, contentType: audio.ContentType, source: SourceFallback}, nil
}

func (g *Generator) voiceIdentity(ctx context.Context, l *models.Lullaby) string {
	vp, err := g.store.GetVoiceProfile(ctx, l.VoiceProfileID)
	if err != nil {
		slog.Warn("voice profile unavailable", "lullaby_id", l.ID, "voice_profile_id", l.VoiceProfileID, "error", err)
		return ""
	}
	return vp.Identity()
}

// primary submits (or resumes) the provider job and polls it for up to
// g.rounds polling budgets.
func (g *Generator) primary(ctx context.Context, l *models.Lullaby, job *models.GenerationJob, identity string) ([]byte, error) {
	log := slog.With("lullaby_id", l.ID)

	var providerJobID string
	if job.ProviderJobID != nil && *job.ProviderJobID != "" {
		providerJobID = *job.ProviderJobID
		log.Info("resuming provider job", "job_id", providerJobID)
	} else {
		text, err := g.lyrics.Write(ctx, lyrics.Request{
			ChildName:       g.childName(ctx, l.ChildID),
			Style:           l.Style,
			LanguageCode:    l.LanguageCode,
			DurationMinutes: l.DurationMinutes,
		})
		if err != nil {
			return nil, fmt.Errorf("write lyrics: %w", err)
		}
		providerJobID, err = g.strategy.Submit(ctx, Submission{
			VoiceID:         identity,
			Lyrics:          text,
			Style:           l.Style,
			DurationMinutes: l.DurationMinutes,
		})
		if err != nil {
			return nil, fmt.Errorf("submit generation: %w", err)
		}
		if err := g.store.UpdateJob(ctx, job.ID, store.JobUpdate{ProviderJobID: &providerJobID}); err != nil {
			log.Warn("failed to record provider job id", "job_id", providerJobID, "error", err)
		}
		log.Info("provider job submitted", "job_id", providerJobID, "strategy", g.strategy.Name())
	}

	for round := 1; round <= g.rounds; round++ {
		res, err := g.poller.Until(ctx, providerJobID, g.music.PollJob)
		if err != nil {
			return nil, err
		}
		switch res.Outcome {
		case poller.OutcomeComplete:
			data, err := g.music.Download(ctx, res.AudioURL)
			if err != nil {
				return nil, fmt.Errorf("download generated audio: %w", err)
			}
			return data, nil
		case poller.OutcomeStillPending:
			log.Info("provider job still pending", "job_id", providerJobID, "round", round, "checks", res.Checks)
			continue
		default:
			return nil, res.Err()
		}
	}
	return nil, errStillPending
}

func (g *Generator) childName(ctx context.Context, id uuid.UUID) string {
	c, err := g.store.GetChild(ctx, id)
	if err != nil {
		return ""
	}
	return c.Name
}

// Fail gives up on a lullaby whose pipeline cannot be completed, for example
// after the queue spent its retries. It writes failed unless the record is
// already terminal and closes the ledger job when there is one.
func (g *Generator) Fail(ctx context.Context, lullabyID uuid.UUID, cause error) {
	wctx, cancel := terminalContext(ctx)
	defer cancel()
	jobID := uuid.Nil
	job, err := g.store.GetJobByLullaby(wctx, lullabyID)
	switch {
	case err == nil:
		jobID = job.ID
	case !errors.Is(err, store.ErrNotFound):
		slog.Error("failed to load generation job", "lullaby_id", lullabyID, "error", err)
	}
	g.markFailed(wctx, lullabyID, jobID, "none", cause)
}

// markFailed performs the best-effort failed write on a context that
// survives cancellation of ctx.
func (g *Generator) markFailed(ctx context.Context, lullabyID, jobID uuid.UUID, source string, cause error) {
	log := slog.With("lullaby_id", lullabyID)
	log.Error("lullaby generation failed", "error", cause)

	wctx, cancel := terminalContext(ctx)
	defer cancel()
	err := g.store.UpdateLullaby(wctx, lullabyID, store.LullabyUpdate{Status: models.LullabyStatusFailed})
	switch {
	case errors.Is(err, store.ErrTerminal):
		log.Warn("lullaby already terminal, failure not recorded")
	case err != nil:
		log.Error("failed to mark lullaby as failed", "error", err)
	default:
		g.metrics.LullabyFinished(models.LullabyStatusFailed, source)
	}
	if jobID != uuid.Nil {
		g.finishJob(wctx, jobID, cause)
	}
}

func (g *Generator) finishJob(ctx context.Context, jobID uuid.UUID, cause error) {
	upd := store.JobUpdate{State: models.JobStateDone}
	if cause != nil {
		msg := cause.Error()
		upd.LastError = &msg
	}
	wctx, cancel := terminalContext(ctx)
	defer cancel()
	if err := g.store.UpdateJob(wctx, jobID, upd); err != nil {
		slog.Error("failed to close generation job", "job_id", jobID, "error", err)
	}
}

func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, poller.ErrExhausted):
		return "polling_exhausted"
	case errors.Is(err, errStillPending):
		return "still_pending"
	case errors.Is(err, provider.ErrUnavailable), errors.Is(err, provider.ErrRejected), errors.Is(err, provider.ErrInvalidRequest):
		return provider.Kind(err)
	default:
		return "provider_failed"
	}
}
