package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dodoapp/lullaby-backend/internal/models"
)

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const lullabyColumns = `id, child_id, voice_profile_id, title, style, duration_minutes, language_code, status, audio_url, created_at`

const jobColumns = `id, lullaby_id, state, provider_job_id, attempts, last_error, created_at, updated_at`

func (p *Postgres) InsertChild(ctx context.Context, c NewChild) (*models.Child, error) {
	var child models.Child
	err := p.db.QueryRow(ctx,
		`INSERT INTO children (name, age_months) VALUES ($1, $2)
		 RETURNING id, name, age_months, created_at`,
		c.Name, c.AgeMonths,
	).Scan(&child.ID, &child.Name, &child.AgeMonths, &child.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert child: %w", err)
	}
	return &child, nil
}

func (p *Postgres) GetChild(ctx context.Context, id uuid.UUID) (*models.Child, error) {
	var child models.Child
	err := p.db.QueryRow(ctx,
		`SELECT id, name, age_months, created_at FROM children WHERE id = $1`, id,
	).Scan(&child.ID, &child.Name, &child.AgeMonths, &child.CreatedAt)
	if err != nil {
		return nil, notFound("get child", err)
	}
	return &child, nil
}

func (p *Postgres) ListChildren(ctx context.Context) ([]models.Child, error) {
	rows, err := p.db.Query(ctx, `SELECT id, name, age_months, created_at FROM children ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	children := []models.Child{}
	for rows.Next() {
		var c models.Child
		if err := rows.Scan(&c.ID, &c.Name, &c.AgeMonths, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, c)
	}
	return children, rows.Err()
}

func (p *Postgres) InsertVoiceProfile(ctx context.Context) (*models.VoiceProfile, error) {
	var v models.VoiceProfile
	err := p.db.QueryRow(ctx,
		`INSERT INTO voice_profiles (status) VALUES ($1)
		 RETURNING id, status, external_voice_id, created_at`,
		models.VoiceStatusProcessing,
	).Scan(&v.ID, &v.Status, &v.ExternalVoiceID, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert voice profile: %w", err)
	}
	return &v, nil
}

func (p *Postgres) GetVoiceProfile(ctx context.Context, id uuid.UUID) (*models.VoiceProfile, error) {
	var v models.VoiceProfile
	err := p.db.QueryRow(ctx,
		`SELECT id, status, external_voice_id, created_at FROM voice_profiles WHERE id = $1`, id,
	).Scan(&v.ID, &v.Status, &v.ExternalVoiceID, &v.CreatedAt)
	if err != nil {
		return nil, notFound("get voice profile", err)
	}
	return &v, nil
}

func (p *Postgres) UpdateVoiceProfile(ctx context.Context, id uuid.UUID, upd VoiceProfileUpdate) error {
	if err := validVoiceUpdate(upd); err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE voice_profiles SET status = $1, external_voice_id = COALESCE($2, external_voice_id)
		 WHERE id = $3 AND status = $4`,
		upd.Status, upd.ExternalVoiceID, id, models.VoiceStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update voice profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.missingOrTerminal(ctx, "voice_profiles", id)
	}
	return nil
}

func (p *Postgres) ListVoiceProfiles(ctx context.Context) ([]models.VoiceProfile, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, status, external_voice_id, created_at FROM voice_profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list voice profiles: %w", err)
	}
	defer rows.Close()

	profiles := []models.VoiceProfile{}
	for rows.Next() {
		var v models.VoiceProfile
		if err := rows.Scan(&v.ID, &v.Status, &v.ExternalVoiceID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan voice profile: %w", err)
		}
		profiles = append(profiles, v)
	}
	return profiles, rows.Err()
}

func (p *Postgres) LatestVoiceIdentity(ctx context.Context) (string, error) {
	var id string
	err := p.db.QueryRow(ctx,
		`SELECT external_voice_id FROM voice_profiles
		 WHERE status = $1 AND external_voice_id IS NOT NULL
		 ORDER BY created_at DESC LIMIT 1`,
		models.VoiceStatusReady,
	).Scan(&id)
	if err != nil {
		return "", notFound("latest voice identity", err)
	}
	return id, nil
}

func (p *Postgres) InsertLullaby(ctx context.Context, l NewLullaby) (*models.Lullaby, error) {
	row := p.db.QueryRow(ctx,
		`INSERT INTO lullabies (child_id, voice_profile_id, title, style, duration_minutes, language_code, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+lullabyColumns,
		l.ChildID, l.VoiceProfileID, l.Title, l.Style, l.DurationMinutes, l.LanguageCode, models.LullabyStatusGenerating,
	)
	lullaby, err := scanLullaby(row)
	if err != nil {
		return nil, fmt.Errorf("insert lullaby: %w", err)
	}
	return lullaby, nil
}

func (p *Postgres) GetLullaby(ctx context.Context, id uuid.UUID) (*models.Lullaby, error) {
	lullaby, err := scanLullaby(p.db.QueryRow(ctx, `SELECT `+lullabyColumns+` FROM lullabies WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("get lullaby", err)
	}
	return lullaby, nil
}

func (p *Postgres) UpdateLullaby(ctx context.Context, id uuid.UUID, upd LullabyUpdate) error {
	if err := validLullabyUpdate(upd); err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE lullabies SET status = $1, audio_url = $2 WHERE id = $3 AND status = $4`,
		upd.Status, upd.AudioURL, id, models.LullabyStatusGenerating,
	)
	if err != nil {
		return fmt.Errorf("update lullaby: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.missingOrTerminal(ctx, "lullabies", id)
	}
	return nil
}

func (p *Postgres) ListLullabies(ctx context.Context) ([]models.Lullaby, error) {
	rows, err := p.db.Query(ctx, `SELECT `+lullabyColumns+` FROM lullabies ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list lullabies: %w", err)
	}
	defer rows.Close()

	lullabies := []models.Lullaby{}
	for rows.Next() {
		l, err := scanLullaby(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lullaby: %w", err)
		}
		lullabies = append(lullabies, *l)
	}
	return lullabies, rows.Err()
}

func (p *Postgres) InsertJob(ctx context.Context, lullabyID uuid.UUID) (*models.GenerationJob, error) {
	job, err := scanJob(p.db.QueryRow(ctx,
		`INSERT INTO generation_jobs (lullaby_id, state) VALUES ($1, $2) RETURNING `+jobColumns,
		lullabyID, models.JobStateQueued,
	))
	if err != nil {
		return nil, fmt.Errorf("insert generation job: %w", err)
	}
	return job, nil
}

func (p *Postgres) GetJobByLullaby(ctx context.Context, lullabyID uuid.UUID) (*models.GenerationJob, error) {
	job, err := scanJob(p.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE lullaby_id = $1`, lullabyID))
	if err != nil {
		return nil, notFound("get generation job", err)
	}
	return job, nil
}

func (p *Postgres) UpdateJob(ctx context.Context, id uuid.UUID, upd JobUpdate) error {
	inc := 0
	if upd.IncrementAttempts {
		inc = 1
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE generation_jobs
		 SET state = COALESCE(NULLIF($1, ''), state),
		     provider_job_id = COALESCE($2, provider_job_id),
		     last_error = COALESCE($3, last_error),
		     attempts = attempts + $4,
		     updated_at = now()
		 WHERE id = $5`,
		upd.State, upd.ProviderJobID, upd.LastError, inc, id,
	)
	if err != nil {
		return fmt.Errorf("update generation job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListUnfinishedJobs(ctx context.Context) ([]models.GenerationJob, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE state <> $1 ORDER BY created_at ASC`,
		models.JobStateDone,
	)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.GenerationJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// missingOrTerminal distinguishes an unknown id from a conditional update that
// matched no row because the record already left its initial state.
func (p *Postgres) missingOrTerminal(ctx context.Context, table string, id uuid.UUID) error {
	var exists bool
	err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrTerminal
}

func scanLullaby(row pgx.Row) (*models.Lullaby, error) {
	var l models.Lullaby
	err := row.Scan(&l.ID, &l.ChildID, &l.VoiceProfileID, &l.Title, &l.Style, &l.DurationMinutes,
		&l.LanguageCode, &l.Status, &l.AudioURL, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanJob(row pgx.Row) (*models.GenerationJob, error) {
	var j models.GenerationJob
	err := row.Scan(&j.ID, &j.LullabyID, &j.State, &j.ProviderJobID, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func notFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
