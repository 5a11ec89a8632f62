package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dodoapp/lullaby-backend/internal/models"
)

// Memory is a process-local Store. Reads return copies so callers always see
// the last committed snapshot of a record.
type Memory struct {
	mu        sync.RWMutex
	children  map[uuid.UUID]models.Child
	voices    map[uuid.UUID]models.VoiceProfile
	lullabies map[uuid.UUID]models.Lullaby
	jobs      map[uuid.UUID]models.GenerationJob
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		children:  make(map[uuid.UUID]models.Child),
		voices:    make(map[uuid.UUID]models.VoiceProfile),
		lullabies: make(map[uuid.UUID]models.Lullaby),
		jobs:      make(map[uuid.UUID]models.GenerationJob),
		now:       monotonicClock(),
	}
}

// monotonicClock never returns the same instant twice, keeping creation-time
// ordering stable for records inserted in a tight loop.
func monotonicClock() func() time.Time {
	var mu sync.Mutex
	var last time.Time
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := time.Now().UTC()
		if !t.After(last) {
			t = last.Add(time.Microsecond)
		}
		last = t
		return t
	}
}

func (m *Memory) InsertChild(_ context.Context, c NewChild) (*models.Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	child := models.Child{ID: uuid.New(), Name: c.Name, AgeMonths: copyInt(c.AgeMonths), CreatedAt: m.now()}
	m.children[child.ID] = child
	out := child
	return &out, nil
}

func (m *Memory) GetChild(_ context.Context, id uuid.UUID) (*models.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.children[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.AgeMonths = copyInt(c.AgeMonths)
	return &c, nil
}

func (m *Memory) ListChildren(_ context.Context) ([]models.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Child, 0, len(m.children))
	for _, c := range m.children {
		c.AgeMonths = copyInt(c.AgeMonths)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) InsertVoiceProfile(_ context.Context) (*models.VoiceProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := models.VoiceProfile{ID: uuid.New(), Status: models.VoiceStatusProcessing, CreatedAt: m.now()}
	m.voices[v.ID] = v
	out := v
	return &out, nil
}

func (m *Memory) GetVoiceProfile(_ context.Context, id uuid.UUID) (*models.VoiceProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.voices[id]
	if !ok {
		return nil, ErrNotFound
	}
	v.ExternalVoiceID = copyString(v.ExternalVoiceID)
	return &v, nil
}

func (m *Memory) UpdateVoiceProfile(_ context.Context, id uuid.UUID, upd VoiceProfileUpdate) error {
	if err := validVoiceUpdate(upd); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[id]
	if !ok {
		return ErrNotFound
	}
	if v.Status != models.VoiceStatusProcessing {
		return ErrTerminal
	}
	v.Status = upd.Status
	if upd.ExternalVoiceID != nil {
		v.ExternalVoiceID = copyString(upd.ExternalVoiceID)
	}
	m.voices[id] = v
	return nil
}

func (m *Memory) ListVoiceProfiles(_ context.Context) ([]models.VoiceProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.VoiceProfile, 0, len(m.voices))
	for _, v := range m.voices {
		v.ExternalVoiceID = copyString(v.ExternalVoiceID)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) LatestVoiceIdentity(ctx context.Context) (string, error) {
	profiles, _ := m.ListVoiceProfiles(ctx)
	for _, v := range profiles {
		if v.Status == models.VoiceStatusReady && v.Identity() != "" {
			return v.Identity(), nil
		}
	}
	return "", ErrNotFound
}

func (m *Memory) InsertLullaby(_ context.Context, l NewLullaby) (*models.Lullaby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lullaby := models.Lullaby{
		ID:              uuid.New(),
		ChildID:         l.ChildID,
		VoiceProfileID:  l.VoiceProfileID,
		Title:           l.Title,
		Style:           l.Style,
		DurationMinutes: l.DurationMinutes,
		LanguageCode:    l.LanguageCode,
		Status:          models.LullabyStatusGenerating,
		CreatedAt:       m.now(),
	}
	m.lullabies[lullaby.ID] = lullaby
	out := lullaby
	return &out, nil
}

func (m *Memory) GetLullaby(_ context.Context, id uuid.UUID) (*models.Lullaby, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lullabies[id]
	if !ok {
		return nil, ErrNotFound
	}
	l.AudioURL = copyString(l.AudioURL)
	return &l, nil
}

func (m *Memory) UpdateLullaby(_ context.Context, id uuid.UUID, upd LullabyUpdate) error {
	if err := validLullabyUpdate(upd); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lullabies[id]
	if !ok {
		return ErrNotFound
	}
	if l.IsTerminal() {
		return ErrTerminal
	}
	l.Status = upd.Status
	l.AudioURL = copyString(upd.AudioURL)
	m.lullabies[id] = l
	return nil
}

func (m *Memory) ListLullabies(_ context.Context) ([]models.Lullaby, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Lullaby, 0, len(m.lullabies))
	for _, l := range m.lullabies {
		l.AudioURL = copyString(l.AudioURL)
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) InsertJob(_ context.Context, lullabyID uuid.UUID) (*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	j := models.GenerationJob{ID: uuid.New(), LullabyID: lullabyID, State: models.JobStateQueued, CreatedAt: now, UpdatedAt: now}
	m.jobs[j.ID] = j
	out := j
	return &out, nil
}

func (m *Memory) GetJobByLullaby(_ context.Context, lullabyID uuid.UUID) (*models.GenerationJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.jobs {
		if j.LullabyID == lullabyID {
			j.ProviderJobID = copyString(j.ProviderJobID)
			j.LastError = copyString(j.LastError)
			return &j, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateJob(_ context.Context, id uuid.UUID, upd JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if upd.State != "" {
		j.State = upd.State
	}
	if upd.ProviderJobID != nil {
		j.ProviderJobID = copyString(upd.ProviderJobID)
	}
	if upd.LastError != nil {
		j.LastError = copyString(upd.LastError)
	}
	if upd.IncrementAttempts {
		j.Attempts++
	}
	j.UpdatedAt = m.now()
	m.jobs[id] = j
	return nil
}

func (m *Memory) ListUnfinishedJobs(_ context.Context) ([]models.GenerationJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.GenerationJob{}
	for _, j := range m.jobs {
		if j.State != models.JobStateDone {
			j.ProviderJobID = copyString(j.ProviderJobID)
			j.LastError = copyString(j.LastError)
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
