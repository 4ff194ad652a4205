package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eduboard/backend/internal/domain"
	"github.com/eduboard/backend/internal/errors"
)

// Memory is an in-memory store with the same contract as Store,
// including the atomic upsert and the ListAll tie order. It backs tests
// and local development without a database.
type Memory struct {
	mu   sync.Mutex
	recs map[string]domain.ScoreRecord
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		recs: make(map[string]domain.ScoreRecord),
		now:  time.Now,
	}
}

func (m *Memory) FindByParticipant(_ context.Context, participantID string) (*domain.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[participantID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("score record not found: participant=%s", participantID))
	}

	return &rec, nil
}

func (m *Memory) Create(_ context.Context, rec *domain.ScoreRecord) (*domain.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.recs[rec.ParticipantID]; ok {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("score record already exists: participant=%s", rec.ParticipantID))
	}

	created := *rec
	created.CreatedAt = m.now()
	created.UpdatedAt = created.CreatedAt
	m.recs[created.ParticipantID] = created

	return &created, nil
}

func (m *Memory) Save(_ context.Context, rec *domain.ScoreRecord) (*domain.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.recs[rec.ParticipantID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("score record not found: participant=%s", rec.ParticipantID))
	}

	saved := *rec
	saved.CreatedAt = existing.CreatedAt
	saved.UpdatedAt = m.now()
	m.recs[saved.ParticipantID] = saved

	return &saved, nil
}

func (m *Memory) Upsert(_ context.Context, sub Submission) (*UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	existing, ok := m.recs[sub.ParticipantID]
	if !ok {
		rec := domain.ScoreRecord{
			ParticipantID: sub.ParticipantID,
			DisplayName:   sub.DisplayName,
			ImageRef:      sub.ImageRef,
			Country:       sub.Country,
			CurrentScore:  sub.Score,
			BestScore:     sub.Score,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		m.recs[rec.ParticipantID] = rec

		return &UpsertResult{Record: rec}, nil
	}

	prior := existing.BestScore

	existing.DisplayName = sub.DisplayName
	existing.ImageRef = sub.ImageRef
	existing.Country = sub.Country
	existing.CurrentScore = sub.Score
	if sub.Score.GreaterThan(existing.BestScore) {
		existing.BestScore = sub.Score
	}
	existing.UpdatedAt = now
	m.recs[existing.ParticipantID] = existing

	return &UpsertResult{Record: existing, PriorBest: &prior}, nil
}

func (m *Memory) ListAll(_ context.Context, ord Order) ([]domain.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := make([]domain.ScoreRecord, 0, len(m.recs))
	for _, rec := range m.recs {
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		cmp := recs[i].BestScore.Cmp(recs[j].BestScore)
		if ord == OrderBestScoreAsc {
			if cmp != 0 {
				return cmp < 0
			}
			return recs[i].ParticipantID < recs[j].ParticipantID
		}
		if cmp != 0 {
			return cmp > 0
		}
		return recs[i].ParticipantID > recs[j].ParticipantID
	})

	return recs, nil
}

func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int64(len(m.recs)), nil
}

func (m *Memory) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.recs))
	m.recs = make(map[string]domain.ScoreRecord)

	return n, nil
}
