package score

import (
	"context"
	"log/slog"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/eduboard/backend/internal/domain"
	"github.com/eduboard/backend/internal/errors"
	"github.com/eduboard/backend/internal/event"
	"github.com/eduboard/backend/internal/store"
)

// Outcome classifies what a submission did to the participant's record.
type Outcome string

const (
	// OutcomeCreated means this was the participant's first submission.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means the submission improved the best score.
	OutcomeUpdated Outcome = "updated"
	// OutcomeNotImproved means the record was refreshed but the best
	// score stands. Resubmitting the exact best score lands here.
	OutcomeNotImproved Outcome = "not_improved"
)

// Store is the slice of the record store the protocol needs.
type Store interface {
	FindByParticipant(ctx context.Context, participantID string) (*domain.ScoreRecord, error)
	Create(ctx context.Context, rec *domain.ScoreRecord) (*domain.ScoreRecord, error)
	Save(ctx context.Context, rec *domain.ScoreRecord) (*domain.ScoreRecord, error)
	Upsert(ctx context.Context, sub store.Submission) (*store.UpsertResult, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
}

type Service struct {
	eb    *event.Bus
	store Store
}

func NewService(c Config) *Service {
	return &Service{
		eb:    c.EventBus,
		store: c.Store,
	}
}

type SubmitRequest struct {
	ParticipantID string
	DisplayName   string
	ImageRef      string
	Country       string
	Score         decimal.Decimal
}

type SubmitResponse struct {
	Outcome Outcome
	Record  domain.ScoreRecord
}

// Submit applies one score submission: create the record on first sight,
// otherwise overwrite the current score and raise the best score if the
// submission beats it. The whole decision runs as a single conditional
// upsert in the store, so concurrent submissions for one participant
// cannot lose a best-score improvement.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if req.ParticipantID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("submit score: participant id is required"))
	}

	res, err := s.store.Upsert(ctx, store.Submission{
		ParticipantID: req.ParticipantID,
		DisplayName:   req.DisplayName,
		ImageRef:      req.ImageRef,
		Country:       req.Country,
		Score:         req.Score,
	})
	if err != nil {
		return nil, err
	}

	outcome := OutcomeNotImproved
	switch {
	case res.PriorBest == nil:
		outcome = OutcomeCreated
	case req.Score.GreaterThan(*res.PriorBest):
		outcome = OutcomeUpdated
	}

	s.eb.Publish(ctx, domain.EventScoreUpdated{
		Record: res.Record,
	})

	return &SubmitResponse{
		Outcome: outcome,
		Record:  res.Record,
	}, nil
}

type UpdateProfileRequest struct {
	ParticipantID string
	DisplayName   *string
	ImageRef      *string
	Country       *string
}

// UpdateProfile changes the denormalized display metadata of a record,
// last write wins. Scores are untouched.
func (s *Service) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*domain.ScoreRecord, error) {
	if req.ParticipantID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("update profile: participant id is required"))
	}

	rec, err := s.store.FindByParticipant(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		rec.DisplayName = *req.DisplayName
	}
	if req.ImageRef != nil {
		rec.ImageRef = *req.ImageRef
	}
	if req.Country != nil {
		rec.Country = *req.Country
	}

	return s.store.Save(ctx, rec)
}

// Clear wipes the whole scoreboard. Development-only; the API layer gates
// it behind the admin flag.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}

	s.eb.Publish(ctx, domain.EventLeaderboardCleared{
		DeletedCount: n,
	})

	return n, nil
}

type SeedRequest struct {
	Count int
}

// Seed populates the scoreboard with fake participants for development
// environments and returns the created participant ids. Participants
// that already exist are skipped, so seeding is safe to repeat.
func (s *Service) Seed(ctx context.Context, req SeedRequest) ([]string, error) {
	created := make([]string, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		sc := decimal.NewFromInt(int64(gofakeit.Number(0, 5000)))

		rec := &domain.ScoreRecord{
			ParticipantID: gofakeit.Username(),
			DisplayName:   gofakeit.Name(),
			ImageRef:      gofakeit.ImageURL(128, 128),
			Country:       gofakeit.CountryAbr(),
			CurrentScore:  sc,
			BestScore:     sc,
		}

		saved, err := s.store.Create(ctx, rec)
		if errors.IsCode(err, errors.CodeAlreadyExists) {
			continue
		}
		if err != nil {
			return created, err
		}

		created = append(created, saved.ParticipantID)
		s.eb.Publish(ctx, domain.EventScoreUpdated{
			Record: *saved,
		})
	}

	slog.InfoContext(ctx, "score: seeded scoreboard", "requested", req.Count, "created", len(created))
	return created, nil
}
