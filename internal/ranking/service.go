package ranking

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduboard/backend/internal/domain"
	"github.com/eduboard/backend/internal/errors"
	"github.com/eduboard/backend/internal/event"
	"github.com/eduboard/backend/internal/store"
)

const (
	defaultTopK     = 10
	publishInterval = 200 * time.Millisecond
)

// Store is the read slice of the record store the views are built from.
type Store interface {
	FindByParticipant(ctx context.Context, participantID string) (*domain.ScoreRecord, error)
	ListAll(ctx context.Context, ord store.Order) ([]domain.ScoreRecord, error)
	Count(ctx context.Context) (int64, error)
}

// Identity resolves participant ids to their canonical identity records.
type Identity interface {
	Lookup(ctx context.Context, ids []string) (map[string]domain.User, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Identity Identity
	Redis    redis.UniversalClient
	Prefix   string
	TopK     int
}

// Service derives ranking views from the record store. Ranks follow the
// descending-by-best-score order with ties broken by participant id
// descending; a redis ZSET mirrors best scores so single-participant rank
// lookups avoid a full scan. ZREVRANK breaks ties on equal scores by
// member descending, which is why the store scan uses the same tie order.
type Service struct {
	eb       *event.Bus
	store    Store
	identity Identity
	redis    redis.UniversalClient
	prefix   string
	topK     int
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		store:    c.Store,
		identity: c.Identity,
		redis:    c.Redis,
		prefix:   c.Prefix,
		topK:     c.TopK,
	}
	if s.topK <= 0 {
		s.topK = defaultTopK
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.applyScoreUpdate(ctx, e.(domain.EventScoreUpdated))
	})
	s.eb.Subscribe(domain.EventNameLeaderboardCleared, func(ctx context.Context, e event.Event) error {
		return s.Invalidate(ctx)
	})

	return s
}

// FullRanking returns every record with its 1-based rank.
func (s *Service) FullRanking(ctx context.Context) ([]domain.RankedRecord, error) {
	recs, err := s.store.ListAll(ctx, store.OrderBestScoreDesc)
	if err != nil {
		return nil, fmt.Errorf("full ranking: %w", err)
	}

	ranked := make([]domain.RankedRecord, 0, len(recs))
	for i, rec := range recs {
		ranked = append(ranked, domain.RankedRecord{
			Rank:        int64(i + 1),
			ScoreRecord: rec,
		})
	}

	return ranked, nil
}

// TopEntry is one row of the bounded top-K view, joined with the identity
// collaborator's canonical name and country.
type TopEntry struct {
	Rank          int64
	ParticipantID string
	DisplayName   string
	Name          string
	Country       string
	CurrentScore  string
	BestScore     string
}

// Top returns the first K entries of the full ranking.
func (s *Service) Top(ctx context.Context) ([]TopEntry, error) {
	ranked, err := s.FullRanking(ctx)
	if err != nil {
		return nil, err
	}

	if len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}

	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.ParticipantID)
	}

	users, err := s.identity.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("top ranking: identity lookup: %w", err)
	}

	top := make([]TopEntry, 0, len(ranked))
	for _, r := range ranked {
		e := TopEntry{
			Rank:          r.Rank,
			ParticipantID: r.ParticipantID,
			DisplayName:   r.DisplayName,
			Country:       r.Country,
			CurrentScore:  r.CurrentScore.String(),
			BestScore:     r.BestScore.String(),
		}
		if u, ok := users[r.ParticipantID]; ok {
			e.Name = u.Name
			if u.Country != "" {
				e.Country = u.Country
			}
		}
		top = append(top, e)
	}

	return top, nil
}

type ParticipantView struct {
	UserData domain.RankedRecord
	Top      []TopEntry
}

// ParticipantViewByID returns one participant's ranked record together
// with the current top-K board. Unknown participants yield NotFound; the
// caller treats that as a normal outcome, not a failure.
func (s *Service) ParticipantViewByID(ctx context.Context, participantID string) (*ParticipantView, error) {
	rec, err := s.store.FindByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	rank, err := s.RankOf(ctx, participantID)
	if err != nil {
		return nil, err
	}

	top, err := s.Top(ctx)
	if err != nil {
		return nil, err
	}

	return &ParticipantView{
		UserData: domain.RankedRecord{Rank: rank, ScoreRecord: *rec},
		Top:      top,
	}, nil
}

// RankOf returns the participant's 1-based rank. The ZSET mirror answers
// in O(log n); when the participant is not mirrored yet (cold cache or a
// submission whose event is still in flight) the rank falls back to a
// scan of the store.
func (s *Service) RankOf(ctx context.Context, participantID string) (int64, error) {
	pos, err := s.redis.ZRevRank(ctx, s.boardKey(), participantID).Result()
	if err == nil && s.mirrorComplete(ctx) {
		return pos + 1, nil
	}
	if err != nil && !stderrors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "ranking: mirror lookup failed, scanning store",
			"participant", participantID, "error", err)
	}

	return s.rankOfScan(ctx, participantID)
}

// mirrorComplete reports whether the ZSET holds every stored participant.
// A mirror missing members (dropped event, restarted redis) would shift
// ranks below the gap, so an incomplete mirror must not be trusted for
// anyone, not just the missing members.
func (s *Service) mirrorComplete(ctx context.Context) bool {
	mirrored, err := s.redis.ZCard(ctx, s.boardKey()).Result()
	if err != nil {
		slog.WarnContext(ctx, "ranking: mirror size check failed, scanning store", "error", err)
		return false
	}

	stored, err := s.store.Count(ctx)
	if err != nil {
		slog.WarnContext(ctx, "ranking: store count failed, scanning store", "error", err)
		return false
	}

	return mirrored == stored
}

func (s *Service) rankOfScan(ctx context.Context, participantID string) (int64, error) {
	recs, err := s.store.ListAll(ctx, store.OrderBestScoreDesc)
	if err != nil {
		return 0, fmt.Errorf("rank of %s: %w", participantID, err)
	}

	for i, rec := range recs {
		if rec.ParticipantID == participantID {
			return int64(i + 1), nil
		}
	}

	return 0, errors.New(errors.CodeNotFound,
		errors.WithMessagef("participant not ranked: participant=%s", participantID))
}

// applyScoreUpdate mirrors a record's best score into the ZSET. ZADD GT
// only moves scores upward, so an event delivered out of order can never
// lower a mirrored best score.
func (s *Service) applyScoreUpdate(ctx context.Context, e domain.EventScoreUpdated) error {
	rec := e.Record

	if err := s.redis.ZAddGT(ctx, s.boardKey(), redis.Z{
		Score:  rec.BestScore.InexactFloat64(),
		Member: rec.ParticipantID,
	}).Err(); err != nil {
		return fmt.Errorf("mirror score update: %w", err)
	}

	return s.schedulePublish(ctx, rec.UpdatedAt)
}

// schedulePublish publishes the board after a short interval instead of
// on every update. Many submissions land in a burst; the SetNX gate keeps
// one publish per interval across service instances.
func (s *Service) schedulePublish(ctx context.Context, at time.Time) error {
	ok, err := s.redis.SetNX(ctx, s.timeKey(), at.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishBoard(ctx)
}

func (s *Service) publishBoard(ctx context.Context) error {
	ranked, err := s.FullRanking(ctx)
	if err != nil {
		return fmt.Errorf("publish board: %w", err)
	}

	if len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Top: ranked,
	})

	return nil
}

// Invalidate drops the ZSET mirror. Called after an administrative clear.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.boardKey(), s.timeKey()).Err(); err != nil {
		return fmt.Errorf("invalidate board: %w", err)
	}

	return nil
}

func (s *Service) boardKey() string {
	return fmt.Sprintf("%s:board", s.prefix)
}

func (s *Service) timeKey() string {
	return fmt.Sprintf("%s:board:time", s.prefix)
}
