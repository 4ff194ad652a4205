package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/eduboard/backend/internal/domain"
)

const maxConcurrentPublishes = 100

type (
	notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	boardUpdate struct {
		Entries []boardEntry `json:"entries"`
	}

	boardEntry struct {
		Rank          int64  `json:"rank"`
		ParticipantID string `json:"participant_id"`
		DisplayName   string `json:"display_name"`
		BestScore     string `json:"best_score"`
	}
)

// publishLeaderboardUpdated pushes the refreshed board to each ranked
// participant's notification channel.
func (a *API) publishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := boardUpdate{
		Entries: make([]boardEntry, 0, len(e.Top)),
	}

	for _, r := range e.Top {
		data.Entries = append(data.Entries, boardEntry{
			Rank:          r.Rank,
			ParticipantID: r.ParticipantID,
			DisplayName:   r.DisplayName,
			BestScore:     r.BestScore.String(),
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentPublishes)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.ParticipantID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, participantID, event string, data any) error {
	n := notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.red.Publish(ctx, fmt.Sprintf("%s:participant:%s", a.prefix, participantID), b).Err()
}
