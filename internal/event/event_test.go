package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduboard/backend/internal/domain"
	"github.com/eduboard/backend/internal/event"
)

func scoreUpdated(id string, best int64) domain.EventScoreUpdated {
	return domain.EventScoreUpdated{
		Record: domain.ScoreRecord{
			ParticipantID: id,
			BestScore:     decimal.NewFromInt(best),
		},
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers map[string][]string // subscriber name -> event names
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a mirror-style handler receives only score updates": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						scoreUpdated("u1", 100),
						domain.EventLeaderboardCleared{DeletedCount: 3},
					},
					subscribers: map[string][]string{
						"mirror": {domain.EventNameScoreUpdated},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{scoreUpdated("u1", 100)}, out.received["mirror"])
			},
		},

		"every score update reaches the handler, including repeats": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						scoreUpdated("u1", 100),
						scoreUpdated("u1", 100),
						scoreUpdated("u2", 250),
					},
					subscribers: map[string][]string{
						"mirror": {domain.EventNameScoreUpdated},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{
					scoreUpdated("u1", 100),
					scoreUpdated("u1", 100),
					scoreUpdated("u2", 250),
				}, out.received["mirror"])
			},
		},

		"one event fans out to every subscriber": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						domain.EventLeaderboardCleared{DeletedCount: 7},
					},
					subscribers: map[string][]string{
						"mirror":   {domain.EventNameLeaderboardCleared},
						"notifier": {domain.EventNameLeaderboardCleared},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				want := []event.Event{domain.EventLeaderboardCleared{DeletedCount: 7}}
				assert.ElementsMatch(t, want, out.received["mirror"])
				assert.ElementsMatch(t, want, out.received["notifier"])
			},
		},

		"subscribers with different interests split the stream": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						scoreUpdated("u1", 100),
						domain.EventLeaderboardUpdated{},
						scoreUpdated("u2", 250),
						domain.EventLeaderboardCleared{DeletedCount: 1},
					},
					subscribers: map[string][]string{
						"mirror":   {domain.EventNameScoreUpdated, domain.EventNameLeaderboardCleared},
						"notifier": {domain.EventNameLeaderboardUpdated},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{
					scoreUpdated("u1", 100),
					scoreUpdated("u2", 250),
					domain.EventLeaderboardCleared{DeletedCount: 1},
				}, out.received["mirror"])
				assert.ElementsMatch(t, []event.Event{
					domain.EventLeaderboardUpdated{},
				}, out.received["notifier"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for sub, events := range in.subscribers {
				for _, e := range events {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[sub] = append(out.received[sub], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_PanickingHandlerDoesNotStarveOthers(t *testing.T) {
	b := event.NewBus()

	b.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		panic("handler exploded")
	})

	var (
		mu       sync.Mutex
		received []event.Event
	)
	b.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), scoreUpdated("u1", 100))
	b.Publish(context.Background(), scoreUpdated("u2", 200))
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2, "the healthy handler keeps receiving after a sibling panics")
}

func TestBus_HandlerOutlivesCancelledPublisher(t *testing.T) {
	b := event.NewBus()

	var (
		mu        sync.Mutex
		cancelled bool
	)
	b.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		cancelled = ctx.Err() != nil
		mu.Unlock()
		return nil
	})

	// A request context is typically cancelled right after the response
	// is written; the handler must still run to completion.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b.Publish(ctx, scoreUpdated("u1", 100))
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.False(t, cancelled, "handler context is detached from the publisher's")
}
