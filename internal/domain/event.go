package domain

const (
	EventNameScoreUpdated       = "score.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
	EventNameLeaderboardCleared = "leaderboard.cleared"
)

type EventScoreUpdated struct {
	Record ScoreRecord
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventLeaderboardUpdated struct {
	// Top holds the first entries of the full ranking at publish time.
	Top []RankedRecord
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventLeaderboardCleared struct {
	DeletedCount int64
}

func (EventLeaderboardCleared) Name() string { return EventNameLeaderboardCleared }
