package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScoreRecord is the persisted ranking state for one participant.
// There is exactly one record per participant; the store enforces
// uniqueness on ParticipantID.
type ScoreRecord struct {
	ParticipantID string
	DisplayName   string
	ImageRef      string
	Country       string

	// CurrentScore is the most recently submitted score.
	CurrentScore decimal.Decimal
	// BestScore is the maximum score ever submitted. It never decreases,
	// so BestScore >= CurrentScore holds after every write.
	BestScore decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RankedRecord is a ScoreRecord with its 1-based position in the
// descending-by-best-score total order.
type RankedRecord struct {
	Rank int64
	ScoreRecord
}

// User is an identity record maintained by the identity collaborator.
// It shares its key space with ScoreRecord.ParticipantID.
type User struct {
	ID        string
	Name      string
	Country   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
