// Package store persists score records in PostgreSQL. It is the single
// authority on participant uniqueness and on the atomic conditional
// upsert that keeps best scores monotonic under concurrent submissions.
package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/eduboard/backend/internal/domain"
	"github.com/eduboard/backend/internal/errors"
)

const codeUniqueViolation = "23505"

// Order selects the scan order of ListAll. Ties on best_score are always
// broken by participant_id descending, so the order is deterministic and
// matches the lexicographic tie order of the redis ZREVRANGE mirror.
type Order int

const (
	OrderBestScoreDesc Order = iota
	OrderBestScoreAsc
)

type Config struct {
	DB *pgxpool.Pool
}

type Store struct {
	db *pgxpool.Pool
}

func New(c Config) *Store {
	return &Store{db: c.DB}
}

const recordColumns = `participant_id, display_name, image_ref, country, current_score, best_score, created_at, updated_at`

// FindByParticipant returns the record for one participant, or a NotFound
// error if no score has been submitted for that participant yet.
func (s *Store) FindByParticipant(ctx context.Context, participantID string) (*domain.ScoreRecord, error) {
	const stmt = `SELECT ` + recordColumns + ` FROM score_records WHERE participant_id = $1;`

	rec, err := scanRecord(s.db.QueryRow(ctx, stmt, participantID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("score record not found: participant=%s", participantID))
	}
	if err != nil {
		return nil, wrapErr("find", participantID, err)
	}

	return rec, nil
}

// Create inserts a brand-new record. It fails with an AlreadyExists error
// when a record for the participant is already present.
func (s *Store) Create(ctx context.Context, rec *domain.ScoreRecord) (*domain.ScoreRecord, error) {
	const stmt = `
INSERT INTO score_records (participant_id, display_name, image_ref, country, current_score, best_score)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + recordColumns + `;`

	created, err := scanRecord(s.db.QueryRow(ctx, stmt,
		rec.ParticipantID, rec.DisplayName, rec.ImageRef, rec.Country, rec.CurrentScore, rec.BestScore))

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("score record already exists: participant=%s", rec.ParticipantID),
			errors.WithCause(err))
	}
	if err != nil {
		return nil, wrapErr("create", rec.ParticipantID, err)
	}

	return created, nil
}

// Save persists mutations to an existing record. The row's updated_at is
// refreshed on every save.
func (s *Store) Save(ctx context.Context, rec *domain.ScoreRecord) (*domain.ScoreRecord, error) {
	const stmt = `
UPDATE score_records
SET display_name = $2, image_ref = $3, country = $4, current_score = $5, best_score = $6, updated_at = now()
WHERE participant_id = $1
RETURNING ` + recordColumns + `;`

	saved, err := scanRecord(s.db.QueryRow(ctx, stmt,
		rec.ParticipantID, rec.DisplayName, rec.ImageRef, rec.Country, rec.CurrentScore, rec.BestScore))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("score record not found: participant=%s", rec.ParticipantID))
	}
	if err != nil {
		return nil, wrapErr("save", rec.ParticipantID, err)
	}

	return saved, nil
}

// Submission is the input of Upsert.
type Submission struct {
	ParticipantID string
	DisplayName   string
	ImageRef      string
	Country       string
	Score         decimal.Decimal
}

// UpsertResult carries the post-write record plus enough prior state for
// the caller to classify the submission outcome.
type UpsertResult struct {
	Record domain.ScoreRecord
	// PriorBest is nil when the upsert created the record.
	PriorBest *decimal.Decimal
}

// Upsert applies a submission in a single statement: insert when absent,
// otherwise overwrite current_score and the display metadata and raise
// best_score to the maximum of its old value and the submission. GREATEST
// keeps best_score monotonic even when submissions for the same
// participant interleave, which removes the read-modify-write race.
func (s *Store) Upsert(ctx context.Context, sub Submission) (*UpsertResult, error) {
	const stmt = `
WITH prior AS (
	SELECT best_score FROM score_records WHERE participant_id = $1
), upserted AS (
	INSERT INTO score_records (participant_id, display_name, image_ref, country, current_score, best_score)
	VALUES ($1, $2, $3, $4, $5, $5)
	ON CONFLICT (participant_id) DO UPDATE SET
		display_name = EXCLUDED.display_name,
		image_ref = EXCLUDED.image_ref,
		country = EXCLUDED.country,
		current_score = EXCLUDED.current_score,
		best_score = GREATEST(score_records.best_score, EXCLUDED.best_score),
		updated_at = now()
	RETURNING ` + recordColumns + `
)
SELECT u.*, p.best_score AS prior_best FROM upserted u LEFT JOIN prior p ON TRUE;`

	var (
		res UpsertResult
		r   = &res.Record
	)
	err := s.db.QueryRow(ctx, stmt,
		sub.ParticipantID, sub.DisplayName, sub.ImageRef, sub.Country, sub.Score,
	).Scan(
		&r.ParticipantID, &r.DisplayName, &r.ImageRef, &r.Country,
		&r.CurrentScore, &r.BestScore, &r.CreatedAt, &r.UpdatedAt,
		&res.PriorBest,
	)
	if err != nil {
		return nil, wrapErr("upsert", sub.ParticipantID, err)
	}

	return &res, nil
}

// ListAll scans every record ordered by best_score. The default order is
// descending, which is the leaderboard order.
func (s *Store) ListAll(ctx context.Context, ord Order) ([]domain.ScoreRecord, error) {
	stmt := `SELECT ` + recordColumns + ` FROM score_records ORDER BY best_score DESC, participant_id DESC;`
	if ord == OrderBestScoreAsc {
		stmt = `SELECT ` + recordColumns + ` FROM score_records ORDER BY best_score ASC, participant_id ASC;`
	}

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, wrapErr("list", "", err)
	}

	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ScoreRecord, error) {
		var rec domain.ScoreRecord
		err := row.Scan(&rec.ParticipantID, &rec.DisplayName, &rec.ImageRef, &rec.Country,
			&rec.CurrentScore, &rec.BestScore, &rec.CreatedAt, &rec.UpdatedAt)
		return rec, err
	})
	if err != nil {
		return nil, wrapErr("list", "", err)
	}

	return recs, nil
}

// Count returns the number of score records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM score_records;`).Scan(&n); err != nil {
		return 0, wrapErr("count", "", err)
	}

	return n, nil
}

// DeleteAll wipes every record and reports how many were removed.
// Administrative use only.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM score_records;`)
	if err != nil {
		return 0, wrapErr("delete_all", "", err)
	}

	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*domain.ScoreRecord, error) {
	var rec domain.ScoreRecord
	err := row.Scan(&rec.ParticipantID, &rec.DisplayName, &rec.ImageRef, &rec.Country,
		&rec.CurrentScore, &rec.BestScore, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func wrapErr(op, participantID string, err error) error {
	return WrapErr("store: "+op, participantID, err)
}

// WrapErr classifies a Postgres failure: timeouts and cancellations
// become retryable Unavailable errors, everything else is Internal. The
// other persistence layers share it so the whole service speaks one
// error taxonomy.
func WrapErr(op, key string, err error) error {
	msg := fmt.Sprintf("%s failed", op)
	if key != "" {
		msg = fmt.Sprintf("%s failed: key=%s", op, key)
	}

	if pgconn.Timeout(err) || stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.New(errors.CodeUnavailable, errors.WithMessagef("%s", msg), errors.WithCause(err))
	}

	return errors.New(errors.CodeInternal, errors.WithMessagef("%s", msg), errors.WithCause(err))
}
