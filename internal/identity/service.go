// Package identity owns the user records the leaderboard joins against.
// Users share their id space with score-record participant ids.
package identity

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eduboard/backend/internal/domain"
	"github.com/eduboard/backend/internal/errors"
	"github.com/eduboard/backend/internal/store"
)

const codeUniqueViolation = "23505"

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

type CreateUserRequest struct {
	// ID is optional; a v7 UUID is generated when empty.
	ID      string
	Name    string
	Country string
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	if req.Name == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("create user: name is required"))
	}

	id := req.ID
	if id == "" {
		uid, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate user id: %w", err)
		}
		id = uid.String()
	}

	const stmt = `
INSERT INTO users (id, name, country)
VALUES ($1, $2, $3)
RETURNING id, name, country, created_at, updated_at;`

	var u domain.User
	err := s.db.QueryRow(ctx, stmt, id, req.Name, req.Country).
		Scan(&u.ID, &u.Name, &u.Country, &u.CreatedAt, &u.UpdatedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("user already exists: id=%s", id),
			errors.WithCause(err))
	}
	if err != nil {
		return nil, store.WrapErr("identity: insert user", id, err)
	}

	return &u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	const stmt = `SELECT id, name, country, created_at, updated_at FROM users WHERE id = $1;`

	var u domain.User
	err := s.db.QueryRow(ctx, stmt, id).
		Scan(&u.ID, &u.Name, &u.Country, &u.CreatedAt, &u.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: id=%s", id))
	}
	if err != nil {
		return nil, store.WrapErr("identity: get user", id, err)
	}

	return &u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	const stmt = `SELECT id, name, country, created_at, updated_at FROM users ORDER BY created_at;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, store.WrapErr("identity: list users", "", err)
	}

	users, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.User, error) {
		var u domain.User
		err := r.Scan(&u.ID, &u.Name, &u.Country, &u.CreatedAt, &u.UpdatedAt)
		return u, err
	})
	if err != nil {
		return nil, store.WrapErr("identity: list users", "", err)
	}

	return users, nil
}

// Lookup resolves a batch of participant ids in one round trip. Ids with
// no user record are simply absent from the result map.
func (s *Service) Lookup(ctx context.Context, ids []string) (map[string]domain.User, error) {
	if len(ids) == 0 {
		return map[string]domain.User{}, nil
	}

	const stmt = `SELECT id, name, country, created_at, updated_at FROM users WHERE id = ANY($1);`

	rows, err := s.db.Query(ctx, stmt, ids)
	if err != nil {
		return nil, store.WrapErr("identity: lookup users", "", err)
	}

	users, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.User, error) {
		var u domain.User
		err := r.Scan(&u.ID, &u.Name, &u.Country, &u.CreatedAt, &u.UpdatedAt)
		return u, err
	})
	if err != nil {
		return nil, store.WrapErr("identity: lookup users", "", err)
	}

	m := make(map[string]domain.User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}

	return m, nil
}

// Seed inserts fake users for development environments, skipping ids that
// already exist.
func (s *Service) Seed(ctx context.Context, ids []string) (int, error) {
	created := 0
	for _, id := range ids {
		_, err := s.CreateUser(ctx, CreateUserRequest{
			ID:      id,
			Name:    gofakeit.Name(),
			Country: gofakeit.CountryAbr(),
		})
		if errors.IsCode(err, errors.CodeAlreadyExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}

	slog.InfoContext(ctx, "identity: seeded users", "requested", len(ids), "created", created)
	return created, nil
}
