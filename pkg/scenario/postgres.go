package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores tests in a single table. The schema is created on first
// connect so a fresh database works without migration tooling.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS tests (
	id         TEXT PRIMARY KEY,
	persona    TEXT NOT NULL,
	behavior   TEXT NOT NULL,
	question   TEXT NOT NULL,
	expected   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgres connects a pool and ensures the schema exists.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("scenario: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("scenario: ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Create(ctx context.Context, t *Test) error {
	if t.ID == "" {
		return ErrMissingID
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := p.pool.Exec(ctx,
		`INSERT INTO tests (id, persona, behavior, question, expected, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Persona, t.Behavior, t.Question, t.Expected, string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("scenario: create %s: %w", t.ID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*Test, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, persona, behavior, question, expected, status, created_at, updated_at
		 FROM tests WHERE id = $1`, id)
	t, err := scanTest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scenario: get %s: %w", id, err)
	}
	return t, nil
}

func (p *Postgres) List(ctx context.Context) ([]*Test, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, persona, behavior, question, expected, status, created_at, updated_at
		 FROM tests ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("scenario: list: %w", err)
	}
	defer rows.Close()

	var tests []*Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("scenario: list scan: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, status Status) error {
	cur, err := p.Get(ctx, id)
	if err != nil {
		return err
	}
	if !validTransition(cur.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrBadStatus, cur.Status, status)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE tests SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, string(status), string(cur.Status))
	if err != nil {
		return fmt.Errorf("scenario: update %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s changed concurrently", ErrBadStatus, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (*Test, error) {
	var t Test
	var status string
	if err := row.Scan(&t.ID, &t.Persona, &t.Behavior, &t.Question, &t.Expected,
		&status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}
