package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, job_key, kind, fire_at, payload, state, attempts, last_error, locked_until, created_at, updated_at`

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var payload []byte

	err := row.Scan(
		&j.ID,
		&j.Key,
		&j.Kind,
		&j.FireAt,
		&payload,
		&j.State,
		&j.Attempts,
		&j.LastError,
		&j.LockedUntil,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	j.Payload = payload
	return &j, nil
}

func (s *PgStore) Enqueue(ctx context.Context, job Job) (bool, error) {
	if len(job.Payload) == 0 {
		job.Payload = []byte("{}")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, job_key, kind, fire_at, payload, state, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, now(), now())
		ON CONFLICT (job_key) DO NOTHING
	`, job.ID, job.Key, job.Kind, job.FireAt, []byte(job.Payload))
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", job.Key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM scheduled_jobs
			WHERE (state = 'pending' AND fire_at <= $1)
			   OR (state = 'running' AND locked_until < $1)
			ORDER BY fire_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_jobs j
		SET state = 'running',
		    attempts = j.attempts + 1,
		    locked_until = $3,
		    updated_at = $1
		FROM due
		WHERE j.id = due.id
		RETURNING j.id, j.job_key, j.kind, j.fire_at, j.payload, j.state, j.attempts,
		          j.last_error, j.locked_until, j.created_at, j.updated_at
	`, now, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	var result []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *j)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.exec(ctx, `
		UPDATE scheduled_jobs
		SET state = 'done', locked_until = NULL, updated_at = $2
		WHERE id = $1
	`, id, at)
}

func (s *PgStore) Retry(ctx context.Context, id uuid.UUID, at, next time.Time, reason string) error {
	return s.exec(ctx, `
		UPDATE scheduled_jobs
		SET state = 'pending', fire_at = $3, last_error = $4, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`, id, at, next, reason)
}

func (s *PgStore) Fail(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	return s.exec(ctx, `
		UPDATE scheduled_jobs
		SET state = 'failed', last_error = $3, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`, id, at, reason)
}

func (s *PgStore) GetByKey(ctx context.Context, key string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE job_key = $1`, key)
	return scanJob(row)
}

func (s *PgStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
