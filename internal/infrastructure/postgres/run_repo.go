package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultListLimit = 50

const runSchema = `
	CREATE TABLE IF NOT EXISTS job_runs (
		id           UUID        PRIMARY KEY,
		job_id       TEXT        NOT NULL,
		attempt      INT         NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		ended_at     TIMESTAMPTZ NOT NULL,
		outcome      TEXT        NOT NULL,
		error        TEXT,
		records      BIGINT      NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS job_runs_job_id_started_at_idx ON job_runs (job_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS job_runs_ended_at_idx ON job_runs (ended_at);`

type rowScanner interface {
	Scan(dest ...any) error
}

// RunRepository keeps job run history in the job_runs table.
type RunRepository struct {
	pool *pgxpool.Pool
}

var _ repository.RunRepository = (*RunRepository)(nil)

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// EnsureSchema creates the job_runs table and its indexes if missing.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, runSchema); err != nil {
		return fmt.Errorf("ensure job_runs schema: %w", err)
	}
	return nil
}

func (r *RunRepository) Create(ctx context.Context, run *domain.JobRun) error {
	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO job_runs (id, job_id, attempt, scheduled_at, started_at, ended_at, outcome, error, records)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.JobID, run.Attempt, run.ScheduledAt, run.StartedAt, run.EndedAt,
		string(run.Outcome), errMsg, run.Records,
	)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

func (r *RunRepository) List(ctx context.Context, input repository.ListRunsInput) ([]*domain.JobRun, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, job_id, attempt, scheduled_at, started_at, ended_at, outcome, error, records
		FROM job_runs
		WHERE ($1 = '' OR job_id = $1)
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, input.JobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.JobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM job_runs
		WHERE id IN (
			SELECT id FROM job_runs
			WHERE ended_at < $1
			ORDER BY ended_at
			LIMIT $2
		)`,
		cutoff, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("delete job runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRun(row rowScanner) (*domain.JobRun, error) {
	var (
		run     domain.JobRun
		outcome string
		errMsg  *string
	)
	err := row.Scan(
		&run.ID, &run.JobID, &run.Attempt, &run.ScheduledAt, &run.StartedAt,
		&run.EndedAt, &outcome, &errMsg, &run.Records,
	)
	if err != nil {
		return nil, fmt.Errorf("scan job run: %w", err)
	}
	run.Outcome = domain.Outcome(outcome)
	if errMsg != nil {
		run.Error = *errMsg
	}
	return &run, nil
}
