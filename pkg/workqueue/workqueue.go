// Package workqueue keeps a Postgres record of applied assignments. The
// record is observational: nothing consults it during reviewer selection
// today, but it is the substrate a future capacity filter would read.
package workqueue

import (
	"context"
	"fmt"

	"github.com/codeGROOVE-dev/auto-assign/pkg/types"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const schema = `
CREATE TABLE IF NOT EXISTS review_assignments (
	id          BIGSERIAL PRIMARY KEY,
	org         TEXT        NOT NULL,
	repo        TEXT        NOT NULL,
	number      BIGINT      NOT NULL,
	assignee    TEXT        NOT NULL,
	source      TEXT        NOT NULL,
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	released_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS review_assignments_open_idx
	ON review_assignments (assignee) WHERE released_at IS NULL;
`

// Queue records assignments in Postgres.
type Queue struct {
	db *sqlx.DB
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Queue, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to work queue database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure work queue schema: %w", err)
	}
	return &Queue{db: db}, nil
}

// Close releases the database connection.
func (q *Queue) Close() error {
	return q.db.Close()
}

// RecordAssignment stores one applied assignment.
func (q *Queue) RecordAssignment(ctx context.Context, issue *types.Issue, login string, source types.ResolutionSource) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO review_assignments (org, repo, number, assignee, source) VALUES ($1, $2, $3, $4, $5)`,
		issue.Org, issue.Repo, issue.Number, login, source.String())
	if err != nil {
		return fmt.Errorf("failed to record assignment: %w", err)
	}
	return nil
}

// RecordRelease marks the user's open assignments on the issue as released.
func (q *Queue) RecordRelease(ctx context.Context, issue *types.Issue, login string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE review_assignments SET released_at = now()
		 WHERE org = $1 AND repo = $2 AND number = $3 AND assignee = $4 AND released_at IS NULL`,
		issue.Org, issue.Repo, issue.Number, login)
	if err != nil {
		return fmt.Errorf("failed to record release: %w", err)
	}
	return nil
}

// OpenAssignments returns how many unreleased assignments a user carries.
// A future capacity filter would compare this against a per-user limit.
func (q *Queue) OpenAssignments(ctx context.Context, login string) (int, error) {
	var count int
	err := q.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM review_assignments WHERE assignee = $1 AND released_at IS NULL`, login)
	if err != nil {
		return 0, fmt.Errorf("failed to count open assignments: %w", err)
	}
	return count, nil
}
