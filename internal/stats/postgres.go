package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the tool_stats table. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS tool_stats (
    tool_name  TEXT PRIMARY KEY,
    call_count BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a Recorder that persists counters in a tool_stats table while
// keeping an in-memory view. Writes are best-effort: a failed upsert is
// logged and the in-memory counter still increments, so the view is
// eventually consistent with storage at worst.
type Postgres struct {
	db     DB
	mem    *Memory
	logger *slog.Logger
}

// Compile-time interface check.
var _ Recorder = (*Postgres)(nil)

// NewPostgres creates a Postgres recorder using the given connection or pool.
// A nil logger falls back to slog.Default. The caller is responsible for
// calling [Postgres.Migrate] before issuing queries.
func NewPostgres(db DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, mem: NewMemory(), logger: logger}
}

// Migrate executes the [Schema] DDL against the database, creating the
// tool_stats table if it does not already exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("stats: migrate: %w", err)
	}
	return nil
}

// Increment implements Recorder. The database upsert is fire-and-forget:
// failures never reach the caller.
func (p *Postgres) Increment(ctx context.Context, tool string) {
	p.mem.Increment(ctx, tool)

	const query = `
		INSERT INTO tool_stats (tool_name, call_count)
		VALUES ($1, 1)
		ON CONFLICT (tool_name) DO UPDATE
		SET call_count = tool_stats.call_count + 1, updated_at = now()`

	if _, err := p.db.Exec(ctx, query, tool); err != nil {
		p.logger.Warn("tool stat increment failed; keeping in-memory count only",
			"tool", tool,
			"error", err,
		)
	}
}

// Snapshot implements Recorder. It reads from the database; if the read
// fails, the in-memory view is returned instead so reporting stays available
// while storage is down.
func (p *Postgres) Snapshot(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT tool_name, call_count
		FROM tool_stats
		ORDER BY call_count DESC, tool_name ASC`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		p.logger.Warn("tool stat snapshot query failed; serving in-memory view", "error", err)
		return p.mem.Snapshot(ctx)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Tool, &e.Count); err != nil {
			return nil, fmt.Errorf("stats: snapshot scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: snapshot: %w", err)
	}
	return entries, nil
}
