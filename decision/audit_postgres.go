package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAuditLog durably persists every decision alongside the in-memory
// AuditLog's bounded recent-history view, for installations that need a
// decision trail surviving process restarts. Grounded on the teacher's
// store/postgres.go connection-pool construction pattern
// (pgxpool.New + schema migration on boot).
type PostgresAuditLog struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditLog connects to Postgres and ensures the audit table
// exists.
func NewPostgresAuditLog(ctx context.Context, dsn string) (*PostgresAuditLog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("decision: connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("decision: pinging postgres: %w", err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS decision_audit_log (
	id BIGSERIAL PRIMARY KEY,
	goal_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	decision_type TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	threshold DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL,
	metadata JSONB,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS decision_audit_log_goal_id_idx ON decision_audit_log (goal_id);
CREATE INDEX IF NOT EXISTS decision_audit_log_decision_type_idx ON decision_audit_log (decision_type);
`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("decision: migrating audit schema: %w", err)
	}
	return &PostgresAuditLog{pool: pool}, nil
}

// Record durably inserts a decision.
func (p *PostgresAuditLog) Record(ctx context.Context, d Decision) error {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("decision: encoding metadata: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO decision_audit_log (goal_id, action_type, decision_type, confidence, threshold, reason, metadata, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.GoalID, d.ActionType, string(d.Type), d.Confidence, d.Threshold, d.Reason, metadata, d.Timestamp)
	if err != nil {
		return fmt.Errorf("decision: inserting audit row: %w", err)
	}
	return nil
}

// GetByGoal returns up to limit durable decisions recorded for goalID, most
// recent first.
func (p *PostgresAuditLog) GetByGoal(ctx context.Context, goalID string, limit int) ([]Decision, error) {
	rows, err := p.pool.Query(ctx, `
SELECT action_type, decision_type, confidence, threshold, reason, recorded_at
FROM decision_audit_log WHERE goal_id = $1 ORDER BY recorded_at DESC LIMIT $2`, goalID, limit)
	if err != nil {
		return nil, fmt.Errorf("decision: querying audit rows: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var recordedAt time.Time
		var decisionType string
		if err := rows.Scan(&d.ActionType, &decisionType, &d.Confidence, &d.Threshold, &d.Reason, &recordedAt); err != nil {
			return nil, fmt.Errorf("decision: scanning audit row: %w", err)
		}
		d.GoalID = goalID
		d.Type = Type(decisionType)
		d.Timestamp = recordedAt
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (p *PostgresAuditLog) Close() {
	p.pool.Close()
}
