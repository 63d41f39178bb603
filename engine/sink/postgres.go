package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/WessleyAI/vinsync/engine/connector"
	"github.com/WessleyAI/vinsync/engine/record"
)

// StateTable holds one checkpoint row per connector.
const StateTable = "vinsync_state"

// execer is the part of *sqlx.DB used by PostgresSink.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

var _ execer = (*sqlx.DB)(nil)

// PostgresSink upserts rows into one table per record.Table and keeps the
// last checkpoint in StateTable.
type PostgresSink struct {
	db        execer
	connector string
	upserts   map[string]string
}

// OpenPostgres connects to dsn with the lib/pq driver.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// NewPostgresSink writes through db. name keys the checkpoint row.
func NewPostgresSink(db execer, name string) *PostgresSink {
	s := &PostgresSink{db: db, connector: name, upserts: make(map[string]string)}
	for _, t := range record.Tables {
		s.upserts[t.Name] = UpsertSQL(t)
	}
	return s
}

func sqlType(t string) string {
	if t == record.TypeInt {
		return "INTEGER"
	}
	return "TEXT"
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = pq.QuoteIdentifier(n)
	}
	return out
}

// CreateTableSQL renders the DDL for t. Key columns are NOT NULL.
func CreateTableSQL(t record.Table) string {
	cols := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := pq.QuoteIdentifier(c.Name) + " " + sqlType(c.Type)
		if t.IsKey(c.Name) {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	cols = append(cols, "PRIMARY KEY ("+strings.Join(quoteAll(t.PrimaryKey), ", ")+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", pq.QuoteIdentifier(t.Name), strings.Join(cols, ",\n\t"))
}

// UpsertSQL renders a named INSERT ... ON CONFLICT DO UPDATE for t.
func UpsertSQL(t record.Table) string {
	names := t.ColumnNames()
	binds := make([]string, len(names))
	var sets []string
	for i, n := range names {
		binds[i] = ":" + n
		if !t.IsKey(n) {
			q := pq.QuoteIdentifier(n)
			sets = append(sets, q+" = EXCLUDED."+q)
		}
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		pq.QuoteIdentifier(t.Name),
		strings.Join(quoteAll(names), ", "),
		strings.Join(binds, ", "),
		strings.Join(quoteAll(t.PrimaryKey), ", "),
		action)
}

var stateDDL = `CREATE TABLE IF NOT EXISTS ` + StateTable + ` (
	connector TEXT PRIMARY KEY,
	state JSONB NOT NULL,
	run_id TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const stateUpsert = `INSERT INTO ` + StateTable + ` (connector, state, run_id, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (connector) DO UPDATE SET state = EXCLUDED.state, run_id = EXCLUDED.run_id, updated_at = now()`

// EnsureTables creates tables and the state table when missing.
func (s *PostgresSink) EnsureTables(ctx context.Context, tables []record.Table) error {
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, CreateTableSQL(t)); err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, stateDDL); err != nil {
		return fmt.Errorf("create %s: %w", StateTable, err)
	}
	return nil
}

func (s *PostgresSink) Emit(ctx context.Context, op connector.Operation) error {
	switch op.Type {
	case connector.OpUpsert:
		q, ok := s.upserts[op.Table]
		if !ok {
			return fmt.Errorf("postgres sink: unknown table %q", op.Table)
		}
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any(op.Data)); err != nil {
			return fmt.Errorf("upsert %s: %w", op.Table, err)
		}
		return nil
	case connector.OpCheckpoint:
		state, err := json.Marshal(op.State)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, stateUpsert, s.connector, string(state), op.RunID); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("postgres sink: %w %q", ErrUnknownOp, op.Type)
	}
}
