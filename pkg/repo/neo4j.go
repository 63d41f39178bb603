package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Neo4jRepo keeps rows as nodes, merged on their key properties.
type Neo4jRepo struct {
	driver     neo4j.DriverWithContext
	database   string
	newSession func(ctx context.Context) runner // for testing
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption func(*Neo4jRepo)

// WithDatabase selects the target database (default: the server default).
func WithDatabase(name string) Neo4jOption {
	return func(r *Neo4jRepo) { r.database = name }
}

// NewNeo4jRepo creates a Neo4j-backed repository.
func NewNeo4jRepo(driver neo4j.DriverWithContext, opts ...Neo4jOption) *Neo4jRepo {
	r := &Neo4jRepo{driver: driver}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Repository = (*Neo4jRepo)(nil)

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Neo4jRepo) session(ctx context.Context) runner {
	if r.newSession != nil {
		return r.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})}
}

// quote escapes an identifier for use as a label, relationship type or
// property name.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// matchClause renders `{k1: $p.k1, ...}` for the given keys, sorted so the
// generated Cypher is stable.
func matchClause(param string, keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	parts := make([]string, len(sorted))
	for i, k := range sorted {
		parts[i] = fmt.Sprintf("%s: $%s.%s", quote(k), param, quote(k))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// UpsertCypher builds the MERGE statement used by Upsert.
func UpsertCypher(label string, keys []string) string {
	return fmt.Sprintf("MERGE (n:%s %s) SET n += $props", quote(label), matchClause("props", keys))
}

// Upsert merges a node of label on the key properties and overwrites the
// remaining properties. Nil property values are dropped, as Neo4j does
// not store nulls.
func (r *Neo4jRepo) Upsert(ctx context.Context, label string, keys []string, props map[string]any) error {
	if len(keys) == 0 {
		return fmt.Errorf("upsert %s: no key properties", label)
	}
	for _, k := range keys {
		if props[k] == nil {
			return fmt.Errorf("upsert %s: key %q is missing", label, k)
		}
	}
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if v != nil {
			clean[k] = v
		}
	}

	sess := r.session(ctx)
	defer sess.Close(ctx)
	_, err := sess.Run(ctx, UpsertCypher(label, keys), map[string]any{"props": clean})
	return err
}

// Link merges a relationship between two nodes, creating either end if it
// does not exist yet.
func (r *Neo4jRepo) Link(ctx context.Context, e Edge) error {
	cypher := fmt.Sprintf("MERGE (a:%s %s) MERGE (b:%s %s) MERGE (a)-[:%s]->(b)",
		quote(e.FromLabel), matchClause("from", keysOf(e.From)),
		quote(e.ToLabel), matchClause("to", keysOf(e.To)),
		quote(e.Rel))

	sess := r.session(ctx)
	defer sess.Close(ctx)
	_, err := sess.Run(ctx, cypher, map[string]any{"from": e.From, "to": e.To})
	return err
}
