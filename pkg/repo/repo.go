// Package repo stores flat property rows identified by a composite key and
// the edges between them.
package repo

import "context"

// Repository upserts keyed rows. label names the row kind and keys names
// the properties that identify a row.
type Repository interface {
	Upsert(ctx context.Context, label string, keys []string, props map[string]any) error
	Link(ctx context.Context, e Edge) error
}

// Edge connects two keyed rows.
type Edge struct {
	FromLabel string
	From      map[string]any
	Rel       string
	ToLabel   string
	To        map[string]any
}
