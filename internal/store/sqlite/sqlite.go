// Package sqlite is the local embedded quad store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cayleygraph/quad"
	_ "modernc.org/sqlite"

	"quadmap/internal/store"
)

// execer is the subset of *sql.DB and *sql.Tx the repository needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Repository implements store.Connection using SQLite
type Repository struct {
	db         *sql.DB
	id         string
	autoCommit bool
	tx         *sql.Tx
}

var _ store.Connection = (*Repository)(nil)

// New opens (and migrates) the SQLite database at dbPath. ":memory:" gives a
// private in-memory store.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases and manual transactions coherent.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, id: "sqlite:" + dbPath, autoCommit: true}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS quads (
		subject_kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		predicate TEXT NOT NULL,
		object_kind TEXT NOT NULL,
		object TEXT NOT NULL,
		object_type TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (subject_kind, subject, predicate, object_kind, object, object_type, context)
	);

	CREATE INDEX IF NOT EXISTS idx_quads_predicate ON quads(predicate, object_kind, object);
	CREATE INDEX IF NOT EXISTS idx_quads_object ON quads(object_kind, object);
	CREATE INDEX IF NOT EXISTS idx_quads_context ON quads(context);
	`

	_, err := r.db.Exec(schema)
	return err
}

// ID returns the store identifier used in diagnostics
func (r *Repository) ID() string {
	return r.id
}

// conn returns the open transaction in manual-commit mode, beginning one on
// first use, or the database otherwise.
func (r *Repository) conn(ctx context.Context) (execer, error) {
	if r.autoCommit {
		return r.db, nil
	}
	if r.tx == nil {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, store.Wrap(err, "failed to begin transaction")
		}
		r.tx = tx
	}
	return r.tx, nil
}

// Query returns all quads matching p
func (r *Repository) Query(ctx context.Context, p store.Pattern) ([]quad.Quad, error) {
	where, args, err := patternClause(p)
	if err != nil {
		return nil, err
	}

	ex, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + quadColumns + ` FROM quads`
	if where != "" {
		query += ` WHERE ` + where
	}

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap(err, "failed to query quads")
	}
	defer rows.Close()

	var out []quad.Quad
	for rows.Next() {
		var row quadRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, store.Wrap(err, "failed to scan quad")
		}
		out = append(out, row.toQuad())
	}

	if err := rows.Err(); err != nil {
		return nil, store.Wrap(err, "error iterating quads")
	}
	return out, nil
}

// Add inserts q; an existing identical quad is left untouched
func (r *Repository) Add(ctx context.Context, q quad.Quad) error {
	args, err := quadInsertArgs(q)
	if err != nil {
		return err
	}

	ex, err := r.conn(ctx)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO quads (subject_kind, subject, predicate, object_kind, object, object_type, context)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, args...)
	if err != nil {
		return store.Wrap(err, "failed to add quad")
	}
	return nil
}

// Remove deletes q if present
func (r *Repository) Remove(ctx context.Context, q quad.Quad) error {
	args, err := quadInsertArgs(q)
	if err != nil {
		return err
	}

	ex, err := r.conn(ctx)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, `
		DELETE FROM quads
		WHERE subject_kind = ? AND subject = ? AND predicate = ?
			AND object_kind = ? AND object = ? AND object_type = ? AND context = ?
	`, args...)
	if err != nil {
		return store.Wrap(err, "failed to remove quad")
	}
	return nil
}

// AutoCommit reports whether every write commits immediately
func (r *Repository) AutoCommit() bool {
	return r.autoCommit
}

// SetAutoCommit switches commit mode. Turning auto-commit back on commits
// whatever the open transaction holds.
func (r *Repository) SetAutoCommit(ctx context.Context, on bool) error {
	if on == r.autoCommit {
		return nil
	}
	if on {
		if err := r.Commit(ctx); err != nil {
			return err
		}
	}
	r.autoCommit = on
	return nil
}

// Commit commits the open transaction, if any
func (r *Repository) Commit(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	tx := r.tx
	r.tx = nil
	if err := tx.Commit(); err != nil {
		return store.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// Rollback discards the open transaction, if any
func (r *Repository) Rollback(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	tx := r.tx
	r.tx = nil
	if err := tx.Rollback(); err != nil {
		return store.Wrap(err, "failed to rollback transaction")
	}
	return nil
}

// Count returns the number of stored quads matching p
func (r *Repository) Count(ctx context.Context, p store.Pattern) (int, error) {
	where, args, err := patternClause(p)
	if err != nil {
		return 0, err
	}
	ex, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM quads`
	if where != "" {
		query += ` WHERE ` + where
	}

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, store.Wrap(err, "failed to count quads")
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, store.Wrap(err, "failed to scan count")
		}
	}
	return n, rows.Err()
}

// Close rolls back any open transaction and closes the database connection
func (r *Repository) Close() error {
	if r.tx != nil {
		r.tx.Rollback()
		r.tx = nil
	}
	return r.db.Close()
}

// patternClause renders p as a WHERE clause over the quads table
func patternClause(p store.Pattern) (string, []any, error) {
	var (
		conds []string
		args  []any
	)

	if p.Subject != nil {
		t, err := store.ToTerm(p.Subject)
		if err != nil {
			return "", nil, fmt.Errorf("subject: %w", err)
		}
		conds = append(conds, "subject_kind = ?", "subject = ?")
		args = append(args, string(t.Kind), t.Value)
	}
	if p.Predicate != nil {
		pred, ok := p.Predicate.(quad.IRI)
		if !ok {
			return "", nil, fmt.Errorf("predicate must be an IRI, got %T", p.Predicate)
		}
		conds = append(conds, "predicate = ?")
		args = append(args, string(pred))
	}
	if p.Object != nil {
		t, err := store.ToTerm(p.Object)
		if err != nil {
			return "", nil, fmt.Errorf("object: %w", err)
		}
		conds = append(conds, "object_kind = ?", "object = ?", "object_type = ?")
		args = append(args, string(t.Kind), t.Value, t.Datatype)
	}
	if p.Context != nil {
		c, err := contextValue(p.Context)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, "context = ?")
		args = append(args, c)
	}

	return strings.Join(conds, " AND "), args, nil
}
