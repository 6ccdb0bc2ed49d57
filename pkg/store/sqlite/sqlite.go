package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/tapestry/pkg/store"
	"github.com/nstogner/tapestry/pkg/ulid"
)

// Store implements store.DocumentStore using SQLite.
type Store struct {
	db *sql.DB
}

// Verify interface compliance at compile time.
var _ store.DocumentStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		data BLOB NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS revisions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		data BLOB NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		seq INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_revisions_document_seq ON revisions(document_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Create(ctx context.Context, rec *store.Record, data []byte) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Size = len(data)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, data, size, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Name, data, rec.Size, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id ulid.ID) (*store.Record, []byte, error) {
	rec := &store.Record{ID: id}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT name, data, size, created_at, updated_at FROM documents WHERE id = ?`, id.String(),
	).Scan(&rec.Name, &data, &rec.Size, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, data, nil
}

func (s *Store) Save(ctx context.Context, id ulid.ID, data []byte) (*store.Revision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, size = ?, updated_at = ? WHERE id = ?`,
		data, len(data), now, id.String(),
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}

	rev := &store.Revision{
		ID:         uuid.New().String(),
		DocumentID: id,
		Size:       len(data),
		CreatedAt:  now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO revisions (id, document_id, data, size, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, COALESCE((SELECT MAX(seq) FROM revisions WHERE document_id = ?), 0) + 1)`,
		rev.ID, id.String(), data, rev.Size, rev.CreatedAt, id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rev, nil
}

func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, size, created_at, updated_at FROM documents ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []store.Record
	for rows.Next() {
		var rec store.Record
		var id string
		if err := rows.Scan(&id, &rec.Name, &rec.Size, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if rec.ID, err = ulid.Parse(id); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id ulid.ID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	// Cascade covers revisions when foreign keys are enabled; clear them
	// explicitly for databases opened without the pragma.
	_, err = s.db.ExecContext(ctx, `DELETE FROM revisions WHERE document_id = ?`, id.String())
	return err
}

func (s *Store) Revisions(ctx context.Context, id ulid.ID) ([]store.Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, size, created_at FROM revisions WHERE document_id = ? ORDER BY seq DESC`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []store.Revision
	for rows.Next() {
		rev := store.Revision{DocumentID: id}
		if err := rows.Scan(&rev.ID, &rev.Size, &rev.CreatedAt); err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

func (s *Store) Revision(ctx context.Context, id ulid.ID, revisionID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM revisions WHERE document_id = ? AND id = ?`, id.String(), revisionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revision %s of %s: %w", revisionID, id, store.ErrNotFound)
	}
	return data, err
}
