package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/stojala/internal/db"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite is a Client backed by a SQLite database.
type SQLite struct {
	db     *sql.DB
	broker *broker
	owned  bool
}

var (
	_ Client  = (*SQLite)(nil)
	_ Batcher = (*SQLite)(nil)
)

// NewSQLite wraps an already migrated database. The caller keeps ownership of db.
func NewSQLite(database *sql.DB) *SQLite {
	return &SQLite{db: database, broker: newBroker()}
}

// OpenSQLite opens (creating if needed) and migrates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	s := NewSQLite(database)
	s.owned = true
	return s, nil
}

// Close closes the database if it was opened by OpenSQLite.
func (s *SQLite) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Add creates a document with a new id.
func (s *SQLite) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	id := NewID()
	if err := insertDocument(ctx, s.db, collection, id, data); err != nil {
		return "", err
	}
	s.broker.publish(collection)
	return id, nil
}

// Set creates or replaces a document.
func (s *SQLite) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := upsertDocument(ctx, s.db, collection, id, data); err != nil {
		return err
	}
	s.broker.publish(collection)
	return nil
}

// Get returns a document by id.
func (s *SQLite) Get(ctx context.Context, collection, id string) (*Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	data, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding document %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Data: data}, nil
}

// Update merges data into an existing document.
func (s *SQLite) Update(ctx context.Context, collection, id string, data map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := mergeInto(ctx, tx, collection, id, data); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	s.broker.publish(collection)
	return nil
}

// Delete removes a document.
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	s.broker.publish(collection)
	return nil
}

// Query returns the documents of a collection, filtered and ordered.
func (s *SQLite) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY seq`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		data, err := decodeDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding document %s/%s: %w", collection, id, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}

	return apply(docs, q), nil
}

// Watch streams snapshots of a query until ctx is done.
func (s *SQLite) Watch(ctx context.Context, collection string, q Query) (<-chan Snapshot, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return s.broker.watch(ctx, collection, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}), nil
}

// Batch applies ops in a single transaction.
func (s *SQLite) Batch(ctx context.Context, ops []Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for i, op := range ops {
		err := checkStored(ctx, tx, op)
		if err != nil {
			return fmt.Errorf("batch op %d: %w", i, err)
		}
		switch op.Kind {
		case OpSet:
			err = upsertDocument(ctx, tx, op.Collection, op.ID, op.Data)
		case OpUpdate:
			err = mergeInto(ctx, tx, op.Collection, op.ID, op.Data)
		case OpDelete:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = ? AND id = ?`,
				op.Collection, op.ID,
			)
		default:
			err = fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("batch op %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	s.broker.publish(collectionsOf(ops)...)
	return nil
}

// checkStored reads the document op targets and verifies op.If.
func checkStored(ctx context.Context, ex execer, op Op) error {
	if len(op.If) == 0 {
		return nil
	}
	var raw []byte
	err := ex.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		op.Collection, op.ID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return checkIf(op, nil, false)
	}
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	return checkIf(op, raw, true)
}

func insertDocument(ctx context.Context, ex execer, collection, id string, data map[string]any) error {
	raw, err := encodeDocument(data)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		collection, id, string(raw),
	)
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	return nil
}

func upsertDocument(ctx context.Context, ex execer, collection, id string, data map[string]any) error {
	raw, err := encodeDocument(data)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		collection, id, string(raw),
	)
	if err != nil {
		return fmt.Errorf("setting document: %w", err)
	}
	return nil
}

func mergeInto(ctx context.Context, ex execer, collection, id string, data map[string]any) error {
	var raw []byte
	err := ex.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("updating %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	merged, err := mergeDocument(raw, data)
	if err != nil {
		return fmt.Errorf("merging document: %w", err)
	}

	_, err = ex.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?`,
		string(merged), collection, id,
	)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	return nil
}
