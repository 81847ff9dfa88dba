package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Collections used by the engine.
const (
	Projects = "projects"
	Brigades = "brigades"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version conflict")
)

// Store is a versioned JSON document store over SQLite. Every write must
// present the version obtained at read time; a stale version is rejected
// with ErrVersionConflict.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

// VersionedDoc pairs a raw document with its current version token.
type VersionedDoc struct {
	ID      string
	Doc     json.RawMessage
	Version int64
}

// Filter narrows Query results by indexed top-level fields. Fields, when
// set, projects the returned documents down to those top-level keys.
type Filter struct {
	ForemanID string
	ProjectID string
	Fields    []string
	Size      int
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get returns the document and its version.
func (s Store) Get(ctx context.Context, collection, id string) (json.RawMessage, int64, error) {
	var (
		doc     string
		version int64
	)
	err := s.DB.QueryRowContext(ctx, `SELECT doc, version FROM documents WHERE collection=? AND id=?`, collection, id).
		Scan(&doc, &version)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return json.RawMessage(doc), version, nil
}

// Put writes a document. Version 0 inserts a new document and conflicts if
// one already exists; any other version performs a compare-and-swap against
// the stored version. Returns the new version.
func (s Store) Put(ctx context.Context, collection, id string, doc json.RawMessage, version int64) (int64, error) {
	now := s.now().UTC().Format(time.RFC3339)
	if version == 0 {
		_, err := s.DB.ExecContext(ctx, `INSERT INTO documents(collection,id,doc,version,created_at,updated_at) VALUES (?,?,?,1,?,?)`,
			collection, id, string(doc), now, now)
		if err != nil {
			if exists, checkErr := s.exists(ctx, collection, id); checkErr == nil && exists {
				return 0, ErrVersionConflict
			}
			return 0, fmt.Errorf("insert document %s/%s: %w", collection, id, err)
		}
		return 1, nil
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE documents SET doc=?, version=version+1, updated_at=? WHERE collection=? AND id=? AND version=?`,
		string(doc), now, collection, id, version)
	if err != nil {
		return 0, fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		exists, err := s.exists(ctx, collection, id)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrVersionConflict
	}
	return version + 1, nil
}

// Query returns documents matching the filter, newest first.
func (s Store) Query(ctx context.Context, collection string, f Filter) ([]VersionedDoc, error) {
	clauses := []string{"collection=?"}
	args := []any{collection}
	if f.ForemanID != "" {
		clauses = append(clauses, "json_extract(doc,'$.foreman_id')=?")
		args = append(args, f.ForemanID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "json_extract(doc,'$.project_id')=?")
		args = append(args, f.ProjectID)
	}
	query := `SELECT id, doc, version FROM documents WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Size > 0 {
		query += " LIMIT ?"
		args = append(args, f.Size)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()
	var res []VersionedDoc
	for rows.Next() {
		var d VersionedDoc
		var doc string
		if err := rows.Scan(&d.ID, &doc, &d.Version); err != nil {
			return nil, err
		}
		d.Doc = json.RawMessage(doc)
		if len(f.Fields) > 0 {
			projected, err := projectFields(d.Doc, f.Fields)
			if err != nil {
				return nil, err
			}
			d.Doc = projected
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (s Store) exists(ctx context.Context, collection, id string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE collection=? AND id=? LIMIT 1`, collection, id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// projectFields keeps only the named top-level keys of a document.
func projectFields(doc json.RawMessage, fields []string) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return json.Marshal(out)
}
