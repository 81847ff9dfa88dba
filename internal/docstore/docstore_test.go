package docstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sitework/internal/db"
	"sitework/internal/docstore"
	"sitework/internal/migrate"
)

func newTestStore(t *testing.T) (docstore.Store, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return docstore.Store{DB: conn}, context.Background()
}

func put(t *testing.T, s docstore.Store, ctx context.Context, id string, doc string, version int64) int64 {
	t.Helper()
	v, err := s.Put(ctx, docstore.Projects, id, json.RawMessage(doc), version)
	if err != nil {
		t.Fatalf("put %s: %v", id, err)
	}
	return v
}

func TestPutAndGet(t *testing.T) {
	s, ctx := newTestStore(t)
	v := put(t, s, ctx, "p1", `{"project_id":"p1","foreman_id":"f1"}`, 0)
	if v != 1 {
		t.Fatalf("expected version 1 after insert, got %d", v)
	}
	doc, version, err := s.Get(ctx, docstore.Projects, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["foreman_id"] != "f1" {
		t.Fatalf("unexpected doc %v", m)
	}
}

func TestGetMissing(t *testing.T) {
	s, ctx := newTestStore(t)
	if _, _, err := s.Get(ctx, docstore.Projects, "ghost"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertConflict(t *testing.T) {
	s, ctx := newTestStore(t)
	put(t, s, ctx, "p1", `{"project_id":"p1"}`, 0)
	if _, err := s.Put(ctx, docstore.Projects, "p1", json.RawMessage(`{}`), 0); !errors.Is(err, docstore.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on re-insert, got %v", err)
	}
}

func TestCompareAndSwap(t *testing.T) {
	s, ctx := newTestStore(t)
	put(t, s, ctx, "p1", `{"n":1}`, 0)
	v := put(t, s, ctx, "p1", `{"n":2}`, 1)
	if v != 2 {
		t.Fatalf("expected version 2, got %d", v)
	}
	// stale version rejected
	if _, err := s.Put(ctx, docstore.Projects, "p1", json.RawMessage(`{"n":3}`), 1); !errors.Is(err, docstore.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	// update against a missing document
	if _, err := s.Put(ctx, docstore.Projects, "ghost", json.RawMessage(`{}`), 5); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	doc, _, err := s.Get(ctx, docstore.Projects, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(doc, &m)
	if m["n"] != float64(2) {
		t.Fatalf("stale write went through: %v", m)
	}
}

func TestQueryFilters(t *testing.T) {
	s, ctx := newTestStore(t)
	// distinct created_at timestamps keep the newest-first order deterministic
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, doc := range []string{
		`{"project_id":"p1","foreman_id":"f1"}`,
		`{"project_id":"p2","foreman_id":"f1"}`,
		`{"project_id":"p3","foreman_id":"f2"}`,
	} {
		offset := time.Duration(i) * time.Minute
		s.Now = func() time.Time { return base.Add(offset) }
		var m map[string]any
		_ = json.Unmarshal([]byte(doc), &m)
		put(t, s, ctx, m["project_id"].(string), doc, 0)
	}

	docs, err := s.Query(ctx, docstore.Projects, docstore.Filter{ForemanID: "f1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs for f1, got %d", len(docs))
	}
	if docs[0].ID != "p2" || docs[1].ID != "p1" {
		t.Fatalf("expected newest first, got %s then %s", docs[0].ID, docs[1].ID)
	}

	docs, err = s.Query(ctx, docstore.Projects, docstore.Filter{ForemanID: "f1", ProjectID: "p1"})
	if err != nil || len(docs) != 1 || docs[0].ID != "p1" {
		t.Fatalf("combined filter failed: %v %v", docs, err)
	}

	docs, err = s.Query(ctx, docstore.Projects, docstore.Filter{Size: 1})
	if err != nil || len(docs) != 1 {
		t.Fatalf("size limit failed: %v %v", docs, err)
	}
}

func TestQueryProjectsFields(t *testing.T) {
	s, ctx := newTestStore(t)
	put(t, s, ctx, "p1", `{"project_id":"p1","foreman_id":"f1","project_name":"Riverside","work_stages":[]}`, 0)

	docs, err := s.Query(ctx, docstore.Projects, docstore.Filter{
		ForemanID: "f1",
		Fields:    []string{"project_id", "project_name"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(docs[0].Doc, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(m) != 2 || m["project_name"] != "Riverside" {
		t.Fatalf("projection failed: %v", m)
	}
	if _, present := m["foreman_id"]; present {
		t.Fatalf("unprojected field leaked: %v", m)
	}
}
