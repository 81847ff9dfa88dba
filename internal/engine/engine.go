package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sitework/internal/brigade"
	"sitework/internal/config"
	"sitework/internal/docstore"
	"sitework/internal/domain"
	"sitework/internal/events"
)

var (
	// ErrEmptySelection is returned when a shift call names no leaves.
	ErrEmptySelection = errors.New("task_ids or subtask_ids required")
	// ErrTooManyConflicts is returned once the optimistic-concurrency
	// retry budget is exhausted. Callers may retry the whole operation.
	ErrTooManyConflicts = errors.New("too many concurrent document updates")
)

// Engine applies all document mutations and projections. It holds no
// per-request state; every operation is read, mutate in memory, write back.
type Engine struct {
	Store    docstore.Store
	Brigades brigade.Service
	Events   events.Writer
	Config   *config.Config
	Now      func() time.Time
	// MaxWriteAttempts bounds version-conflict retries per document.
	MaxWriteAttempts int
}

func New(db *sql.DB, cfg *config.Config) Engine {
	store := docstore.Store{DB: db}
	attempts := 3
	if cfg != nil && cfg.Shifts.MaxWriteAttempts > 0 {
		attempts = cfg.Shifts.MaxWriteAttempts
	}
	return Engine{
		Store:            store,
		Brigades:         brigade.Service{Store: store},
		Events:           events.Writer{DB: db},
		Config:           cfg,
		Now:              time.Now,
		MaxWriteAttempts: attempts,
	}
}

// Scope selects the documents a bulk operation targets.
type Scope struct {
	ForemanID string
	ProjectID string
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) maxAttempts() int {
	if e.MaxWriteAttempts > 0 {
		return e.MaxWriteAttempts
	}
	return 3
}

// rewrite runs one read-modify-write cycle against a document, re-reading
// and re-applying on version conflicts up to the retry budget. The apply
// callback returns the new document body and whether anything changed;
// unchanged documents are never written.
func (e Engine) rewrite(ctx context.Context, collection, id string, apply func(raw json.RawMessage) (json.RawMessage, bool, error)) error {
	for attempt := 0; attempt < e.maxAttempts(); attempt++ {
		raw, version, err := e.Store.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		next, changed, err := apply(raw)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if _, err := e.Store.Put(ctx, collection, id, next, version); err != nil {
			if errors.Is(err, docstore.ErrVersionConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return ErrTooManyConflicts
}

func (e Engine) appendEvent(ctx context.Context, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	if err := e.Events.Append(ctx, evtType, projectID, entityKind, entityID, actorID, payload); err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func decodeProjects(docs []docstore.VersionedDoc) ([]*domain.Project, error) {
	projects := make([]*domain.Project, 0, len(docs))
	for _, d := range docs {
		var p domain.Project
		if err := json.Unmarshal(d.Doc, &p); err != nil {
			return nil, fmt.Errorf("decode project %s: %w", d.ID, err)
		}
		projects = append(projects, &p)
	}
	return projects, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
