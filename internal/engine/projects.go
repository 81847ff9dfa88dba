package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sitework/internal/docstore"
	"sitework/internal/domain"
	"sitework/internal/events"
)

// ProjectCreateOptions carries the initial fields of a new project document.
type ProjectCreateOptions struct {
	ProjectID    string
	ProjectName  string
	ForemanID    string
	ForemanEmail string
	ActorID      string
}

// CreateProject inserts a new project document with an empty stage list.
// Creating over an existing id is rejected.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.ProjectName == "" {
		return domain.Project{}, errors.New("project_name is required")
	}
	id := opts.ProjectID
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ProjectID:    id,
		ProjectName:  opts.ProjectName,
		ForemanID:    opts.ForemanID,
		ForemanEmail: opts.ForemanEmail,
		WorkStages:   []*domain.WorkStage{},
	}
	raw, err := json.Marshal(&p)
	if err != nil {
		return domain.Project{}, err
	}
	if _, err := e.Store.Put(ctx, docstore.Projects, id, raw, 0); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			return domain.Project{}, fmt.Errorf("project %s already exists", id)
		}
		return domain.Project{}, err
	}
	if err := e.appendEvent(ctx, "project.create", id, "project", id, opts.ActorID, events.EventPayload{
		"project_name": opts.ProjectName,
	}); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// GetProject loads one full project document.
func (e Engine) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	raw, _, err := e.Store.Get(ctx, docstore.Projects, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	var p domain.Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Project{}, fmt.Errorf("decode project %s: %w", projectID, err)
	}
	return p, nil
}

// ListProjects returns id and name of every document owned by a foreman.
// An empty foremanID lists all projects (manager overview).
func (e Engine) ListProjects(ctx context.Context, foremanID string) ([]domain.ProjectSummary, error) {
	docs, err := e.Store.Query(ctx, docstore.Projects, docstore.Filter{
		ForemanID: foremanID,
		Fields:    []string{"project_id", "project_name"},
		Size:      100,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProjectSummary, 0, len(docs))
	for _, d := range docs {
		var s domain.ProjectSummary
		if err := json.Unmarshal(d.Doc, &s); err != nil {
			return nil, err
		}
		if s.ProjectID == "" {
			s.ProjectID = d.ID
		}
		out = append(out, s)
	}
	return out, nil
}

// ListStages returns the stage trees of the documents in scope, in document
// order.
func (e Engine) ListStages(ctx context.Context, scope Scope) ([]*domain.WorkStage, error) {
	docs, err := e.Store.Query(ctx, docstore.Projects, docstore.Filter{
		ForemanID: scope.ForemanID,
		ProjectID: scope.ProjectID,
		Fields:    []string{"work_stages"},
		Size:      100,
	})
	if err != nil {
		return nil, err
	}
	projects, err := decodeProjects(docs)
	if err != nil {
		return nil, err
	}
	stages := []*domain.WorkStage{}
	for _, p := range projects {
		stages = append(stages, p.WorkStages...)
	}
	return stages, nil
}

// ListTasks flattens the documents in scope down to their tasks, subtasks
// included under each task.
func (e Engine) ListTasks(ctx context.Context, scope Scope) ([]*domain.Task, error) {
	docs, err := e.Store.Query(ctx, docstore.Projects, docstore.Filter{
		ForemanID: scope.ForemanID,
		ProjectID: scope.ProjectID,
		Fields:    []string{"work_stages"},
	})
	if err != nil {
		return nil, err
	}
	projects, err := decodeProjects(docs)
	if err != nil {
		return nil, err
	}
	tasks := []*domain.Task{}
	for _, p := range projects {
		walkLeaves(p, func(l Leaf) bool {
			if l.Subtask == nil {
				tasks = append(tasks, l.Task)
			}
			return true
		})
	}
	return tasks, nil
}
