package engine

import (
	"context"

	"sitework/internal/docstore"
	"sitework/internal/domain"
)

// deriveStatus reports "working" as soon as any leaf in any document holds
// an open interval, "not_working" otherwise.
func deriveStatus(projects []*domain.Project) string {
	for _, p := range projects {
		if p == nil {
			continue
		}
		working := false
		walkLeaves(p, func(l Leaf) bool {
			for _, ti := range l.Intervals() {
				if ti.Open() {
					working = true
					return false
				}
			}
			return true
		})
		if working {
			return domain.StatusWorking
		}
	}
	return domain.StatusNotWorking
}

// ShiftStatus derives the current shift state from the interval logs of the
// documents in scope. Nothing is stored; the answer is recomputed per call.
func (e Engine) ShiftStatus(ctx context.Context, scope Scope) (string, error) {
	docs, err := e.Store.Query(ctx, docstore.Projects, docstore.Filter{
		ForemanID: scope.ForemanID,
		ProjectID: scope.ProjectID,
		Fields:    []string{"work_stages"},
	})
	if err != nil {
		return "", err
	}
	projects, err := decodeProjects(docs)
	if err != nil {
		return "", err
	}
	return deriveStatus(projects), nil
}
