package engine

import (
	"context"
	"sort"

	"sitework/internal/docstore"
	"sitework/internal/domain"
)

// flattenHistory emits one record per logged interval across the given
// documents, enriched with ancestor context. Output is sorted ascending by
// start_time with missing start times first; the sort is stable, so
// re-running over the same documents yields the same order.
func flattenHistory(projects []*domain.Project) []domain.ShiftEntry {
	out := []domain.ShiftEntry{}
	for _, p := range projects {
		if p == nil {
			continue
		}
		walkLeaves(p, func(l Leaf) bool {
			base := domain.ShiftEntry{
				Type:         "task",
				ProjectID:    p.ProjectID,
				ProjectName:  p.ProjectName,
				TaskID:       l.Task.TaskID,
				TaskName:     l.Task.TaskName,
				WorkKindID:   l.Ancestors.WorkKindID,
				WorkKindName: l.Ancestors.WorkKindName,
				WorkTypeID:   l.Ancestors.WorkTypeID,
				WorkTypeName: l.Ancestors.WorkTypeName,
			}
			if l.Subtask != nil {
				base.Type = "subtask"
				base.SubtaskID = l.Subtask.SubtaskID
				base.SubtaskName = l.Subtask.SubtaskName
			}
			for _, ti := range l.Intervals() {
				if ti == nil {
					continue
				}
				entry := base
				entry.StartTime = ti.StartTime
				entry.EndTime = ti.EndTime
				entry.Status = ti.Status
				out = append(out, entry)
			}
			return true
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// ShiftHistory returns the flattened interval log for every document in
// scope. A foreman with no documents gets an empty list, not an error.
func (e Engine) ShiftHistory(ctx context.Context, scope Scope) ([]domain.ShiftEntry, error) {
	docs, err := e.Store.Query(ctx, docstore.Projects, docstore.Filter{
		ForemanID: scope.ForemanID,
		ProjectID: scope.ProjectID,
		Fields:    []string{"project_id", "project_name", "work_stages"},
		Size:      e.historySize(),
	})
	if err != nil {
		return nil, err
	}
	projects, err := decodeProjects(docs)
	if err != nil {
		return nil, err
	}
	return flattenHistory(projects), nil
}

// AllShiftHistory groups every logged interval by the foreman owning the
// document. Manager overview.
func (e Engine) AllShiftHistory(ctx context.Context) ([]domain.ForemanShifts, error) {
	docs, err := e.Store.Query(ctx, docstore.Projects, docstore.Filter{
		Fields: []string{"foreman_id", "foreman_email", "work_stages"},
	})
	if err != nil {
		return nil, err
	}
	projects, err := decodeProjects(docs)
	if err != nil {
		return nil, err
	}
	byForeman := map[string]*domain.ForemanShifts{}
	order := []string{}
	for _, p := range projects {
		fs, ok := byForeman[p.ForemanID]
		if !ok {
			fs = &domain.ForemanShifts{
				ForemanID:    p.ForemanID,
				ForemanEmail: p.ForemanEmail,
				Shifts:       []*domain.TimeInterval{},
			}
			byForeman[p.ForemanID] = fs
			order = append(order, p.ForemanID)
		}
		walkLeaves(p, func(l Leaf) bool {
			for _, ti := range l.Intervals() {
				if ti != nil {
					fs.Shifts = append(fs.Shifts, ti)
				}
			}
			return true
		})
	}
	out := make([]domain.ForemanShifts, 0, len(order))
	for _, id := range order {
		out = append(out, *byForeman[id])
	}
	return out, nil
}

func (e Engine) historySize() int {
	if e.Config != nil && e.Config.Shifts.HistorySize > 0 {
		return e.Config.Shifts.HistorySize
	}
	return 50
}
