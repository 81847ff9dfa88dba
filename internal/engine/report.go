package engine

import (
	"context"
	"encoding/json"
	"errors"

	"sitework/internal/docstore"
	"sitework/internal/domain"
	"sitework/internal/events"
)

// Structured result codes for targeted document mutations. Each code names
// the first level of the hierarchy that failed to resolve.
const (
	ResultOK               = "ok"
	ResultNotFound         = "not_found"
	ResultStageNotFound    = "stage_not_found"
	ResultWorkKindNotFound = "work_kind_not_found"
	ResultWorkTypeNotFound = "work_type_not_found"
	ResultTaskNotFound     = "task_not_found"
	ResultSubtaskNotFound  = "subtask_not_found"
)

// defaultLinkTitle substitutes for links uploaded without a title.
const defaultLinkTitle = "File"

// OperationResult is the structured outcome of a targeted mutation. Missing
// hierarchy levels are results, not errors.
type OperationResult struct {
	Result    string `json:"result"`
	ProjectID string `json:"project_id,omitempty"`
}

func (r OperationResult) OK() bool { return r.Result == ResultOK }

// ReportTarget addresses one subtask by its full ancestor path. WorkKindID
// may be empty for documents in the flat legacy shape.
type ReportTarget struct {
	StageID    string
	WorkKindID string
	WorkTypeID string
	TaskID     string
	SubtaskID  string
}

// AttachReportLinks appends link metadata to the addressed subtask,
// preserving any links already there, and rewrites the document under
// optimistic concurrency.
func (e Engine) AttachReportLinks(ctx context.Context, projectID string, target ReportTarget, links []domain.ReportLink, actorID string) (OperationResult, error) {
	result := OperationResult{Result: ResultOK, ProjectID: projectID}
	err := e.rewrite(ctx, docstore.Projects, projectID, func(raw json.RawMessage) (json.RawMessage, bool, error) {
		var p domain.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, false, err
		}
		sub, res := findSubtask(&p, target)
		result.Result = res
		if res != ResultOK {
			return nil, false, nil
		}
		for _, link := range links {
			if link.Title == "" {
				link.Title = defaultLinkTitle
			}
			sub.ReportLinks = append(sub.ReportLinks, link)
		}
		next, err := json.Marshal(&p)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		result.Result = ResultNotFound
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if result.OK() {
		if err := e.appendEvent(ctx, "report.attach", projectID, "subtask", target.SubtaskID, actorID, events.EventPayload{
			"links": len(links),
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// findSubtask resolves a target path level by level, reporting the first
// level that does not match. Stages carrying work kinds require a kind id;
// flat legacy stages are addressed with an empty one.
func findSubtask(p *domain.Project, t ReportTarget) (*domain.Subtask, string) {
	var stage *domain.WorkStage
	for _, s := range p.WorkStages {
		if s != nil && s.StageID == t.StageID {
			stage = s
			break
		}
	}
	if stage == nil {
		return nil, ResultStageNotFound
	}
	var types []*domain.WorkType
	switch {
	case len(stage.WorkKinds) > 0:
		var kind *domain.WorkKind
		for _, k := range stage.WorkKinds {
			if k != nil && k.WorkKindID == t.WorkKindID {
				kind = k
				break
			}
		}
		if kind == nil {
			return nil, ResultWorkKindNotFound
		}
		types = kind.WorkTypes
	case t.WorkKindID == "":
		types = stage.WorkTypes
	default:
		return nil, ResultWorkKindNotFound
	}
	var wt *domain.WorkType
	for _, w := range types {
		if w != nil && w.WorkTypeID == t.WorkTypeID {
			wt = w
			break
		}
	}
	if wt == nil {
		return nil, ResultWorkTypeNotFound
	}
	var task *domain.Task
	for _, tk := range wt.Tasks {
		if tk != nil && tk.TaskID == t.TaskID {
			task = tk
			break
		}
	}
	if task == nil {
		return nil, ResultTaskNotFound
	}
	for _, sub := range task.Subtasks {
		if sub != nil && sub.SubtaskID == t.SubtaskID {
			return sub, ResultOK
		}
	}
	return nil, ResultSubtaskNotFound
}
