package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sitework/internal/docstore"
	"sitework/internal/domain"
	"sitework/internal/events"
)

type intervalOp func(log []*domain.TimeInterval, now string) ([]*domain.TimeInterval, bool)

// StartShift opens an interval on every selected task and subtask across the
// documents in scope. Leaves already running are left untouched, so repeated
// starts are idempotent.
func (e Engine) StartShift(ctx context.Context, scope Scope, taskIDs, subtaskIDs []string) error {
	return e.applyShift(ctx, scope, taskIDs, subtaskIDs, "shift.start", startIntervals)
}

// StopShift closes the trailing open interval of every selected leaf.
// Stopping leaves that are not running is a no-op.
func (e Engine) StopShift(ctx context.Context, scope Scope, taskIDs, subtaskIDs []string) error {
	return e.applyShift(ctx, scope, taskIDs, subtaskIDs, "shift.stop", stopIntervals)
}

func (e Engine) applyShift(ctx context.Context, scope Scope, taskIDs, subtaskIDs []string, evtType string, op intervalOp) error {
	if len(taskIDs) == 0 && len(subtaskIDs) == 0 {
		return ErrEmptySelection
	}
	docs, err := e.Store.Query(ctx, docstore.Projects, docstore.Filter{
		ForemanID: scope.ForemanID,
		ProjectID: scope.ProjectID,
	})
	if err != nil {
		return err
	}
	tasks := toSet(taskIDs)
	subs := toSet(subtaskIDs)
	var errs []error
	for _, d := range docs {
		changed := false
		err := e.rewrite(ctx, docstore.Projects, d.ID, func(raw json.RawMessage) (json.RawMessage, bool, error) {
			var p domain.Project
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, false, fmt.Errorf("decode project %s: %w", d.ID, err)
			}
			now := e.nowRFC3339()
			changed = false
			walkLeaves(&p, func(l Leaf) bool {
				if !leafSelected(l, tasks, subs) {
					return true
				}
				if next, c := op(l.Intervals(), now); c {
					l.setIntervals(next)
					changed = true
				}
				return true
			})
			if !changed {
				return nil, false, nil
			}
			next, err := json.Marshal(&p)
			if err != nil {
				return nil, false, err
			}
			return next, true, nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", d.ID, err))
			continue
		}
		if changed {
			if err := e.appendEvent(ctx, evtType, d.ID, "project", d.ID, scope.ForemanID, events.EventPayload{
				"task_ids":    taskIDs,
				"subtask_ids": subtaskIDs,
			}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// leafSelected matches subtask leaves against the subtask selection and task
// leaves against the task selection, never across.
func leafSelected(l Leaf, tasks, subs map[string]struct{}) bool {
	if l.Subtask != nil {
		_, ok := subs[l.Subtask.SubtaskID]
		return ok
	}
	_, ok := tasks[l.Task.TaskID]
	return ok
}
