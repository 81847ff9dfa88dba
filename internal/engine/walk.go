package engine

import "sitework/internal/domain"

// Ancestors carries the identifiers collected on the way down to a leaf.
type Ancestors struct {
	StageID      string
	StageName    string
	WorkKindID   string
	WorkKindName string
	WorkTypeID   string
	WorkTypeName string
}

// Leaf is a task or subtask visited by the walker. Task is always the owning
// task; Subtask is nil for task leaves.
type Leaf struct {
	Task      *domain.Task
	Subtask   *domain.Subtask
	Ancestors Ancestors
}

// Intervals returns the leaf's interval log.
func (l Leaf) Intervals() []*domain.TimeInterval {
	if l.Subtask != nil {
		return l.Subtask.TimeIntervals
	}
	return l.Task.TimeIntervals
}

func (l Leaf) setIntervals(log []*domain.TimeInterval) {
	if l.Subtask != nil {
		l.Subtask.TimeIntervals = log
		return
	}
	l.Task.TimeIntervals = log
}

// walkLeaves visits every task and subtask of a project depth first. Stored
// documents come in three shapes: the current stage -> work_kinds ->
// work_types nesting, an older flat stage -> work_types form, and an
// inverted form where work kinds sit under the type. All three are
// normalized into one ancestor context. Returning false from visit stops
// the walk.
func walkLeaves(p *domain.Project, visit func(Leaf) bool) {
	for _, stage := range p.WorkStages {
		if stage == nil {
			continue
		}
		base := Ancestors{StageID: stage.StageID, StageName: stage.StageName}
		for _, kind := range stage.WorkKinds {
			if kind == nil {
				continue
			}
			kctx := base
			kctx.WorkKindID = kind.WorkKindID
			kctx.WorkKindName = kind.WorkKindName
			for _, wt := range kind.WorkTypes {
				if wt == nil {
					continue
				}
				tctx := kctx
				tctx.WorkTypeID = wt.WorkTypeID
				tctx.WorkTypeName = wt.WorkTypeName
				if !visitTasks(wt.Tasks, tctx, visit) {
					return
				}
			}
			if !visitTasks(kind.Tasks, kctx, visit) {
				return
			}
		}
		for _, wt := range stage.WorkTypes {
			if wt == nil {
				continue
			}
			tctx := base
			tctx.WorkTypeID = wt.WorkTypeID
			tctx.WorkTypeName = wt.WorkTypeName
			if !visitTasks(wt.Tasks, tctx, visit) {
				return
			}
			for _, kind := range wt.WorkKinds {
				if kind == nil {
					continue
				}
				kctx := tctx
				kctx.WorkKindID = kind.WorkKindID
				kctx.WorkKindName = kind.WorkKindName
				if !visitTasks(kind.Tasks, kctx, visit) {
					return
				}
			}
		}
	}
}

func visitTasks(tasks []*domain.Task, anc Ancestors, visit func(Leaf) bool) bool {
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if !visit(Leaf{Task: task, Ancestors: anc}) {
			return false
		}
		for _, sub := range task.Subtasks {
			if sub == nil {
				continue
			}
			if !visit(Leaf{Task: task, Subtask: sub, Ancestors: anc}) {
				return false
			}
		}
	}
	return true
}
