package engine

import (
	"testing"

	"sitework/internal/domain"
)

func projectWithIntervals(intervals ...*domain.TimeInterval) *domain.Project {
	return &domain.Project{
		ProjectID:   "p1",
		ProjectName: "Riverside",
		WorkStages: []*domain.WorkStage{{
			StageID: "s1",
			WorkKinds: []*domain.WorkKind{{
				WorkKindID: "k1",
				WorkTypes: []*domain.WorkType{{
					WorkTypeID: "w1",
					Tasks: []*domain.Task{{
						TaskID:        "t1",
						TimeIntervals: intervals,
					}},
				}},
			}},
		}},
	}
}

func TestFlattenHistorySortsByStartTime(t *testing.T) {
	entries := flattenHistory([]*domain.Project{projectWithIntervals(
		closed("2024-05-02T08:00:00Z", "2024-05-02T16:00:00Z"),
		closed("2024-05-01T08:00:00Z", "2024-05-01T16:00:00Z"),
		&domain.TimeInterval{Status: domain.IntervalActive}, // no start time recorded
	)})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].StartTime != "" {
		t.Fatalf("entries without start time must sort first, got %q", entries[0].StartTime)
	}
	if entries[1].StartTime != "2024-05-01T08:00:00Z" || entries[2].StartTime != "2024-05-02T08:00:00Z" {
		t.Fatalf("wrong order: %q then %q", entries[1].StartTime, entries[2].StartTime)
	}
}

func TestFlattenHistorySubtaskContext(t *testing.T) {
	p := projectWithIntervals()
	task := p.WorkStages[0].WorkKinds[0].WorkTypes[0].Tasks[0]
	task.Subtasks = []*domain.Subtask{{
		SubtaskID:     "st1",
		SubtaskName:   "Trench",
		TimeIntervals: []*domain.TimeInterval{closed("2024-05-01T08:00:00Z", "2024-05-01T12:00:00Z")},
	}}
	entries := flattenHistory([]*domain.Project{p})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Type != "subtask" || e.SubtaskID != "st1" || e.TaskID != "t1" {
		t.Fatalf("missing subtask context: %+v", e)
	}
	if e.WorkKindID != "k1" || e.WorkTypeID != "w1" || e.ProjectName != "Riverside" {
		t.Fatalf("missing ancestor context: %+v", e)
	}
	if e.Status != domain.IntervalClosed {
		t.Fatalf("interval status lost: %+v", e)
	}
}

func TestFlattenHistoryEmpty(t *testing.T) {
	entries := flattenHistory(nil)
	if entries == nil || len(entries) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", entries)
	}
}

func TestDeriveStatus(t *testing.T) {
	if s := deriveStatus(nil); s != domain.StatusNotWorking {
		t.Fatalf("empty set: got %s", s)
	}
	allClosed := projectWithIntervals(closed("2024-05-01T08:00:00Z", "2024-05-01T16:00:00Z"))
	if s := deriveStatus([]*domain.Project{allClosed}); s != domain.StatusNotWorking {
		t.Fatalf("closed log: got %s", s)
	}
	open := projectWithIntervals(
		closed("2024-05-01T08:00:00Z", "2024-05-01T16:00:00Z"),
		&domain.TimeInterval{StartTime: "2024-05-02T08:00:00Z", Status: domain.IntervalActive},
	)
	if s := deriveStatus([]*domain.Project{allClosed, open}); s != domain.StatusWorking {
		t.Fatalf("open log: got %s", s)
	}
}
