package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sitework/internal/brigade"
	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/docstore"
	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedProject(t *testing.T, env testEnv, projectID, foremanID string) {
	t.Helper()
	doc := map[string]any{
		"project_id":   projectID,
		"project_name": "Riverside",
		"foreman_id":   foremanID,
		"custom_code":  "A-17",
		"work_stages": []any{
			map[string]any{
				"stage_id":   "s1",
				"stage_name": "Foundation",
				"work_kinds": []any{
					map[string]any{
						"work_kind_id": "k1",
						"work_types": []any{
							map[string]any{
								"work_type_id": "w1",
								"tasks": []any{
									map[string]any{
										"task_id":   "t1",
										"task_name": "Dig",
										"subtasks": []any{
											map[string]any{
												"subtask_id":   "st1",
												"subtask_name": "Trench",
											},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	if _, err := env.Engine.Store.Put(env.Ctx, docstore.Projects, projectID, raw, 0); err != nil {
		t.Fatalf("seed project: %v", err)
	}
}

func loadProject(t *testing.T, env testEnv, projectID string) domain.Project {
	t.Helper()
	p, err := env.Engine.GetProject(env.Ctx, projectID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	return p
}

func docVersion(t *testing.T, env testEnv, projectID string) int64 {
	t.Helper()
	_, version, err := env.Engine.Store.Get(env.Ctx, docstore.Projects, projectID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	return version
}

func firstTask(t *testing.T, p domain.Project) *domain.Task {
	t.Helper()
	return p.WorkStages[0].WorkKinds[0].WorkTypes[0].Tasks[0]
}

func TestStartShiftIdempotent(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	scope := engine.Scope{ForemanID: "f1"}

	if err := env.Engine.StartShift(env.Ctx, scope, []string{"t1"}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	task := firstTask(t, loadProject(t, env, "site-1"))
	if len(task.TimeIntervals) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(task.TimeIntervals))
	}
	if !task.TimeIntervals[0].Open() {
		t.Fatalf("expected open interval")
	}
	if task.TimeIntervals[0].StartTime != "2024-05-01T08:00:00Z" {
		t.Fatalf("unexpected start time %s", task.TimeIntervals[0].StartTime)
	}
	version := docVersion(t, env, "site-1")

	// second start must not append or write
	if err := env.Engine.StartShift(env.Ctx, scope, []string{"t1"}, nil); err != nil {
		t.Fatalf("restart: %v", err)
	}
	task = firstTask(t, loadProject(t, env, "site-1"))
	if len(task.TimeIntervals) != 1 {
		t.Fatalf("expected idempotent start, got %d intervals", len(task.TimeIntervals))
	}
	if v := docVersion(t, env, "site-1"); v != version {
		t.Fatalf("no-op start bumped version %d -> %d", version, v)
	}
}

func TestStopShiftClosesTrailingInterval(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	scope := engine.Scope{ForemanID: "f1"}

	if err := env.Engine.StartShift(env.Ctx, scope, []string{"t1"}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 5, 1, 16, 30, 0, 0, time.UTC) }
	if err := env.Engine.StopShift(env.Ctx, scope, []string{"t1"}, nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	task := firstTask(t, loadProject(t, env, "site-1"))
	ti := task.TimeIntervals[0]
	if ti.Open() {
		t.Fatalf("expected closed interval")
	}
	if ti.EndTime == nil || *ti.EndTime != "2024-05-01T16:30:00Z" {
		t.Fatalf("unexpected end time %v", ti.EndTime)
	}
	if ti.Status != domain.IntervalClosed {
		t.Fatalf("unexpected status %s", ti.Status)
	}
	version := docVersion(t, env, "site-1")

	// stop with nothing open is a no-op
	if err := env.Engine.StopShift(env.Ctx, scope, []string{"t1"}, nil); err != nil {
		t.Fatalf("re-stop: %v", err)
	}
	if v := docVersion(t, env, "site-1"); v != version {
		t.Fatalf("no-op stop bumped version %d -> %d", version, v)
	}
}

func TestShiftSelectionNeverCrossesKinds(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	scope := engine.Scope{ForemanID: "f1"}

	// selecting the subtask id must not touch the task log
	if err := env.Engine.StartShift(env.Ctx, scope, nil, []string{"st1"}); err != nil {
		t.Fatalf("start subtask: %v", err)
	}
	task := firstTask(t, loadProject(t, env, "site-1"))
	if len(task.TimeIntervals) != 0 {
		t.Fatalf("task log touched by subtask selection")
	}
	if len(task.Subtasks[0].TimeIntervals) != 1 {
		t.Fatalf("expected subtask interval")
	}
}

func TestShiftEmptySelection(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	err := env.Engine.StartShift(env.Ctx, engine.Scope{ForemanID: "f1"}, nil, nil)
	if !errors.Is(err, engine.ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

func TestStartShiftUnknownIDsNoop(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	version := docVersion(t, env, "site-1")
	if err := env.Engine.StartShift(env.Ctx, engine.Scope{ForemanID: "f1"}, []string{"nope"}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if v := docVersion(t, env, "site-1"); v != version {
		t.Fatalf("unknown selection wrote document")
	}
}

func TestShiftPreservesUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	if err := env.Engine.StartShift(env.Ctx, engine.Scope{ForemanID: "f1"}, []string{"t1"}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	raw, _, err := env.Engine.Store.Get(env.Ctx, docstore.Projects, "site-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["custom_code"] != "A-17" {
		t.Fatalf("unknown field lost on rewrite: %v", doc["custom_code"])
	}
}

func TestStartShiftLegacyShapes(t *testing.T) {
	env := newTestEnv(t)
	doc := map[string]any{
		"project_id": "site-2",
		"foreman_id": "f2",
		"work_stages": []any{
			// flat legacy shape: stage -> work_types -> tasks
			map[string]any{
				"stage_id": "s1",
				"work_types": []any{
					map[string]any{
						"work_type_id": "w1",
						"tasks":        []any{map[string]any{"task_id": "flat-task"}},
					},
				},
			},
			// inverted shape: work_type -> work_kind -> tasks
			map[string]any{
				"stage_id": "s2",
				"work_types": []any{
					map[string]any{
						"work_type_id": "w2",
						"work_kind": []any{
							map[string]any{
								"work_kind_id": "k2",
								"tasks":        []any{map[string]any{"task_id": "inv-task"}},
							},
						},
					},
				},
			},
		},
	}
	raw, _ := json.Marshal(doc)
	if _, err := env.Engine.Store.Put(env.Ctx, docstore.Projects, "site-2", raw, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := env.Engine.StartShift(env.Ctx, engine.Scope{ForemanID: "f2"}, []string{"flat-task", "inv-task"}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	p := loadProject(t, env, "site-2")
	if n := len(p.WorkStages[0].WorkTypes[0].Tasks[0].TimeIntervals); n != 1 {
		t.Fatalf("flat shape task got %d intervals", n)
	}
	if n := len(p.WorkStages[1].WorkTypes[0].WorkKinds[0].Tasks[0].TimeIntervals); n != 1 {
		t.Fatalf("inverted shape task got %d intervals", n)
	}
}

func TestShiftStatusDerived(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	scope := engine.Scope{ForemanID: "f1"}

	status, err := env.Engine.ShiftStatus(env.Ctx, scope)
	if err != nil || status != domain.StatusNotWorking {
		t.Fatalf("expected not_working, got %s (%v)", status, err)
	}
	if err := env.Engine.StartShift(env.Ctx, scope, []string{"t1"}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	status, err = env.Engine.ShiftStatus(env.Ctx, scope)
	if err != nil || status != domain.StatusWorking {
		t.Fatalf("expected working, got %s (%v)", status, err)
	}
	if err := env.Engine.StopShift(env.Ctx, scope, []string{"t1"}, nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	status, err = env.Engine.ShiftStatus(env.Ctx, scope)
	if err != nil || status != domain.StatusNotWorking {
		t.Fatalf("expected not_working after stop, got %s (%v)", status, err)
	}
}

func TestShiftHistoryFlattened(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	scope := engine.Scope{ForemanID: "f1"}

	if err := env.Engine.StartShift(env.Ctx, scope, []string{"t1"}, []string{"st1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC) }
	if err := env.Engine.StopShift(env.Ctx, scope, []string{"t1"}, []string{"st1"}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	entries, err := env.Engine.ShiftHistory(env.Ctx, scope)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	types := map[string]bool{}
	for _, e := range entries {
		types[e.Type] = true
		if e.ProjectName != "Riverside" || e.TaskID != "t1" {
			t.Fatalf("missing ancestor context: %+v", e)
		}
		if e.EndTime == nil || *e.EndTime != "2024-05-01T16:00:00Z" {
			t.Fatalf("missing end time: %+v", e)
		}
	}
	if !types["task"] || !types["subtask"] {
		t.Fatalf("expected task and subtask entries, got %v", types)
	}

	// a second run over unchanged documents yields the same output
	again, err := env.Engine.ShiftHistory(env.Ctx, scope)
	if err != nil {
		t.Fatalf("history again: %v", err)
	}
	if len(again) != len(entries) {
		t.Fatalf("history not stable")
	}
	for i := range entries {
		if entries[i].Type != again[i].Type || entries[i].StartTime != again[i].StartTime {
			t.Fatalf("history order changed at %d", i)
		}
	}
}

func TestAttachReportLinks(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	target := engine.ReportTarget{
		StageID: "s1", WorkKindID: "k1", WorkTypeID: "w1", TaskID: "t1", SubtaskID: "st1",
	}

	res, err := env.Engine.AttachReportLinks(env.Ctx, "site-1", target,
		[]domain.ReportLink{{Href: "https://files/report1.pdf"}}, "f1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected ok, got %s", res.Result)
	}
	res, err = env.Engine.AttachReportLinks(env.Ctx, "site-1", target,
		[]domain.ReportLink{{Title: "Photos", Href: "https://files/photos.zip"}}, "f1")
	if err != nil || !res.OK() {
		t.Fatalf("second attach: %s (%v)", res.Result, err)
	}

	sub := firstTask(t, loadProject(t, env, "site-1")).Subtasks[0]
	if len(sub.ReportLinks) != 2 {
		t.Fatalf("expected 2 links, got %d", len(sub.ReportLinks))
	}
	if sub.ReportLinks[0].Title != "File" {
		t.Fatalf("expected default title, got %q", sub.ReportLinks[0].Title)
	}
	if sub.ReportLinks[1].Title != "Photos" {
		t.Fatalf("existing link order lost")
	}
}

func TestAttachReportLinksNotFoundCodes(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	base := engine.ReportTarget{
		StageID: "s1", WorkKindID: "k1", WorkTypeID: "w1", TaskID: "t1", SubtaskID: "st1",
	}
	cases := []struct {
		name   string
		mutate func(*engine.ReportTarget)
		doc    string
		want   string
	}{
		{"missing doc", func(tr *engine.ReportTarget) {}, "ghost", engine.ResultNotFound},
		{"missing stage", func(tr *engine.ReportTarget) { tr.StageID = "nope" }, "site-1", engine.ResultStageNotFound},
		{"missing kind", func(tr *engine.ReportTarget) { tr.WorkKindID = "nope" }, "site-1", engine.ResultWorkKindNotFound},
		{"missing type", func(tr *engine.ReportTarget) { tr.WorkTypeID = "nope" }, "site-1", engine.ResultWorkTypeNotFound},
		{"missing task", func(tr *engine.ReportTarget) { tr.TaskID = "nope" }, "site-1", engine.ResultTaskNotFound},
		{"missing subtask", func(tr *engine.ReportTarget) { tr.SubtaskID = "nope" }, "site-1", engine.ResultSubtaskNotFound},
	}
	for _, tc := range cases {
		target := base
		tc.mutate(&target)
		res, err := env.Engine.AttachReportLinks(env.Ctx, tc.doc, target,
			[]domain.ReportLink{{Href: "https://files/x.pdf"}}, "f1")
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if res.Result != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, res.Result)
		}
	}
	// failed attaches must not write
	sub := firstTask(t, loadProject(t, env, "site-1")).Subtasks[0]
	if len(sub.ReportLinks) != 0 {
		t.Fatalf("not-found attach mutated document")
	}
}

func TestSetFieldCreatesContainers(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")

	res, err := env.Engine.SetField(env.Ctx, "site-1", "work_stages.2.stage_name", "Roofing", "f1")
	if err != nil || !res.OK() {
		t.Fatalf("set field: %s (%v)", res.Result, err)
	}
	p := loadProject(t, env, "site-1")
	if len(p.WorkStages) != 3 {
		t.Fatalf("expected padded stage list, got %d", len(p.WorkStages))
	}
	if p.WorkStages[1] != nil {
		t.Fatalf("expected null padding at index 1")
	}
	if p.WorkStages[2].StageName != "Roofing" {
		t.Fatalf("unexpected stage name %q", p.WorkStages[2].StageName)
	}

	// writing the same value again must skip the write
	version := docVersion(t, env, "site-1")
	if _, err := env.Engine.SetField(env.Ctx, "site-1", "work_stages.2.stage_name", "Roofing", "f1"); err != nil {
		t.Fatalf("repeat set: %v", err)
	}
	if v := docVersion(t, env, "site-1"); v != version {
		t.Fatalf("no-op set bumped version %d -> %d", version, v)
	}
}

func TestSetFieldMissingDocument(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.SetField(env.Ctx, "ghost", "project_name", "x", "f1")
	if err != nil {
		t.Fatalf("set field: %v", err)
	}
	if res.Result != engine.ResultNotFound {
		t.Fatalf("expected not_found, got %s", res.Result)
	}
}

func TestSetFieldAssignsBrigade(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")

	payload := map[string]any{
		"subtask_id": "st2",
		"assignees":  []any{"u2", "u1"},
	}
	path := "work_stages.0.work_kinds.0.work_types.0.tasks.0.subtasks.1"
	res, err := env.Engine.SetField(env.Ctx, "site-1", path, payload, "f1")
	if err != nil || !res.OK() {
		t.Fatalf("set field: %s (%v)", res.Result, err)
	}
	sub := firstTask(t, loadProject(t, env, "site-1")).Subtasks[1]
	wantID := brigade.MakeID([]string{"u1", "u2"})
	if sub.BrigadeID != wantID {
		t.Fatalf("expected brigade id %s, got %s", wantID, sub.BrigadeID)
	}
	if sub.BrigadeSnapshot == nil || len(sub.BrigadeSnapshot.Members) != 2 {
		t.Fatalf("expected membership snapshot, got %+v", sub.BrigadeSnapshot)
	}
	// brigade document persisted under the same id
	b, err := env.Engine.Brigades.Get(env.Ctx, wantID)
	if err != nil {
		t.Fatalf("brigade not stored: %v", err)
	}
	if len(b.Members) != 2 {
		t.Fatalf("unexpected brigade members %+v", b.Members)
	}
}

func TestCreateProjectDuplicate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ProjectID: "dup", ProjectName: "First", ActorID: "m1",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ProjectID: "dup", ProjectName: "Second", ActorID: "m1",
	}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestListProjectsScopedToForeman(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	seedProject(t, env, "site-2", "f2")

	own, err := env.Engine.ListProjects(env.Ctx, "f1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(own) != 1 || own[0].ProjectID != "site-1" {
		t.Fatalf("unexpected listing %+v", own)
	}
	all, err := env.Engine.ListProjects(env.Ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(all))
	}
}

func TestAllShiftHistoryGroupsByForeman(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "site-1", "f1")
	seedProject(t, env, "site-2", "f2")
	if err := env.Engine.StartShift(env.Ctx, engine.Scope{ForemanID: "f1"}, []string{"t1"}, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	groups, err := env.Engine.AllShiftHistory(env.Ctx)
	if err != nil {
		t.Fatalf("all history: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 foremen, got %d", len(groups))
	}
	byID := map[string]int{}
	for _, g := range groups {
		byID[g.ForemanID] = len(g.Shifts)
	}
	if byID["f1"] != 1 || byID["f2"] != 0 {
		t.Fatalf("unexpected grouping %v", byID)
	}
}
