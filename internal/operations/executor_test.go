package operations

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/kalambet/tasktalk/internal/storage"
)

var ctx = context.Background()

func newTestExecutor(t *testing.T) (*Executor, *storage.Store) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewExecutor(s), s
}

func mustSucceed(t *testing.T, o Outcome) any {
	t.Helper()
	if !o.OK() {
		t.Fatalf("outcome = %+v, want success", o)
	}
	return o.Result
}

func addTask(t *testing.T, e *Executor, owner, title string) TaskView {
	t.Helper()
	args, _ := json.Marshal(map[string]string{"title": title})
	return mustSucceed(t, e.Execute(ctx, owner, AddTask, args)).(TaskView)
}

func TestExecute_AddTaskRoundTrip(t *testing.T) {
	e, s := newTestExecutor(t)

	o := e.Execute(ctx, "alice", AddTask, json.RawMessage(`{"title":"  buy milk ","description":"2 litres","due_date":"2025-03-01"}`))
	view := mustSucceed(t, o).(TaskView)

	got, err := s.GetTask(ctx, view.ID, "alice")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "buy milk" || got.Description != "2 litres" || got.Completed {
		t.Errorf("stored task = %+v", got)
	}
	if got.Priority != storage.PriorityMedium {
		t.Errorf("Priority = %q, want medium", got.Priority)
	}
	if got.DueDate == nil || got.DueDate.Format("2006-01-02") != "2025-03-01" {
		t.Errorf("DueDate = %v", got.DueDate)
	}
}

func TestExecute_Validation(t *testing.T) {
	e, _ := newTestExecutor(t)
	id := uuid.NewString()

	tests := []struct {
		name  string
		op    string
		args  string
		field string
	}{
		{"unknown operation", "drop_table", `{}`, "name"},
		{"not an object", AddTask, `[1,2]`, "arguments"},
		{"missing title", AddTask, `{}`, "title"},
		{"blank title", AddTask, `{"title":"   "}`, "title"},
		{"title too long", AddTask, `{"title":"` + strings.Repeat("a", 201) + `"}`, "title"},
		{"bad priority", AddTask, `{"title":"x","priority":"urgent"}`, "priority"},
		{"bad due date", AddTask, `{"title":"x","due_date":"next week"}`, "due_date"},
		{"owner spoofing", AddTask, `{"title":"x","owner":"bob"}`, "owner"},
		{"user_id spoofing", ListTasks, `{"user_id":"bob"}`, "user_id"},
		{"bad status", ListTasks, `{"status":"done"}`, "status"},
		{"limit too large", ListTasks, `{"limit":101}`, "limit"},
		{"limit fractional", ListTasks, `{"limit":2.5}`, "limit"},
		{"negative offset", ListTasks, `{"offset":-1}`, "offset"},
		{"missing task id", CompleteTask, `{}`, "task_id"},
		{"malformed task id", DeleteTask, `{"task_id":"42"}`, "task_id"},
		{"update without fields", UpdateTask, `{"task_id":"` + id + `"}`, "title"},
		{"wrong type", UpdateTask, `{"task_id":"` + id + `","title":7}`, "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := e.Execute(ctx, "alice", tt.op, json.RawMessage(tt.args))
			if o.Kind != KindValidationError {
				t.Fatalf("Kind = %q, want validation_error (%+v)", o.Kind, o)
			}
			if o.Field != tt.field {
				t.Errorf("Field = %q, want %q", o.Field, tt.field)
			}
			if o.Message == "" {
				t.Error("validation outcome has no message")
			}
		})
	}
}

func TestExecute_EmptyUpdateIsStable(t *testing.T) {
	e, _ := newTestExecutor(t)
	task := addTask(t, e, "alice", "stable")
	args := json.RawMessage(`{"task_id":"` + task.ID + `"}`)

	first := e.Execute(ctx, "alice", UpdateTask, args)
	for i := 0; i < 3; i++ {
		if diff := cmp.Diff(first, e.Execute(ctx, "alice", UpdateTask, args)); diff != "" {
			t.Fatalf("call %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestExecute_NullArgumentsAreAbsent(t *testing.T) {
	e, _ := newTestExecutor(t)
	o := e.Execute(ctx, "alice", ListTasks, json.RawMessage(`{"status":null,"limit":null}`))
	res := mustSucceed(t, o).(ListResult)
	if res.Count != 0 || res.Total != 0 {
		t.Errorf("ListResult = %+v", res)
	}
	if o := e.Execute(ctx, "alice", ListTasks, nil); !o.OK() {
		t.Errorf("nil args outcome = %+v", o)
	}
}

func TestExecute_OwnerIsolation(t *testing.T) {
	e, s := newTestExecutor(t)
	task := addTask(t, e, "alice", "alice only")
	byID := json.RawMessage(`{"task_id":"` + task.ID + `"}`)

	for _, op := range []string{CompleteTask, DeleteTask} {
		if o := e.Execute(ctx, "bob", op, byID); o.Kind != KindNotFound {
			t.Errorf("%s by bob: Kind = %q, want not_found", op, o.Kind)
		}
	}
	upd := json.RawMessage(`{"task_id":"` + task.ID + `","title":"mine now"}`)
	if o := e.Execute(ctx, "bob", UpdateTask, upd); o.Kind != KindNotFound {
		t.Errorf("update by bob: Kind = %q, want not_found", o.Kind)
	}

	res := mustSucceed(t, e.Execute(ctx, "bob", ListTasks, nil)).(ListResult)
	if res.Count != 0 {
		t.Errorf("bob lists %d tasks", res.Count)
	}

	got, err := s.GetTask(ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "alice only" || got.Completed {
		t.Errorf("task changed by another owner: %+v", got)
	}
}

func TestExecute_NotFoundMatchesForeign(t *testing.T) {
	e, _ := newTestExecutor(t)
	task := addTask(t, e, "alice", "secret")

	foreign := e.Execute(ctx, "bob", CompleteTask, json.RawMessage(`{"task_id":"`+task.ID+`"}`))
	missing := e.Execute(ctx, "bob", CompleteTask, json.RawMessage(`{"task_id":"`+uuid.NewString()+`"}`))
	if diff := cmp.Diff(missing, foreign); diff != "" {
		t.Errorf("foreign and missing outcomes differ (-missing +foreign):\n%s", diff)
	}
}

func TestExecute_CompleteTwice(t *testing.T) {
	e, _ := newTestExecutor(t)
	task := addTask(t, e, "alice", "finish report")
	args := json.RawMessage(`{"task_id":"` + task.ID + `"}`)

	for i := 0; i < 2; i++ {
		o := e.Execute(ctx, "alice", CompleteTask, args)
		view := mustSucceed(t, o).(TaskView)
		if !view.Completed {
			t.Errorf("call %d: task not completed", i)
		}
	}
}

func TestExecute_ListFiltersAndTotals(t *testing.T) {
	e, _ := newTestExecutor(t)
	a := addTask(t, e, "alice", "a")
	addTask(t, e, "alice", "b")
	addTask(t, e, "alice", "c")
	mustSucceed(t, e.Execute(ctx, "alice", CompleteTask, json.RawMessage(`{"task_id":"`+a.ID+`"}`)))

	res := mustSucceed(t, e.Execute(ctx, "alice", ListTasks, json.RawMessage(`{"status":"pending","limit":1}`))).(ListResult)
	if res.Count != 1 || res.Total != 2 {
		t.Errorf("pending page: count=%d total=%d, want 1/2", res.Count, res.Total)
	}
	res = mustSucceed(t, e.Execute(ctx, "alice", ListTasks, json.RawMessage(`{"status":"completed"}`))).(ListResult)
	if res.Count != 1 || res.Tasks[0].ID != a.ID {
		t.Errorf("completed list = %+v", res)
	}
}

func TestExecute_UpdateOnlySupplied(t *testing.T) {
	e, _ := newTestExecutor(t)
	o := e.Execute(ctx, "alice", AddTask, json.RawMessage(`{"title":"draft","description":"keep","priority":"low"}`))
	task := mustSucceed(t, o).(TaskView)

	o = e.Execute(ctx, "alice", UpdateTask, json.RawMessage(`{"task_id":"`+task.ID+`","priority":"high"}`))
	got := mustSucceed(t, o).(TaskView)

	want := task
	want.Priority = "high"
	want.UpdatedAt = got.UpdatedAt
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("update changed more than priority (-want +got):\n%s", diff)
	}
}

func TestExecute_DeleteReturnsSnapshot(t *testing.T) {
	e, _ := newTestExecutor(t)
	task := addTask(t, e, "alice", "old junk")
	args := json.RawMessage(`{"task_id":"` + task.ID + `"}`)

	got := mustSucceed(t, e.Execute(ctx, "alice", DeleteTask, args)).(TaskView)
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if o := e.Execute(ctx, "alice", DeleteTask, args); o.Kind != KindNotFound {
		t.Errorf("second delete Kind = %q, want not_found", o.Kind)
	}
}

// leakyStore returns rows that belong to someone else, or fails outright.
type leakyStore struct {
	TaskStore
	task storage.Task
	err  error
}

func (l *leakyStore) GetTask(context.Context, string, string) (storage.Task, error) {
	return l.task, l.err
}

func (l *leakyStore) CompleteTask(context.Context, string, string) (storage.Task, error) {
	panic("CompleteTask must not be reached")
}

func TestExecute_RechecksOwner(t *testing.T) {
	store := &leakyStore{task: storage.Task{ID: uuid.NewString(), Owner: "bob", Title: "bob's"}}
	e := NewExecutor(store)

	o := e.Execute(ctx, "alice", CompleteTask, json.RawMessage(`{"task_id":"`+store.task.ID+`"}`))
	if o.Kind != KindNotFound {
		t.Errorf("Kind = %q, want not_found", o.Kind)
	}
}

func TestExecute_StoreErrorIsGeneric(t *testing.T) {
	store := &leakyStore{err: errors.New("disk I/O error at /var/lib/secret.db")}
	e := NewExecutor(store)

	o := e.Execute(ctx, "alice", DeleteTask, json.RawMessage(`{"task_id":"`+uuid.NewString()+`"}`))
	if o.Kind != KindStoreError {
		t.Fatalf("Kind = %q, want store_error", o.Kind)
	}
	if diff := cmp.Diff(StoreFailure(), o); diff != "" {
		t.Errorf("store error leaked detail (-want +got):\n%s", diff)
	}
}

func TestExecute_RequiresOwner(t *testing.T) {
	e, _ := newTestExecutor(t)
	if o := e.Execute(ctx, " ", ListTasks, nil); o.Kind != KindValidationError || o.Field != "owner" {
		t.Errorf("outcome = %+v, want validation_error on owner", o)
	}
}
