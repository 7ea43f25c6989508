package reasoning

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/tasktalk/internal/operations"
)

func TestDescribe(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	list := operations.ListResult{
		Tasks: []operations.TaskView{
			{Title: "buy milk", Priority: "high", DueDate: &due},
			{Title: "call mom", Priority: "low", Completed: true},
		},
		Count: 2,
		Total: 5,
	}

	tests := []struct {
		name string
		step Step
		want []string
	}{
		{"added", Step{Name: operations.AddTask, Outcome: operations.Success(operations.TaskView{Title: "buy milk"})}, []string{`Added "buy milk"`}},
		{"completed", Step{Name: operations.CompleteTask, Outcome: operations.Success(operations.TaskView{Title: "x"})}, []string{`Marked "x" as completed`}},
		{"deleted", Step{Name: operations.DeleteTask, Outcome: operations.Success(operations.TaskView{Title: "x"})}, []string{`Deleted "x"`}},
		{"list", Step{Name: operations.ListTasks, Outcome: operations.Success(list)}, []string{"Showing 2 of 5", "1. [ ] buy milk (high), due 2025-03-01", "2. [x] call mom"}},
		{"empty list", Step{Name: operations.ListTasks, Outcome: operations.Success(operations.ListResult{Tasks: []operations.TaskView{}})}, []string{"no matching tasks"}},
		{"not found", Step{Name: operations.CompleteTask, Outcome: operations.NotFound("no such task")}, []string{"couldn't find"}},
		{"invalid", Step{Name: operations.AddTask, Outcome: operations.Invalid("title", "must not be empty")}, []string{"title must not be empty"}},
		{"store", Step{Name: operations.AddTask, Outcome: operations.StoreFailure()}, []string{"try again"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.step)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Describe = %q, want it to contain %q", got, w)
				}
			}
		})
	}
}

func TestDescribe_DecodedResult(t *testing.T) {
	// Results that went through JSON arrive as maps.
	var generic any
	json.Unmarshal([]byte(`{"id":"1","title":"from json","priority":"low"}`), &generic)
	got := Describe(Step{Name: operations.UpdateTask, Outcome: operations.Success(generic)})
	if got != `Updated "from json".` {
		t.Errorf("Describe = %q", got)
	}
}

func TestListAndTaskResult(t *testing.T) {
	concrete := operations.Success(operations.ListResult{Tasks: []operations.TaskView{{ID: "1", Title: "a"}}, Count: 1, Total: 1})
	res, ok := listResult(concrete)
	if !ok || res.Count != 1 || len(res.Tasks) != 1 || res.Tasks[0].Title != "a" {
		t.Errorf("listResult(concrete) = %+v, %v", res, ok)
	}

	var generic any
	json.Unmarshal([]byte(`{"tasks":[{"id":"2","title":"b"}],"count":1,"total":3}`), &generic)
	res, ok = listResult(operations.Success(generic))
	if !ok || res.Total != 3 || len(res.Tasks) != 1 || res.Tasks[0].ID != "2" {
		t.Errorf("listResult(generic) = %+v, %v", res, ok)
	}

	task, ok := taskResult(operations.Success(operations.TaskView{ID: "3", Title: "c"}))
	if !ok || task.ID != "3" || task.Title != "c" {
		t.Errorf("taskResult = %+v, %v", task, ok)
	}

	if _, ok := taskResult(operations.NotFound("gone")); ok {
		t.Error("taskResult of a failure should not decode")
	}
}
