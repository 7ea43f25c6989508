package reasoning

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/tasktalk/internal/operations"
)

var ops = operations.Descriptors()

func user(text string) Entry { return MessageEntry("user", text, nil) }

func TestRules_FirstDecision(t *testing.T) {
	tests := []struct {
		utterance string
		wantKind  DecisionKind
		wantName  string
		wantArgs  string
	}{
		{"add a task to buy milk", KindInvoke, operations.AddTask, `{"title":"buy milk"}`},
		{"Create task: call the bank", KindInvoke, operations.AddTask, `{"title":"call the bank"}`},
		{"remember to water plants", KindInvoke, operations.AddTask, `{"title":"water plants"}`},
		{"what's on my list", KindInvoke, operations.ListTasks, `{"status":"all"}`},
		{"show pending tasks", KindInvoke, operations.ListTasks, `{"status":"pending"}`},
		{"list completed tasks", KindInvoke, operations.ListTasks, `{"status":"completed"}`},
		{"complete buy milk", KindInvoke, operations.ListTasks, `{"limit":100,"status":"all"}`},
		{"delete 0b7c9a52-3d1e-4f7a-9c55-2f1de3a1b6f0", KindInvoke, operations.DeleteTask, `{"task_id":"0b7c9a52-3d1e-4f7a-9c55-2f1de3a1b6f0"}`},
		{"help", KindReply, "", ""},
		{"sing me a song", KindReply, "", ""},
	}
	r := NewRules()
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			d, err := r.ResolveTurn(context.Background(), []Entry{user(tt.utterance)}, ops)
			if err != nil {
				t.Fatalf("ResolveTurn: %v", err)
			}
			if d.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v (%+v)", d.Kind, tt.wantKind, d)
			}
			if d.Kind == KindReply {
				if d.Text == "" {
					t.Error("empty reply")
				}
				return
			}
			if d.Name != tt.wantName || string(d.Arguments) != tt.wantArgs {
				t.Errorf("invoke %s %s, want %s %s", d.Name, d.Arguments, tt.wantName, tt.wantArgs)
			}
			if d.CallID == "" {
				t.Error("missing call id")
			}
		})
	}
}

func listStep(tasks ...operations.TaskView) Entry {
	return StepEntry(Step{
		CallID:    "call_1",
		Name:      operations.ListTasks,
		Arguments: json.RawMessage(`{"status":"all","limit":100}`),
		Outcome:   operations.Success(operations.ListResult{Tasks: tasks, Count: len(tasks), Total: len(tasks)}),
	})
}

func TestRules_ResolvesTitleThroughList(t *testing.T) {
	milk := operations.TaskView{ID: "11111111-1111-1111-1111-111111111111", Title: "Buy milk"}
	bread := operations.TaskView{ID: "22222222-2222-2222-2222-222222222222", Title: "Buy bread"}
	r := NewRules()

	d, err := r.ResolveTurn(context.Background(), []Entry{user("complete buy milk"), listStep(milk, bread)}, ops)
	if err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}
	want := Invoke("call_2", operations.CompleteTask, json.RawMessage(`{"task_id":"`+milk.ID+`"}`))
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}

	d, _ = r.ResolveTurn(context.Background(), []Entry{user("rename buy bread to buy rye bread"), listStep(milk, bread)}, ops)
	if d.Name != operations.UpdateTask || string(d.Arguments) != `{"task_id":"`+bread.ID+`","title":"buy rye bread"}` {
		t.Errorf("rename decision = %s %s", d.Name, d.Arguments)
	}
}

func TestRules_AmbiguousAndMissing(t *testing.T) {
	r := NewRules()
	a := operations.TaskView{ID: "1", Title: "Call mom"}
	b := operations.TaskView{ID: "2", Title: "Call dentist"}

	d, _ := r.ResolveTurn(context.Background(), []Entry{user("delete call"), listStep(a, b)}, ops)
	if d.Kind != KindReply || !strings.Contains(d.Text, "Which one") {
		t.Errorf("ambiguous decision = %+v", d)
	}
	d, _ = r.ResolveTurn(context.Background(), []Entry{user("delete walk dog"), listStep(a, b)}, ops)
	if d.Kind != KindReply || !strings.Contains(d.Text, "couldn't find") {
		t.Errorf("missing decision = %+v", d)
	}
}

func TestRules_RepliesAfterMutation(t *testing.T) {
	r := NewRules()
	history := []Entry{
		MessageEntry("assistant", "earlier reply", json.RawMessage(`[]`)),
		user("add a task to buy milk"),
		StepEntry(Step{
			CallID:  "call_1",
			Name:    operations.AddTask,
			Outcome: operations.Success(operations.TaskView{Title: "buy milk", Priority: "medium"}),
		}),
	}
	d, err := r.ResolveTurn(context.Background(), history, ops)
	if err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}
	if d.Kind != KindReply || !strings.Contains(d.Text, "buy milk") {
		t.Errorf("reply = %+v", d)
	}
}

func TestRules_OnlyUsesOfferedOperations(t *testing.T) {
	d, _ := NewRules().ResolveTurn(context.Background(), []Entry{user("add a task to buy milk")}, nil)
	if d.Kind != KindReply {
		t.Errorf("invoked %s with no operations offered", d.Name)
	}
}
