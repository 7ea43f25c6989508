package storage

import (
	"errors"
	"testing"
	"time"
)

func mustTask(t *testing.T, s *Store, owner, title string) Task {
	t.Helper()
	task, err := s.CreateTask(ctx, Task{Owner: owner, Title: title})
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", title, err)
	}
	return task
}

func TestCreateTask_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	due := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := s.CreateTask(ctx, Task{
		Owner:       "alice",
		Title:       "buy milk",
		Description: "2 litres",
		Priority:    PriorityHigh,
		DueDate:     &due,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := s.GetTask(ctx, created.ID, "alice")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "buy milk" || got.Description != "2 litres" || got.Priority != PriorityHigh {
		t.Errorf("got %+v", got)
	}
	if got.Completed {
		t.Error("new task should be pending")
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
}

func TestCreateTask_DefaultsPriority(t *testing.T) {
	s := openTestStore(t)
	task := mustTask(t, s, "alice", "water plants")
	if task.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want %q", task.Priority, PriorityMedium)
	}
}

func TestTaskOwnerIsolation(t *testing.T) {
	s := openTestStore(t)
	task := mustTask(t, s, "alice", "alice's task")
	title := "hijacked"

	if _, err := s.GetTask(ctx, task.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask err = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateTask(ctx, task.ID, "bob", TaskPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask err = %v, want ErrNotFound", err)
	}
	if _, err := s.CompleteTask(ctx, task.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteTask err = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteTask(ctx, task.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTask err = %v, want ErrNotFound", err)
	}

	got, err := s.GetTask(ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "alice's task" || got.Completed {
		t.Errorf("task was modified by another owner: %+v", got)
	}

	list, err := s.ListTasks(ctx, "bob", TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("bob sees %d tasks, want 0", len(list))
	}
}

func TestListTasks_FilterAndOrder(t *testing.T) {
	s := openTestStore(t)
	s.now = stepClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	first := mustTask(t, s, "alice", "first")
	second := mustTask(t, s, "alice", "second")
	third := mustTask(t, s, "alice", "third")
	if _, err := s.CompleteTask(ctx, second.ID, "alice"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	tests := []struct {
		status TaskStatus
		want   []string
	}{
		{StatusAll, []string{third.ID, second.ID, first.ID}},
		{"", []string{third.ID, second.ID, first.ID}},
		{StatusPending, []string{third.ID, first.ID}},
		{StatusCompleted, []string{second.ID}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got, err := s.ListTasks(ctx, "alice", TaskFilter{Status: tt.status})
			if err != nil {
				t.Fatalf("ListTasks: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tasks, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("task[%d] = %s, want %s", i, got[i].Title, tt.want[i])
				}
			}
			n, err := s.CountTasks(ctx, "alice", TaskFilter{Status: tt.status})
			if err != nil {
				t.Fatalf("CountTasks: %v", err)
			}
			if n != len(tt.want) {
				t.Errorf("CountTasks = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func TestListTasks_Paging(t *testing.T) {
	s := openTestStore(t)
	s.now = stepClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	for _, title := range []string{"a", "b", "c", "d"} {
		mustTask(t, s, "alice", title)
	}

	got, err := s.ListTasks(ctx, "alice", TaskFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 2 || got[0].Title != "c" || got[1].Title != "b" {
		t.Errorf("page = %+v, want [c b]", got)
	}
}

func TestUpdateTask_OnlySuppliedFields(t *testing.T) {
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, Task{Owner: "alice", Title: "old", Description: "keep me"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	title := "new"
	got, err := s.UpdateTask(ctx, task.ID, "alice", TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.Title != "new" {
		t.Errorf("Title = %q, want %q", got.Title, "new")
	}
	if got.Description != "keep me" {
		t.Errorf("Description = %q, want unchanged", got.Description)
	}

	if _, err := s.UpdateTask(ctx, task.ID, "alice", TaskPatch{}); err == nil {
		t.Error("expected error for empty patch")
	}
}

func TestCompleteTask_Twice(t *testing.T) {
	s := openTestStore(t)
	s.now = stepClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	task := mustTask(t, s, "alice", "finish report")

	first, err := s.CompleteTask(ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("first CompleteTask: %v", err)
	}
	second, err := s.CompleteTask(ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("second CompleteTask: %v", err)
	}
	if !first.Completed || !second.Completed {
		t.Error("task should be completed after both calls")
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("second completion changed updated_at: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestDeleteTask_ReturnsSnapshot(t *testing.T) {
	s := openTestStore(t)
	task := mustTask(t, s, "alice", "throw out")

	got, err := s.DeleteTask(ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if got.ID != task.ID || got.Title != "throw out" {
		t.Errorf("snapshot = %+v", got)
	}
	if _, err := s.GetTask(ctx, task.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask after delete err = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteTask(ctx, task.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteTask err = %v, want ErrNotFound", err)
	}
}
