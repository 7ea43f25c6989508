package operations

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/tasktalk/internal/storage"
)

// TaskStore is the owner-keyed task persistence the executor runs against.
// *storage.Store satisfies it.
type TaskStore interface {
	CreateTask(ctx context.Context, t storage.Task) (storage.Task, error)
	GetTask(ctx context.Context, id, owner string) (storage.Task, error)
	ListTasks(ctx context.Context, owner string, f storage.TaskFilter) ([]storage.Task, error)
	CountTasks(ctx context.Context, owner string, f storage.TaskFilter) (int, error)
	UpdateTask(ctx context.Context, id, owner string, p storage.TaskPatch) (storage.Task, error)
	CompleteTask(ctx context.Context, id, owner string) (storage.Task, error)
	DeleteTask(ctx context.Context, id, owner string) (storage.Task, error)
}

// TaskView is the snapshot of a task returned in success payloads.
type TaskView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func viewOf(t storage.Task) TaskView {
	return TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// Executor validates and runs operations. It holds no per-caller state; the
// owner is passed on every call.
type Executor struct {
	store  TaskStore
	logger *slog.Logger
}

func NewExecutor(store TaskStore) *Executor {
	return &Executor{store: store, logger: slog.Default()}
}

// Execute validates rawArgs against the schema of the named operation and
// runs it for owner. Arguments never carry identity: an "owner" key is
// rejected like any other unknown argument.
func (e *Executor) Execute(ctx context.Context, owner, name string, rawArgs json.RawMessage) Outcome {
	op, ok := lookup(name)
	if !ok {
		return Invalid("name", "unknown operation "+name)
	}
	if strings.TrimSpace(owner) == "" {
		return Invalid("owner", "caller identity is required")
	}
	a, invalid := op.Schema.validate(rawArgs)
	if invalid != nil {
		return *invalid
	}

	start := time.Now()
	out := op.run(ctx, e, owner, a)
	e.logger.Debug("operation executed",
		"operation", name,
		"owner", owner,
		"outcome", out.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// failure maps a store error to an outcome.
func (e *Executor) failure(op string, err error) Outcome {
	if errors.Is(err, storage.ErrNotFound) {
		return NotFound("no such task")
	}
	e.logger.Error("task store failure", "operation", op, "error", err)
	return StoreFailure()
}

// owned loads the task and checks ownership again on the returned row.
func (e *Executor) owned(ctx context.Context, op, id, owner string) (storage.Task, *Outcome) {
	t, err := e.store.GetTask(ctx, id, owner)
	if err != nil {
		o := e.failure(op, err)
		return storage.Task{}, &o
	}
	if t.Owner != owner {
		e.logger.Warn("task store returned a foreign task", "operation", op, "task_id", id, "owner", owner)
		o := NotFound("no such task")
		return storage.Task{}, &o
	}
	return t, nil
}

func runAddTask(ctx context.Context, e *Executor, owner string, a args) Outcome {
	title, _ := a.str("title")
	desc, _ := a.str("description")
	t := storage.Task{
		Owner:       owner,
		Title:       title,
		Description: desc,
		Priority:    storage.PriorityMedium,
	}
	if p, ok := a.str("priority"); ok {
		t.Priority = storage.Priority(p)
	}
	if d, ok := a.date("due_date"); ok {
		t.DueDate = &d
	}
	created, err := e.store.CreateTask(ctx, t)
	if err != nil {
		return e.failure(AddTask, err)
	}
	return Success(viewOf(created))
}

func runListTasks(ctx context.Context, e *Executor, owner string, a args) Outcome {
	f := storage.TaskFilter{
		Status: storage.StatusAll,
		Limit:  a.integer("limit", 50),
		Offset: a.integer("offset", 0),
	}
	if s, ok := a.str("status"); ok {
		f.Status = storage.TaskStatus(s)
	}
	if p, ok := a.str("priority"); ok {
		f.Priority = storage.Priority(p)
	}

	tasks, err := e.store.ListTasks(ctx, owner, f)
	if err != nil {
		return e.failure(ListTasks, err)
	}
	total, err := e.store.CountTasks(ctx, owner, f)
	if err != nil {
		return e.failure(ListTasks, err)
	}

	res := ListResult{Tasks: make([]TaskView, 0, len(tasks)), Total: total}
	for _, t := range tasks {
		if t.Owner != owner {
			continue
		}
		res.Tasks = append(res.Tasks, viewOf(t))
	}
	res.Count = len(res.Tasks)
	return Success(res)
}

func runCompleteTask(ctx context.Context, e *Executor, owner string, a args) Outcome {
	id, _ := a.str("task_id")
	if _, o := e.owned(ctx, CompleteTask, id, owner); o != nil {
		return *o
	}
	t, err := e.store.CompleteTask(ctx, id, owner)
	if err != nil {
		return e.failure(CompleteTask, err)
	}
	return Success(viewOf(t))
}

func runUpdateTask(ctx context.Context, e *Executor, owner string, a args) Outcome {
	id, _ := a.str("task_id")
	var p storage.TaskPatch
	if v, ok := a.str("title"); ok {
		p.Title = &v
	}
	if v, ok := a.str("description"); ok {
		p.Description = &v
	}
	if v, ok := a.str("priority"); ok {
		pr := storage.Priority(v)
		p.Priority = &pr
	}
	if v, ok := a.date("due_date"); ok {
		p.DueDate = &v
	}
	if p.Empty() {
		return Invalid("title", "supply at least one of title, description, priority or due_date")
	}

	if _, o := e.owned(ctx, UpdateTask, id, owner); o != nil {
		return *o
	}
	t, err := e.store.UpdateTask(ctx, id, owner, p)
	if err != nil {
		return e.failure(UpdateTask, err)
	}
	return Success(viewOf(t))
}

func runDeleteTask(ctx context.Context, e *Executor, owner string, a args) Outcome {
	id, _ := a.str("task_id")
	if _, o := e.owned(ctx, DeleteTask, id, owner); o != nil {
		return *o
	}
	t, err := e.store.DeleteTask(ctx, id, owner)
	if err != nil {
		return e.failure(DeleteTask, err)
	}
	return Success(viewOf(t))
}
