// Package operations defines the closed set of task operations a reasoning
// provider may invoke, validates their arguments and executes them against
// the task store on behalf of a caller.
package operations

import "context"

// Operation names.
const (
	AddTask      = "add_task"
	ListTasks    = "list_tasks"
	CompleteTask = "complete_task"
	UpdateTask   = "update_task"
	DeleteTask   = "delete_task"
)

// Descriptor is what reasoning providers and the MCP server see of an
// operation.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Schema `json:"parameters"`
}

type handler func(ctx context.Context, e *Executor, owner string, a args) Outcome

type operation struct {
	Descriptor
	run handler
}

var priorities = []string{"low", "medium", "high"}

var taskIDProperty = Property{
	Type:        "string",
	Format:      FormatUUID,
	Description: "Id of the task, as returned by add_task or list_tasks",
}

// registry is built once and never mutated. Order is the order providers
// see the tools in.
var registry = []operation{
	{
		Descriptor: Descriptor{
			Name:        AddTask,
			Description: "Create a new task for the user.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"title":       {Type: "string", MinLength: intPtr(1), MaxLength: intPtr(200), Trim: true, Description: "Short task title"},
					"description": {Type: "string", MaxLength: intPtr(1024), Description: "Optional details"},
					"priority":    {Type: "string", Enum: priorities, Default: "medium", Description: "Task priority"},
					"due_date":    {Type: "string", Format: FormatDate, Description: "Due date, YYYY-MM-DD or RFC 3339"},
				},
				Required: []string{"title"},
			},
		},
		run: runAddTask,
	},
	{
		Descriptor: Descriptor{
			Name:        ListTasks,
			Description: "List the user's tasks, newest first. Use this to find a task id before completing, updating or deleting it.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"status":   {Type: "string", Enum: []string{"all", "pending", "completed"}, Default: "all", Description: "Filter by completion status"},
					"priority": {Type: "string", Enum: priorities, Description: "Filter by priority"},
					"limit":    {Type: "integer", Minimum: intPtr(1), Maximum: intPtr(100), Default: 50, Description: "Maximum number of tasks to return"},
					"offset":   {Type: "integer", Minimum: intPtr(0), Description: "Number of tasks to skip"},
				},
			},
		},
		run: runListTasks,
	},
	{
		Descriptor: Descriptor{
			Name:        CompleteTask,
			Description: "Mark a task as completed. Completing a task twice is harmless.",
			Schema: Schema{
				Type:       "object",
				Properties: map[string]Property{"task_id": taskIDProperty},
				Required:   []string{"task_id"},
			},
		},
		run: runCompleteTask,
	},
	{
		Descriptor: Descriptor{
			Name:        UpdateTask,
			Description: "Change the title, description, priority or due date of a task. Supply at least one field; omitted fields are left unchanged.",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"task_id":     taskIDProperty,
					"title":       {Type: "string", MinLength: intPtr(1), MaxLength: intPtr(200), Trim: true, Description: "New title"},
					"description": {Type: "string", MaxLength: intPtr(1024), Description: "New description"},
					"priority":    {Type: "string", Enum: priorities, Description: "New priority"},
					"due_date":    {Type: "string", Format: FormatDate, Description: "New due date, YYYY-MM-DD or RFC 3339"},
				},
				Required: []string{"task_id"},
			},
		},
		run: runUpdateTask,
	},
	{
		Descriptor: Descriptor{
			Name:        DeleteTask,
			Description: "Permanently delete a task.",
			Schema: Schema{
				Type:       "object",
				Properties: map[string]Property{"task_id": taskIDProperty},
				Required:   []string{"task_id"},
			},
		},
		run: runDeleteTask,
	},
}

// Descriptors returns the descriptors of every operation in registry order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(registry))
	for i, op := range registry {
		out[i] = op.Descriptor
	}
	return out
}

// Lookup returns the descriptor for name.
func Lookup(name string) (Descriptor, bool) {
	op, ok := lookup(name)
	return op.Descriptor, ok
}

func lookup(name string) (operation, bool) {
	for _, op := range registry {
		if op.Name == name {
			return op, true
		}
	}
	return operation{}, false
}
