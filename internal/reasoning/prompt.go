package reasoning

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/tasktalk/internal/operations"
)

const systemPromptTemplate = `You are a task management assistant. You help one user manage their own to-do list through the tools provided. Today is %s.

Available tools: %s

Intent rules:
- "add", "create", "new task", "remember to ..." -> add_task
- "list", "show", "what do I have", "what's on my list" -> list_tasks
- "done", "complete", "finish", "mark ... complete" -> complete_task
- "delete", "remove" -> delete_task
- "update", "change", "modify", "rename" -> update_task
- "help", "what can you do" -> explain the tools without calling any

Working with tasks:
- Tools that change a task need its task_id. When the user names a task instead, call list_tasks first and pick the matching id. If several tasks match, ask which one.
- Never invent task ids. Only use ids returned by a tool.
- Call one tool at a time and wait for its result.
- Dates are YYYY-MM-DD.

Tool results are JSON with a "kind" field:
- "success": confirm what was done and show the relevant task details.
- "validation_error": explain which field was wrong and how to fix it.
- "not_found": say the task could not be found and suggest listing tasks.
- "store_error": apologize and suggest trying again.

Keep replies short and friendly. If the request is ambiguous, ask a clarifying question instead of guessing.`

// SystemPrompt renders the instructions shared by all model providers.
func SystemPrompt(ops []operations.Descriptor, now time.Time) string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	tools := strings.Join(names, ", ")
	if tools == "" {
		tools = "none"
	}
	return fmt.Sprintf(systemPromptTemplate, now.Format("Monday, 2006-01-02"), tools)
}

// recordNote renders an assistant message's operation record as a trailing
// note so models can reuse ids from earlier turns.
func recordNote(m *Message) string {
	if len(m.Operations) == 0 || string(m.Operations) == "null" || string(m.Operations) == "[]" {
		return m.Content
	}
	return m.Content + "\n\n[operations performed: " + string(m.Operations) + "]"
}
