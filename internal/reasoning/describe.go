package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/tasktalk/internal/operations"
)

// Describe renders the outcome of one step as a sentence. It is the fallback
// wording used when no model composes the reply.
func Describe(s Step) string {
	o := s.Outcome
	switch o.Kind {
	case operations.KindValidationError:
		if o.Field != "" {
			return fmt.Sprintf("I couldn't run %s: %s %s.", s.Name, o.Field, o.Message)
		}
		return fmt.Sprintf("I couldn't run %s: %s.", s.Name, o.Message)
	case operations.KindNotFound:
		return "I couldn't find that task. Try asking me to list your tasks."
	case operations.KindStoreError:
		return "Something went wrong while saving your tasks. Please try again."
	case operations.KindSuccess:
	default:
		return fmt.Sprintf("%s finished with %s.", s.Name, o.Kind)
	}

	if s.Name == operations.ListTasks {
		if res, ok := listResult(o); ok {
			return describeList(res)
		}
		return "Here are your tasks."
	}

	title := "the task"
	if t, ok := taskResult(o); ok {
		title = fmt.Sprintf("%q", t.Title)
	}
	switch s.Name {
	case operations.AddTask:
		return fmt.Sprintf("Added %s to your tasks.", title)
	case operations.CompleteTask:
		return fmt.Sprintf("Marked %s as completed.", title)
	case operations.UpdateTask:
		return fmt.Sprintf("Updated %s.", title)
	case operations.DeleteTask:
		return fmt.Sprintf("Deleted %s.", title)
	}
	return "Done."
}

func describeList(res operations.ListResult) string {
	if res.Count == 0 {
		return "You have no matching tasks."
	}
	var sb strings.Builder
	if res.Total > res.Count {
		fmt.Fprintf(&sb, "Showing %d of %d tasks:", res.Count, res.Total)
	} else if res.Count == 1 {
		sb.WriteString("You have 1 task:")
	} else {
		fmt.Fprintf(&sb, "You have %d tasks:", res.Count)
	}
	for i, t := range res.Tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(&sb, "\n%d. [%s] %s (%s)", i+1, mark, t.Title, t.Priority)
		if t.DueDate != nil {
			fmt.Fprintf(&sb, ", due %s", t.DueDate.Format("2006-01-02"))
		}
	}
	return sb.String()
}

// The outcome result is a concrete type when it comes straight from the
// executor and a generic map when it was decoded from JSON. Round-trip
// through JSON to cover both.
func listResult(o operations.Outcome) (operations.ListResult, bool) {
	var res operations.ListResult
	ok := decodeResult(o.Result, &res)
	return res, ok
}

func taskResult(o operations.Outcome) (operations.TaskView, bool) {
	var t operations.TaskView
	ok := decodeResult(o.Result, &t)
	return t, ok
}

func decodeResult(v any, dst any) bool {
	switch r := v.(type) {
	case nil:
		return false
	case operations.ListResult:
		if p, ok := dst.(*operations.ListResult); ok {
			*p = r
			return true
		}
	case operations.TaskView:
		if p, ok := dst.(*operations.TaskView); ok {
			*p = r
			return true
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}
