package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/tasktalk/internal/operations"
)

const helpText = `I can manage your tasks. Try:
- "add a task to buy milk"
- "what's on my list" or "show pending tasks"
- "complete buy milk"
- "rename buy milk to buy oat milk"
- "delete buy milk"`

var (
	reAdd      = regexp.MustCompile(`(?i)^(?:please\s+)?(?:add|create|new)\s+(?:a\s+)?(?:new\s+)?(?:task|todo|to-do)?\s*(?:to\s+|called\s+|named\s+|:\s*)?(.+)$`)
	reRemember = regexp.MustCompile(`(?i)^(?:please\s+)?remind me to\s+(.+)$|^remember to\s+(.+)$`)
	reComplete = regexp.MustCompile(`(?i)^(?:please\s+)?(?:complete|finish|done with|mark)\s+(?:the\s+)?(?:task\s+)?(.+?)(?:\s+as\s+(?:done|complete|completed))?$`)
	reDelete   = regexp.MustCompile(`(?i)^(?:please\s+)?(?:delete|remove)\s+(?:the\s+)?(?:task\s+)?(.+)$`)
	reRename   = regexp.MustCompile(`(?i)^(?:please\s+)?(?:rename|change|update)\s+(?:the\s+)?(?:task\s+)?(.+?)\s+to\s+(.+)$`)
	reList     = regexp.MustCompile(`(?i)\b(list|show|what'?s on|what do i have|my tasks|todo list)\b`)
	reHelp     = regexp.MustCompile(`(?i)^(help|what can you do)\b`)
)

type intent struct {
	op     string
	target string
	title  string
	status string
}

// Rules is a deterministic keyword resolver. It needs no model and is used
// offline and in tests. Tasks named by title are resolved by listing first.
type Rules struct{}

func NewRules() *Rules { return &Rules{} }

func (r *Rules) ResolveTurn(_ context.Context, history []Entry, ops []operations.Descriptor) (Decision, error) {
	utterance, steps := currentTurn(history)
	in := classify(strings.TrimSpace(utterance))
	if in.op != "" && !offered(ops, in.op) {
		return Reply("I can't do that right now."), nil
	}
	callID := fmt.Sprintf("call_%d", len(steps)+1)

	if len(steps) == 0 {
		switch in.op {
		case "":
			if reHelp.MatchString(utterance) {
				return Reply(helpText), nil
			}
			return Reply("Sorry, I didn't understand that.\n\n" + helpText), nil
		case operations.AddTask:
			return Invoke(callID, in.op, mustJSON(map[string]string{"title": in.title})), nil
		case operations.ListTasks:
			return Invoke(callID, in.op, mustJSON(map[string]string{"status": in.status})), nil
		}
		if isID(in.target) {
			return Invoke(callID, in.op, targetArgs(in, in.target)), nil
		}
		return Invoke(callID, operations.ListTasks, mustJSON(map[string]any{"status": "all", "limit": 100})), nil
	}

	last := steps[len(steps)-1]
	if last.Name == operations.ListTasks && last.Outcome.OK() && needsTarget(in) && len(steps) == 1 {
		res, _ := listResult(last.Outcome)
		matches := matchTitle(res.Tasks, in.target)
		switch len(matches) {
		case 0:
			return Reply(fmt.Sprintf("I couldn't find a task matching %q.", in.target)), nil
		case 1:
			return Invoke(callID, in.op, targetArgs(in, matches[0].ID)), nil
		default:
			var sb strings.Builder
			fmt.Fprintf(&sb, "Several tasks match %q. Which one did you mean?", in.target)
			for _, t := range matches {
				fmt.Fprintf(&sb, "\n- %s", t.Title)
			}
			return Reply(sb.String()), nil
		}
	}
	return Reply(Describe(last)), nil
}

func classify(u string) intent {
	u = strings.TrimRight(u, ".!?")
	if m := reRename.FindStringSubmatch(u); m != nil {
		return intent{op: operations.UpdateTask, target: m[1], title: m[2]}
	}
	if m := reRemember.FindStringSubmatch(u); m != nil {
		return intent{op: operations.AddTask, title: firstNonEmpty(m[1:]...)}
	}
	if m := reAdd.FindStringSubmatch(u); m != nil && strings.TrimSpace(m[1]) != "" {
		return intent{op: operations.AddTask, title: m[1]}
	}
	if m := reComplete.FindStringSubmatch(u); m != nil {
		return intent{op: operations.CompleteTask, target: m[1]}
	}
	if m := reDelete.FindStringSubmatch(u); m != nil {
		return intent{op: operations.DeleteTask, target: m[1]}
	}
	if reList.MatchString(u) {
		status := "all"
		lower := strings.ToLower(u)
		switch {
		case strings.Contains(lower, "pending"), strings.Contains(lower, "open"), strings.Contains(lower, "todo"):
			status = "pending"
		case strings.Contains(lower, "completed"), strings.Contains(lower, "done"), strings.Contains(lower, "finished"):
			status = "completed"
		}
		return intent{op: operations.ListTasks, status: status}
	}
	return intent{}
}

func needsTarget(in intent) bool {
	switch in.op {
	case operations.CompleteTask, operations.DeleteTask, operations.UpdateTask:
		return in.target != ""
	}
	return false
}

func targetArgs(in intent, id string) json.RawMessage {
	args := map[string]string{"task_id": id}
	if in.op == operations.UpdateTask {
		args["title"] = in.title
	}
	return mustJSON(args)
}

// matchTitle prefers exact case-insensitive matches over substring matches.
func matchTitle(tasks []operations.TaskView, target string) []operations.TaskView {
	target = strings.ToLower(strings.TrimSpace(target))
	var exact, partial []operations.TaskView
	for _, t := range tasks {
		title := strings.ToLower(t.Title)
		switch {
		case title == target:
			exact = append(exact, t)
		case strings.Contains(title, target):
			partial = append(partial, t)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return partial
}

func offered(ops []operations.Descriptor, name string) bool {
	for _, op := range ops {
		if op.Name == name {
			return true
		}
	}
	return false
}

func isID(s string) bool {
	_, err := uuid.Parse(strings.TrimSpace(s))
	return err == nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
