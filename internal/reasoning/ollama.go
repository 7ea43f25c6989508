package reasoning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/tasktalk/internal/ollama"
	"github.com/kalambet/tasktalk/internal/operations"
)

// OllamaChatter is the part of the Ollama client the resolver needs.
type OllamaChatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, opts ollama.ChatOptions) (ollama.Message, error)
}

// Ollama resolves turns with a local model through Ollama tool calling.
type Ollama struct {
	client OllamaChatter
	model  string
	now    func() time.Time
}

func NewOllama(baseURL, model string, now func() time.Time) *Ollama {
	return NewOllamaWithClient(ollama.New(baseURL), model, now)
}

func NewOllamaWithClient(c OllamaChatter, model string, now func() time.Time) *Ollama {
	if now == nil {
		now = time.Now
	}
	return &Ollama{client: c, model: model, now: now}
}

var zeroTemperature = 0.0

func (o *Ollama) ResolveTurn(ctx context.Context, history []Entry, ops []operations.Descriptor) (Decision, error) {
	msgs := []ollama.Message{{Role: "system", Content: SystemPrompt(ops, o.now())}}
	for _, e := range history {
		switch {
		case e.Message != nil:
			msgs = append(msgs, ollama.Message{Role: e.Message.Role, Content: recordNote(e.Message)})
		case e.Step != nil:
			msgs = append(msgs,
				ollama.Message{Role: "assistant", ToolCalls: []ollama.ToolCall{{
					Function: ollama.FunctionCall{Name: e.Step.Name, Arguments: e.Step.Arguments},
				}}},
				ollama.Message{Role: "tool", ToolName: e.Step.Name, Content: outcomeJSON(e.Step.Outcome)},
			)
		}
	}

	tools := make([]ollama.Tool, len(ops))
	for i, op := range ops {
		tools[i] = ollama.Tool{Type: "function", Function: ollama.ToolFunction{
			Name:        op.Name,
			Description: op.Description,
			Parameters:  op.Schema,
		}}
	}

	resp, err := o.client.Chat(ctx, o.model, msgs, ollama.ChatOptions{Tools: tools, Temperature: &zeroTemperature})
	if err != nil {
		return Decision{}, fmt.Errorf("ollama chat: %w", err)
	}
	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0].Function
		return Invoke("call_"+uuid.NewString()[:8], call.Name, normalizeArgs(call.Arguments)), nil
	}
	return Reply(resp.Content), nil
}

var _ Resolver = (*Ollama)(nil)
var _ OllamaChatter = (*ollama.Client)(nil)
