package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/tasktalk/internal/operations"
	"github.com/kalambet/tasktalk/internal/proxy"
)

// Completer is the part of the proxy client the resolver needs.
type Completer interface {
	Complete(ctx context.Context, req proxy.ChatRequest) (proxy.ChatResponse, error)
}

// OpenAI resolves turns through any OpenAI-compatible chat completions API.
type OpenAI struct {
	client Completer
	model  string
	now    func() time.Time
}

func NewOpenAI(apiKey, baseURL, model string, now func() time.Time) *OpenAI {
	return NewOpenAIWithClient(proxy.NewClient(apiKey, baseURL), model, now)
}

func NewOpenAIWithClient(c Completer, model string, now func() time.Time) *OpenAI {
	if now == nil {
		now = time.Now
	}
	return &OpenAI{client: c, model: model, now: now}
}

func (o *OpenAI) ResolveTurn(ctx context.Context, history []Entry, ops []operations.Descriptor) (Decision, error) {
	msgs := []proxy.Message{proxy.TextMessage("system", SystemPrompt(ops, o.now()))}
	for _, e := range history {
		switch {
		case e.Message != nil:
			msgs = append(msgs, proxy.TextMessage(e.Message.Role, recordNote(e.Message)))
		case e.Step != nil:
			msgs = append(msgs,
				proxy.Message{Role: "assistant", ToolCalls: []proxy.ToolCall{{
					ID:       e.Step.CallID,
					Type:     "function",
					Function: proxy.FunctionCall{Name: e.Step.Name, Arguments: string(e.Step.Arguments)},
				}}},
				proxy.Message{Role: "tool", ToolCallID: e.Step.CallID, Content: ptr(outcomeJSON(e.Step.Outcome))},
			)
		}
	}

	tools := make([]proxy.Tool, 0, len(ops))
	for _, op := range ops {
		params, err := json.Marshal(op.Schema)
		if err != nil {
			return Decision{}, fmt.Errorf("encoding schema for %s: %w", op.Name, err)
		}
		tools = append(tools, proxy.Tool{Type: "function", Function: proxy.ToolFunction{
			Name:        op.Name,
			Description: op.Description,
			Parameters:  params,
		}})
	}

	req := proxy.ChatRequest{
		Model:       o.model,
		Messages:    msgs,
		Tools:       tools,
		Temperature: &zeroTemperature,
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}
	resp, err := o.client.Complete(ctx, req)
	if err != nil {
		return Decision{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Decision{}, errors.New("chat completion: no choices")
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		return Invoke(call.ID, call.Function.Name, normalizeArgs([]byte(call.Function.Arguments))), nil
	}
	return Reply(msg.Text()), nil
}

func ptr[T any](v T) *T { return &v }

var _ Resolver = (*OpenAI)(nil)
