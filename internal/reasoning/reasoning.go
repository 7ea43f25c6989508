// Package reasoning abstracts the language model that decides, turn by turn,
// whether to answer the user or to invoke one of the task operations.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/tasktalk/internal/operations"
)

// Resolver decides the next step of a turn. It is called repeatedly within
// one turn: after every Invoke the orchestrator appends a Step to history and
// asks again, until a Reply comes back.
type Resolver interface {
	ResolveTurn(ctx context.Context, history []Entry, ops []operations.Descriptor) (Decision, error)
}

// Entry is either a persisted message or a step performed earlier in the
// current turn. Exactly one of Message and Step is set.
type Entry struct {
	Message *Message
	Step    *Step
}

// Message is a prior user or assistant message. Operations is the JSON
// record attached to assistant messages, if any.
type Message struct {
	Role       string
	Content    string
	Operations json.RawMessage
}

// Step is an operation invoked earlier in this turn and its outcome.
type Step struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
	Outcome   operations.Outcome
	// Signature is an opaque provider token that must be echoed back with
	// the call, such as a Gemini thought signature.
	Signature []byte
}

func MessageEntry(role, content string, record json.RawMessage) Entry {
	return Entry{Message: &Message{Role: role, Content: content, Operations: record}}
}

func StepEntry(s Step) Entry {
	return Entry{Step: &s}
}

// DecisionKind tags a Decision.
type DecisionKind int

const (
	KindReply DecisionKind = iota
	KindInvoke
)

// Decision is what a resolver wants to do next.
type Decision struct {
	Kind      DecisionKind
	Text      string
	CallID    string
	Name      string
	Arguments json.RawMessage
	Signature []byte
}

func Reply(text string) Decision {
	return Decision{Kind: KindReply, Text: text}
}

func Invoke(callID, name string, args json.RawMessage) Decision {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return Decision{Kind: KindInvoke, CallID: callID, Name: name, Arguments: args}
}

// normalizeArgs turns whatever a provider returned into a JSON document.
// Malformed text is kept as a JSON string so validation can reject it.
func normalizeArgs(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	b, _ := json.Marshal(string(raw))
	return b
}

// Provider names accepted by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderRules  = "rules"
)

// Config selects and configures a provider.
type Config struct {
	Provider string

	OllamaBaseURL string
	OllamaModel   string

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string

	// Now is used for the date in the system prompt. Defaults to time.Now.
	Now func() time.Time
}

// New builds the resolver named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Resolver, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.Now), nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider needs an API key (TASKTALK_OPENAI_API_KEY)")
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Now), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider needs an API key (TASKTALK_GEMINI_API_KEY)")
		}
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Now)
	case ProviderRules, "":
		return NewRules(), nil
	}
	return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Provider)
}

// currentTurn returns the steps that follow the last user message.
func currentTurn(history []Entry) (utterance string, steps []Step) {
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Step != nil {
			steps = append([]Step{*e.Step}, steps...)
			continue
		}
		if e.Message != nil && e.Message.Role == "user" {
			return e.Message.Content, steps
		}
	}
	return "", steps
}

func outcomeJSON(o operations.Outcome) string {
	b, err := json.Marshal(o)
	if err != nil {
		return `{"kind":"store_error","message":"unencodable result"}`
	}
	return string(b)
}
