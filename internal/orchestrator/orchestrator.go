// Package orchestrator runs one conversational turn: it records the user's
// utterance, lets a reasoning provider drive the task operations and records
// the reply. Every turn starts from the database; nothing is kept in memory
// between turns.
//
// Concurrent turns on the same conversation are not serialized. Each append
// is atomic, so the last writer appends last.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kalambet/tasktalk/internal/operations"
	"github.com/kalambet/tasktalk/internal/reasoning"
	"github.com/kalambet/tasktalk/internal/sanitize"
	"github.com/kalambet/tasktalk/internal/storage"
)

// MaxUtteranceLength bounds the user input, in characters.
const MaxUtteranceLength = 2000

// Store is the conversation persistence a turn needs.
type Store interface {
	CreateConversation(ctx context.Context, owner, title string) (storage.Conversation, error)
	GetConversation(ctx context.Context, id, owner string) (storage.Conversation, error)
	GetRecentMessages(ctx context.Context, conversationID, owner string, limit int) ([]storage.Message, error)
	AppendMessage(ctx context.Context, conversationID, owner string, role storage.Role, content string, record json.RawMessage) (storage.Message, error)
	EnqueueJob(job storage.Job) error
}

// Executor runs operations under a caller identity.
type Executor interface {
	Execute(ctx context.Context, owner, name string, args json.RawMessage) operations.Outcome
}

type Config struct {
	// HistoryLimit is how many prior messages the resolver sees.
	HistoryLimit int
	// MaxOperations caps executed operations per turn.
	MaxOperations int
	// MaxInvalidCalls is how many unknown or invalid calls are tolerated
	// before the turn is wrapped up.
	MaxInvalidCalls int
	ResolverTimeout time.Duration
	StoreTimeout    time.Duration
	// DisableTitleJobs stops the title job normally queued after the first
	// answered turn of a conversation.
	DisableTitleJobs bool
}

func DefaultConfig() Config {
	return Config{
		HistoryLimit:    storage.DefaultHistoryLimit,
		MaxOperations:   5,
		MaxInvalidCalls: 2,
		ResolverTimeout: 30 * time.Second,
		StoreTimeout:    5 * time.Second,
	}
}

type Orchestrator struct {
	store    Store
	exec     Executor
	resolver reasoning.Resolver
	ops      []operations.Descriptor
	cfg      Config
	logger   *slog.Logger
}

// New returns an orchestrator offering every registered operation. Zero
// fields of cfg take their defaults.
func New(store Store, exec Executor, resolver reasoning.Resolver, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.MaxOperations <= 0 {
		cfg.MaxOperations = def.MaxOperations
	}
	if cfg.MaxInvalidCalls <= 0 {
		cfg.MaxInvalidCalls = def.MaxInvalidCalls
	}
	if cfg.ResolverTimeout <= 0 {
		cfg.ResolverTimeout = def.ResolverTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	return &Orchestrator{
		store:    store,
		exec:     exec,
		resolver: resolver,
		ops:      operations.Descriptors(),
		cfg:      cfg,
		logger:   slog.Default(),
	}
}

type Request struct {
	Owner          string
	ConversationID string
	Utterance      string
}

// Invocation is one operation performed during a turn. The list of
// invocations is returned to the caller and stored as the operation record of
// the assistant message.
type Invocation struct {
	Name        string          `json:"name"`
	Arguments   json.RawMessage `json:"arguments"`
	OutcomeKind operations.Kind `json:"outcomeKind"`
	Result      any             `json:"result,omitempty"`
}

type failure struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

func invocationOf(name string, args json.RawMessage, o operations.Outcome) Invocation {
	inv := Invocation{Name: name, Arguments: args, OutcomeKind: o.Kind, Result: o.Result}
	if !o.OK() {
		inv.Result = failure{Field: o.Field, Message: o.Message}
	}
	return inv
}

type Result struct {
	ConversationID string       `json:"conversationId"`
	Reply          string       `json:"reply"`
	Operations     []Invocation `json:"operations"`
}

const bestEffortPrefix = "I couldn't finish that right now."

// RunTurn processes one utterance. Errors are always *Error.
func (o *Orchestrator) RunTurn(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return Result{}, validation("owner", "is required")
	}
	utterance := sanitize.Text(req.Utterance)
	switch n := utf8.RuneCountInString(utterance); {
	case n == 0:
		return Result{}, validation("utterance", "must not be empty")
	case n > MaxUtteranceLength:
		return Result{}, validation("utterance", "must be at most 2000 characters")
	}

	conv, err := o.resolveConversation(ctx, owner, req.ConversationID)
	if err != nil {
		return Result{}, err
	}
	log := o.logger.With("conversation_id", conv.ID, "owner", owner)

	history, err := withStore(ctx, o.cfg.StoreTimeout, "loading history", func(ctx context.Context) ([]storage.Message, error) {
		return o.store.GetRecentMessages(ctx, conv.ID, owner, o.cfg.HistoryLimit)
	})
	if err != nil {
		return Result{}, withConversation(err, conv.ID)
	}

	// The utterance is durable before any reasoning call.
	if _, err := withStore(ctx, o.cfg.StoreTimeout, "recording utterance", func(ctx context.Context) (storage.Message, error) {
		return o.store.AppendMessage(ctx, conv.ID, owner, storage.RoleUser, utterance, nil)
	}); err != nil {
		return Result{}, withConversation(err, conv.ID)
	}

	entries := make([]reasoning.Entry, 0, len(history)+1+o.cfg.MaxOperations)
	for _, m := range history {
		entries = append(entries, reasoning.MessageEntry(string(m.Role), m.Content, m.OperationRecord))
	}
	entries = append(entries, reasoning.MessageEntry(string(storage.RoleUser), utterance, nil))

	reply, invocations, err := o.loop(ctx, owner, entries, log)
	if err != nil {
		return Result{}, withConversation(err, conv.ID)
	}

	// Operations may already have run; persist the outcome even if the
	// caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	var record json.RawMessage
	if len(invocations) > 0 {
		if record, err = json.Marshal(invocations); err != nil {
			return Result{}, &Error{Kind: KindStoreError, Detail: "storage failure", ConversationID: conv.ID, Err: err}
		}
	}
	if _, err := withStore(persistCtx, o.cfg.StoreTimeout, "recording reply", func(ctx context.Context) (storage.Message, error) {
		return o.store.AppendMessage(ctx, conv.ID, owner, storage.RoleAssistant, truncate(reply, storage.MaxContentLength), record)
	}); err != nil {
		log.Error("reply not recorded", "error", err, "operations", len(invocations))
		return Result{}, withConversation(err, conv.ID)
	}

	if !o.cfg.DisableTitleJobs && !answered(history) {
		o.enqueueTitle(conv.ID, owner, log)
	}

	if invocations == nil {
		invocations = []Invocation{}
	}
	log.Info("turn completed",
		"operations", len(invocations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{ConversationID: conv.ID, Reply: reply, Operations: invocations}, nil
}

// loop alternates between the resolver and the executor until the resolver
// replies or a cap is reached.
func (o *Orchestrator) loop(ctx context.Context, owner string, entries []reasoning.Entry, log *slog.Logger) (string, []Invocation, error) {
	var (
		invocations []Invocation
		steps       []reasoning.Step
		invalid     int
	)
	for {
		rctx, cancel := context.WithTimeout(ctx, o.cfg.ResolverTimeout)
		d, err := o.resolver.ResolveTurn(rctx, entries, o.ops)
		cancel()
		if err != nil {
			log.Warn("reasoning provider failed", "error", err, "operations", len(invocations))
			if len(steps) == 0 {
				return "", nil, &Error{
					Kind:   KindServiceUnavailable,
					Detail: "the assistant is unavailable, your message was saved, try again",
					Err:    err,
				}
			}
			return bestEffortPrefix + " " + summarize(steps), invocations, nil
		}

		if d.Kind == reasoning.KindReply {
			text := strings.TrimSpace(d.Text)
			if text == "" {
				text = summarize(steps)
			}
			return text, invocations, nil
		}

		if len(invocations) >= o.cfg.MaxOperations {
			log.Warn("operation cap reached", "max", o.cfg.MaxOperations)
			return summarize(steps), invocations, nil
		}

		callID := d.CallID
		if callID == "" {
			callID = "call_" + uuid.NewString()[:8]
		}
		args := d.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}

		_, known := operations.Lookup(d.Name)
		ectx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
		outcome := o.exec.Execute(ectx, owner, d.Name, args)
		cancel()

		step := reasoning.Step{CallID: callID, Name: d.Name, Arguments: args, Outcome: outcome, Signature: d.Signature}
		entries = append(entries, reasoning.StepEntry(step))
		if known {
			steps = append(steps, step)
			invocations = append(invocations, invocationOf(d.Name, args, outcome))
		}
		if !known || outcome.Kind == operations.KindValidationError {
			invalid++
			if invalid > o.cfg.MaxInvalidCalls {
				log.Warn("too many invalid operation calls", "invalid", invalid)
				if len(steps) == 0 {
					return "Sorry, I wasn't able to work out how to do that. Could you rephrase?", invocations, nil
				}
				return summarize(steps), invocations, nil
			}
		}
	}
}

func (o *Orchestrator) resolveConversation(ctx context.Context, owner, id string) (storage.Conversation, error) {
	if id == "" {
		return withStore(ctx, o.cfg.StoreTimeout, "creating conversation", func(ctx context.Context) (storage.Conversation, error) {
			return o.store.CreateConversation(ctx, owner, "")
		})
	}
	if _, err := uuid.Parse(id); err != nil {
		return storage.Conversation{}, validation("conversationId", "must be a valid id")
	}
	return withStore(ctx, o.cfg.StoreTimeout, "loading conversation", func(ctx context.Context) (storage.Conversation, error) {
		return o.store.GetConversation(ctx, id, owner)
	})
}

// withStore runs fn under the store timeout and classifies its error.
func withStore[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(sctx)
	if err != nil {
		var zero T
		return zero, storeError(op, err)
	}
	return v, nil
}

func (o *Orchestrator) enqueueTitle(conversationID, owner string, log *slog.Logger) {
	payload, err := json.Marshal(storage.TitlePayload{ConversationID: conversationID, Owner: owner})
	if err == nil {
		err = o.store.EnqueueJob(storage.Job{
			ID:          uuid.NewString(),
			Type:        storage.JobConversationTitle,
			PayloadJSON: string(payload),
		})
	}
	if err != nil {
		log.Warn("title job not queued", "error", err)
	}
}

// answered reports whether an assistant reply is already stored. A first
// turn that failed leaves only the user message behind.
func answered(history []storage.Message) bool {
	for _, m := range history {
		if m.Role == storage.RoleAssistant {
			return true
		}
	}
	return false
}

func withConversation(err error, id string) error {
	if e, ok := err.(*Error); ok {
		e.ConversationID = id
		return e
	}
	return &Error{Kind: KindStoreError, Detail: "storage failure", ConversationID: id, Err: err}
}

// summarize describes the steps of a turn when no model composed a reply.
func summarize(steps []reasoning.Step) string {
	if len(steps) == 0 {
		return "I wasn't able to complete that request."
	}
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = reasoning.Describe(s)
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
