// Package titler names new conversations in the background.
package titler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kalambet/tasktalk/internal/ollama"
	"github.com/kalambet/tasktalk/internal/sanitize"
	"github.com/kalambet/tasktalk/internal/storage"
)

// MaxTitleLength bounds generated titles, in characters.
const MaxTitleLength = 60

// Titler proposes a title for a conversation from its opening messages.
type Titler interface {
	Title(ctx context.Context, msgs []storage.Message) (string, error)
}

// Heuristic titles a conversation with its first user utterance.
type Heuristic struct{}

func (Heuristic) Title(_ context.Context, msgs []storage.Message) (string, error) {
	for _, m := range msgs {
		if m.Role != storage.RoleUser {
			continue
		}
		if t := sanitize.Title(m.Content, MaxTitleLength); t != "" {
			return capitalize(t), nil
		}
	}
	return "", errors.New("no user message to title from")
}

// Completer is the slice of the ollama client the model titler needs.
type Completer interface {
	Complete(ctx context.Context, model string, messages []ollama.Message) (string, error)
}

// Model asks a local model for a title and falls back to the heuristic when
// the model is unreachable or answers with nothing usable.
type Model struct {
	client Completer
	model  string
}

func NewModel(client Completer, model string) *Model {
	return &Model{client: client, model: model}
}

const titlePrompt = `Write a short title (at most 6 words) for a conversation with a task assistant that starts with the messages below. Reply with the title only, no quotes or punctuation at the end.`

func (m *Model) Title(ctx context.Context, msgs []storage.Message) (string, error) {
	var sb strings.Builder
	for i, msg := range msgs {
		if i == 4 {
			break
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", msg.Role, msg.Content)
	}
	out, err := m.client.Complete(ctx, m.model, []ollama.Message{
		{Role: "system", Content: titlePrompt},
		{Role: "user", Content: sb.String()},
	})
	if err == nil {
		t := strings.Trim(sanitize.Text(out), `"'`)
		if t = strings.TrimRight(sanitize.Title(t, MaxTitleLength), " .!?"); t != "" {
			return t, nil
		}
	}
	return Heuristic{}.Title(ctx, msgs)
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
