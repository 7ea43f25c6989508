package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/kalambet/tasktalk/internal/operations"
)

// ContentGenerator is satisfied by (*genai.Client).Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini resolves turns with the Google Gen AI SDK.
type Gemini struct {
	models ContentGenerator
	model  string
	now    func() time.Time
}

func NewGemini(ctx context.Context, apiKey, model string, now func() time.Time) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return NewGeminiWithModels(client.Models, model, now), nil
}

func NewGeminiWithModels(m ContentGenerator, model string, now func() time.Time) *Gemini {
	if now == nil {
		now = time.Now
	}
	return &Gemini{models: m, model: model, now: now}
}

func (g *Gemini) ResolveTurn(ctx context.Context, history []Entry, ops []operations.Descriptor) (Decision, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemPrompt(ops, g.now())}}},
		Temperature:       ptr[float32](0),
	}
	if decls := geminiDeclarations(ops); len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := g.models.GenerateContent(ctx, g.model, geminiContents(history), config)
	if err != nil {
		return Decision{}, fmt.Errorf("gemini generate: %w", err)
	}
	return geminiDecision(resp)
}

func geminiContents(history []Entry) []*genai.Content {
	var contents []*genai.Content
	for _, e := range history {
		switch {
		case e.Message != nil:
			role := genai.RoleUser
			if e.Message.Role == "assistant" {
				role = genai.RoleModel
			}
			contents = append(contents, genai.NewContentFromText(recordNote(e.Message), genai.Role(role)))
		case e.Step != nil:
			var args map[string]any
			if err := json.Unmarshal(e.Step.Arguments, &args); err != nil {
				args = map[string]any{"raw": string(e.Step.Arguments)}
			}
			var result map[string]any
			json.Unmarshal([]byte(outcomeJSON(e.Step.Outcome)), &result)

			contents = append(contents,
				&genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{
					FunctionCall:     &genai.FunctionCall{ID: e.Step.CallID, Name: e.Step.Name, Args: args},
					ThoughtSignature: e.Step.Signature,
				}}},
				&genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{ID: e.Step.CallID, Name: e.Step.Name, Response: result},
				}}},
			)
		}
	}
	return contents
}

func geminiDecision(resp *genai.GenerateContentResponse) (Decision, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Decision{}, fmt.Errorf("gemini returned no candidates")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			fc := part.FunctionCall
			id := fc.ID
			if id == "" {
				id = "call-" + uuid.NewString()[:8]
			}
			args, err := json.Marshal(fc.Args)
			if err != nil || fc.Args == nil {
				args = []byte(`{}`)
			}
			d := Invoke(id, fc.Name, args)
			d.Signature = part.ThoughtSignature
			return d, nil
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	return Reply(text.String()), nil
}

// geminiDeclarations converts operation schemas. Gemini accepts only a subset
// of JSON Schema formats, so bounds and formats are folded into descriptions;
// the executor enforces them anyway.
func geminiDeclarations(ops []operations.Descriptor) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(ops))
	for _, op := range ops {
		props := make(map[string]*genai.Schema, len(op.Schema.Properties))
		for _, name := range op.Schema.PropertyNames() {
			p := op.Schema.Properties[name]
			s := &genai.Schema{Description: geminiDescription(p), Enum: p.Enum}
			switch p.Type {
			case "integer":
				s.Type = genai.TypeInteger
			default:
				s.Type = genai.TypeString
			}
			if len(p.Enum) > 0 {
				s.Format = "enum"
			}
			props[name] = s
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        op.Name,
			Description: op.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   op.Schema.Required,
			},
		})
	}
	return decls
}

func geminiDescription(p operations.Property) string {
	parts := []string{p.Description}
	if p.Format == operations.FormatUUID {
		parts = append(parts, "(UUID)")
	}
	if p.MaxLength != nil {
		parts = append(parts, fmt.Sprintf("(max %d characters)", *p.MaxLength))
	}
	if p.Minimum != nil && p.Maximum != nil {
		parts = append(parts, fmt.Sprintf("(%d to %d)", *p.Minimum, *p.Maximum))
	}
	return strings.Join(parts, " ")
}

var _ Resolver = (*Gemini)(nil)
