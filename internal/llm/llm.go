// Package llm wraps the Anthropic API for merge conflict reconciliation.
package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client asks a model to reconcile source conflicts that the mechanical
// strategies cannot. It satisfies the resolver's assist interface.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

const reconcileSystem = `You reconcile merge conflicts in source code. You receive the common ancestor version, the target branch version ("ours"), and the incoming branch version ("theirs") of one file.

Produce a single merged version of the file that preserves the intent of BOTH sides. When both sides change the same lines, combine the changes when they are compatible; when they are not, prefer the incoming branch's version.

Rules:
- Return ONLY the complete merged file content, no markdown fencing, no commentary
- Never leave conflict markers in the output
- Preserve the file's existing formatting and style
- If you cannot produce a coherent merge, return exactly the text UNRESOLVABLE and nothing else`

func buildReconcilePrompt(file, base, ours, theirs string) string {
	var sb strings.Builder
	sb.WriteString("File: ")
	sb.WriteString(file)
	sb.WriteString("\n\n=== COMMON ANCESTOR ===\n")
	sb.WriteString(base)
	sb.WriteString("\n=== OURS (target branch) ===\n")
	sb.WriteString(ours)
	sb.WriteString("\n=== THEIRS (incoming branch) ===\n")
	sb.WriteString(theirs)
	return sb.String()
}

// Reconcile asks the model for a merged version of the file. It returns
// false when the call fails or the model declines, so the caller can fall
// through to its mechanical fallback.
func (c *Client) Reconcile(ctx context.Context, file, base, ours, theirs string) (string, bool) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: reconcileSystem},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildReconcilePrompt(file, base, ours, theirs))),
		},
	})
	if err != nil {
		return "", false
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", false
	}

	// Strip markdown fencing if present
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	if text == "UNRESOLVABLE" || strings.Contains(text, "<<<<<<<") {
		return "", false
	}

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text, true
}

// ModelName reports the configured model, for status output.
func (c *Client) ModelName() string {
	return string(c.model)
}
