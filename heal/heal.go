// Package heal asks a Claude model to diagnose a failing instrumented
// function from its recent execution log: the newest ERROR record plus a
// reference SUCCESS record give the model the failing inputs, the error
// text, and a known-good behavior to contrast against.
package heal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/store"
)

const systemPrompt = `You are a senior engineer diagnosing a production bug.
You are given execution logs for one function: a recent failing call and,
when available, a successful one. Identify the most likely root cause and
suggest a concrete fix. Answer with a short diagnosis followed by the
suggested fix.`

// Fetcher is the storage slice the healer reads through.
type Fetcher interface {
	Fetch(ctx context.Context, q store.Query) ([]core.ExecutionRecord, error)
}

// Healer produces LLM diagnoses for failing functions.
type Healer struct {
	store  Fetcher
	client *anthropic.Client
	model  string
}

// Option configures a Healer.
type Option func(*Healer)

// WithModel overrides the Claude model.
func WithModel(model string) Option {
	return func(h *Healer) {
		if model != "" {
			h.model = model
		}
	}
}

// New creates a Healer around an Anthropic client.
func New(st Fetcher, client *anthropic.Client, opts ...Option) *Healer {
	h := &Healer{
		store:  st,
		client: client,
		model:  "claude-sonnet-4-20250514",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Diagnose looks back over the given window for the newest failure of
// functionName and returns the model's diagnosis and suggested fix.
func (h *Healer) Diagnose(ctx context.Context, functionName string, lookback time.Duration) (string, error) {
	since := time.Now().UTC().Add(-lookback)

	failures, err := h.store.Fetch(ctx, store.Query{
		Filter: store.Filter{
			FunctionName: functionName,
			Statuses:     []core.Status{core.StatusError},
			Since:        since,
		},
		OrderBy:    store.FieldTimestamp,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("fetch failures for %q: %w", functionName, err)
	}
	if len(failures) == 0 {
		return "", fmt.Errorf("no failures recorded for %q in the last %s", functionName, lookback)
	}

	successes, err := h.store.Fetch(ctx, store.Query{
		Filter: store.Filter{
			FunctionName: functionName,
			Statuses:     []core.Status{core.StatusSuccess},
		},
		OrderBy:    store.FieldTimestamp,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("fetch reference success for %q: %w", functionName, err)
	}

	prompt := buildPrompt(functionName, &failures[0], successes)

	resp, err := h.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(h.model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var diagnosis strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			diagnosis.WriteString(block.Text)
		}
	}
	if diagnosis.Len() == 0 {
		return "", fmt.Errorf("model returned no text diagnosis")
	}
	return diagnosis.String(), nil
}

func buildPrompt(functionName string, failure *core.ExecutionRecord, successes []core.ExecutionRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Function: %s\n\n", functionName)
	fmt.Fprintf(&sb, "FAILING CALL (%s):\n", failure.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&sb, "  inputs: %s\n", inputsText(failure.Inputs))
	fmt.Fprintf(&sb, "  error: %s\n", failure.ErrorMessage)

	if len(successes) > 0 {
		ok := &successes[0]
		fmt.Fprintf(&sb, "\nREFERENCE SUCCESSFUL CALL (%s):\n", ok.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(&sb, "  inputs: %s\n", inputsText(ok.Inputs))
		fmt.Fprintf(&sb, "  return value: %s\n", ok.ReturnValue)
	} else {
		sb.WriteString("\nNo successful call is on record for comparison.\n")
	}
	return sb.String()
}

func inputsText(inputs map[string]any) string {
	text, err := core.EncodeReturnValue(inputs)
	if err != nil {
		return fmt.Sprintf("%v", inputs)
	}
	return text
}
