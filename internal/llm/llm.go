package llm

import "context"

// CompletionModel is the interface for a hosted large language model that can
// produce a text completion for a prompt with an optional system instruction.
type CompletionModel interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
}
