package actions

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/xbora/mio/internal/types"
)

// PromptBudget caps the size of instruction prompts in model tokens.
type PromptBudget struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
}

// NewPromptBudget selects the tokenizer for model (e.g. "gpt-4"), falling
// back to cl100k_base for unknown models. maxTokens <= 0 disables the check.
func NewPromptBudget(model string, maxTokens int) (*PromptBudget, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &PromptBudget{tokenizer: enc, maxTokens: maxTokens}, nil
}

// Count returns the token count for text.
func (b *PromptBudget) Count(text string) int {
	return len(b.tokenizer.Encode(text, nil, nil))
}

// Check returns a ValidationError when text exceeds the budget.
func (b *PromptBudget) Check(text string) error {
	if b == nil || b.maxTokens <= 0 {
		return nil
	}
	if n := b.Count(text); n > b.maxTokens {
		return types.Invalid("instruction_prompt", "instruction_prompt must be at most %d tokens", b.maxTokens)
	}
	return nil
}
