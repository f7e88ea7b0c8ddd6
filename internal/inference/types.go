package inference

import "time"

// Token is an id in the engine's vocabulary.
type Token = int32

// StreamFunc receives text fragments as they survive the stop scan. Delivery
// is synchronous: the decode loop does not advance until the callback
// returns.
type StreamFunc func(fragment string)

// Engine is the native inference boundary: tokenization, the forward pass
// and logits access. Implementations own a context window with positional
// cache state, so an Engine must not serve two generations concurrently;
// Session enforces that.
type Engine interface {
	// Tokenize encodes text into token ids. addBOS prepends the model's
	// beginning-of-sequence token; parseSpecial lets control-token literals
	// in the text encode to their ids.
	Tokenize(text string, addBOS, parseSpecial bool) ([]Token, error)

	// Piece decodes a single token id to its text.
	Piece(token Token) (string, error)

	// Forward evaluates tokens at positions startPos.. against the cached
	// context. When logitsForLastOnly is set, only the final position
	// produces logits.
	Forward(tokens []Token, startPos int, logitsForLastOnly bool) error

	// Logits returns the logits of the last evaluated position. The slice
	// is valid until the next Forward call.
	Logits() []float32

	// IsEndOfGeneration reports whether token ends a generation (EOS, EOT
	// and relatives).
	IsEndOfGeneration(token Token) bool

	ContextSize() int
	VocabSize() int
	Close() error
}

// FinishReason names the terminal condition of a generation call.
type FinishReason string

const (
	// FinishEOS: the sampled token was in the engine's end-of-generation set.
	FinishEOS FinishReason = "eos"
	// FinishMaxTokens: the position cursor reached the token budget.
	FinishMaxTokens FinishReason = "max_tokens"
	// FinishStop: a textual stop marker matched the accumulated output.
	FinishStop FinishReason = "stop"
	// FinishCancelled: the caller's context was cancelled between steps.
	FinishCancelled FinishReason = "cancelled"
	// FinishError: the engine failed mid-decode; Result.Text holds the
	// streamed prefix.
	FinishError FinishReason = "error"
)

// Stats describes one generation call.
type Stats struct {
	PromptTokens    int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

// Result is the outcome of a generation call. Text is the accumulated reply
// after stop-marker truncation and special-token suppression.
type Result struct {
	Text   string
	Reason FinishReason
	Stats  Stats
}
