package inference

import "errors"

var (
	// ErrTokenize wraps engine tokenization failures. Nothing has been
	// streamed and no conversation state has changed when it is returned.
	ErrTokenize = errors.New("inference: tokenize failed")

	// ErrEngine wraps forward-pass failures. The wrapping error names the
	// phase (prefill or decode position); a partial Result may accompany it.
	ErrEngine = errors.New("inference: engine failure")

	// ErrPromptTooLong reports a prompt that does not fit the engine's
	// context window.
	ErrPromptTooLong = errors.New("inference: prompt exceeds context window")

	// ErrBusy reports a second generation call on a session whose previous
	// call has not returned.
	ErrBusy = errors.New("inference: generation already in flight")
)
