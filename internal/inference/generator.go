package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/crust/internal/logits"
)

// Generator drives one prompt through an Engine: tokenize, prefill, then the
// sequential decode loop with sampling and stop scanning. It holds no state
// between calls; serialization per engine context is the caller's job.
type Generator struct {
	engine Engine
}

// NewGenerator returns a Generator over engine.
func NewGenerator(engine Engine) *Generator {
	return &Generator{engine: engine}
}

// Generate runs one generation call. Fragments surviving the stop scan are
// handed to stream in order; their concatenation equals Result.Text on every
// clean terminal. Clean terminals (end-of-generation token, token budget,
// stop marker, cancellation) return a nil error. Engine failures during
// decode return both a partial Result holding the already-streamed prefix
// and an error wrapping ErrEngine; stream is never called after that.
func (g *Generator) Generate(ctx context.Context, promptText string, req *Request, stream StreamFunc) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	sampler, err := logits.NewSampler(logits.Config{
		Temperature:      float32(req.Temperature),
		TopK:             req.TopK,
		TopP:             float32(req.TopP),
		MinP:             float32(req.MinP),
		RepeatPenalty:    float32(req.RepeatPenalty),
		FrequencyPenalty: float32(req.FrequencyPenalty),
		PresencePenalty:  float32(req.PresencePenalty),
		PenaltyLastN:     req.PenaltyLastN,
		Seed:             req.Seed,
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.EchoPrompt && stream != nil && promptText != "" {
		stream(promptText)
	}

	tokens, err := safeTokenize(g.engine, promptText, req.AddBOS, req.ParseSpecial)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenize, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: prompt produced no tokens", ErrTokenize)
	}

	limit := req.MaxTokens
	if n := g.engine.ContextSize(); n > 0 {
		if len(tokens) >= n {
			return nil, fmt.Errorf("%w: %d prompt tokens, context %d", ErrPromptTooLong, len(tokens), n)
		}
		if limit <= 0 || limit > n {
			limit = n
		}
	}

	hidden := req.HiddenText
	if !req.HideSpecial {
		hidden = nil
	}
	scanner := NewStopScanner(req.StopMarkers, hidden, req.RetainHiddenInScan)

	start := time.Now()
	if err := safeForward(g.engine, tokens, 0, true); err != nil {
		return nil, fmt.Errorf("%w: prefill: %w", ErrEngine, err)
	}

	history := append(make([]Token, 0, limit), tokens...)
	pos := len(tokens)
	gen := 0
	reason := FinishMaxTokens

	for pos < limit {
		if ctx.Err() != nil {
			reason = FinishCancelled
			break
		}

		next := sampler.Sample(g.engine.Logits(), history)
		if g.engine.IsEndOfGeneration(next) {
			reason = FinishEOS
			break
		}
		history = append(history, next)

		emit, stop := scanner.Push(safePiece(g.engine, next))
		if emit != "" && stream != nil {
			stream(emit)
		}
		if stop {
			reason = FinishStop
			break
		}

		if err := safeForward(g.engine, []Token{next}, pos, true); err != nil {
			res := &Result{
				Text:   scanner.Emitted(),
				Reason: FinishError,
				Stats:  newStats(len(tokens), gen, start),
			}
			return res, fmt.Errorf("%w: decode at position %d: %w", ErrEngine, pos, err)
		}
		pos++
		gen++
	}

	if tail := scanner.Flush(); tail != "" && stream != nil {
		stream(tail)
	}
	if scanner.Stopped() {
		reason = FinishStop
	}

	return &Result{
		Text:   scanner.Text(),
		Reason: reason,
		Stats:  newStats(len(tokens), gen, start),
	}, nil
}

func newStats(promptTokens, generated int, start time.Time) Stats {
	stats := Stats{
		PromptTokens:    promptTokens,
		TokensGenerated: generated,
		Duration:        time.Since(start),
	}
	if stats.Duration.Seconds() > 0 {
		stats.TPS = float64(generated) / stats.Duration.Seconds()
	}
	return stats
}

func safeTokenize(e Engine, text string, addBOS, parseSpecial bool) (tokens []Token, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Tokenize: %v", rec)
		}
	}()
	return e.Tokenize(text, addBOS, parseSpecial)
}

func safeForward(e Engine, tokens []Token, startPos int, lastOnly bool) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Forward: %v", rec)
		}
	}()
	return e.Forward(tokens, startPos, lastOnly)
}

// safePiece decodes one token, treating failures and panics as an empty
// piece rather than ending the stream.
func safePiece(e Engine, token Token) (piece string) {
	defer func() {
		if rec := recover(); rec != nil {
			piece = ""
		}
	}()
	piece, _ = e.Piece(token)
	return piece
}
