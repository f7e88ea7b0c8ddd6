package inference

// Options carries caller overrides for one generation call. Nil fields fall
// back to the base Request they are resolved against; StopMarkers are
// additive.
type Options struct {
	MaxTokens *int
	Seed      *int64

	Temperature      *float64
	TopK             *int
	TopP             *float64
	MinP             *float64
	RepeatPenalty    *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	PenaltyLastN     *int

	StopMarkers []string

	HideSpecial        *bool
	RetainHiddenInScan *bool
	EchoPrompt         *bool
}

// Request is a fully resolved generation instruction. The prompt text itself
// travels alongside it; the tokenize hints and stop/hidden sets come from the
// session's template.
type Request struct {
	// AddBOS and ParseSpecial are passed through to Engine.Tokenize.
	AddBOS       bool
	ParseSpecial bool

	// MaxTokens bounds the position cursor (prompt plus generated tokens).
	// Values <= 0 or beyond the engine context are capped at the context
	// window.
	MaxTokens int
	Seed      int64

	Temperature      float64
	TopK             int
	TopP             float64
	MinP             float64
	RepeatPenalty    float64
	FrequencyPenalty float64
	PresencePenalty  float64
	PenaltyLastN     int

	// StopMarkers end the generation when they appear in the scanned text.
	StopMarkers []string

	// HiddenText literals are excised from the visible stream when
	// HideSpecial is set. RetainHiddenInScan keeps the excised literals
	// visible to the stop-marker scan.
	HiddenText         []string
	HideSpecial        bool
	RetainHiddenInScan bool

	// EchoPrompt streams the rendered prompt before generation begins.
	EchoPrompt bool
}

// Defaults returns the baseline Request.
func Defaults() Request {
	return Request{
		AddBOS:             true,
		ParseSpecial:       true,
		MaxTokens:          1000,
		Seed:               -1,
		Temperature:        0.8,
		TopK:               45,
		TopP:               0.95,
		MinP:               0.0,
		RepeatPenalty:      1.1,
		FrequencyPenalty:   0.0,
		PresencePenalty:    0.0,
		PenaltyLastN:       64,
		HideSpecial:        true,
		RetainHiddenInScan: true,
	}
}

// ResolveOptions overlays opts onto base, field by field. StopMarkers append
// rather than replace.
func ResolveOptions(opts Options, base Request) Request {
	req := base

	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopK != nil {
		req.TopK = *opts.TopK
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.MinP != nil {
		req.MinP = *opts.MinP
	}
	if opts.RepeatPenalty != nil {
		req.RepeatPenalty = *opts.RepeatPenalty
	}
	if opts.FrequencyPenalty != nil {
		req.FrequencyPenalty = *opts.FrequencyPenalty
	}
	if opts.PresencePenalty != nil {
		req.PresencePenalty = *opts.PresencePenalty
	}
	if opts.PenaltyLastN != nil {
		req.PenaltyLastN = *opts.PenaltyLastN
	}
	if len(opts.StopMarkers) > 0 {
		req.StopMarkers = append(append([]string(nil), base.StopMarkers...), opts.StopMarkers...)
	}
	if opts.HideSpecial != nil {
		req.HideSpecial = *opts.HideSpecial
	}
	if opts.RetainHiddenInScan != nil {
		req.RetainHiddenInScan = *opts.RetainHiddenInScan
	}
	if opts.EchoPrompt != nil {
		req.EchoPrompt = *opts.EchoPrompt
	}

	return req
}
