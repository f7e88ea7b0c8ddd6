// Package llama binds the native llama.cpp C API behind the
// inference.Engine contract. The real binding compiles only under the llama
// build tag; default builds get a CGO-free stub whose operations report
// ErrNotBuilt.
package llama

import "errors"

// ErrNotBuilt is returned by every stub operation when the binary was built
// without the llama tag.
var ErrNotBuilt = errors.New("llama: built without native support (rebuild with -tags llama)")

// Config sets up a model load and its context window.
type Config struct {
	// ContextSize is the token capacity of the context window.
	ContextSize int

	// BatchSize caps the tokens submitted per decode call; longer prompts
	// are fed in chunks.
	BatchSize int

	// Threads used for generation (and batch processing).
	Threads int

	// GPULayers offloads that many layers to the GPU; 0 keeps everything
	// on CPU.
	GPULayers int

	// UseMMap maps model weights instead of reading them into memory.
	UseMMap bool

	// UseMLock pins the weights in RAM.
	UseMLock bool
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		ContextSize: 4096,
		BatchSize:   512,
		Threads:     6,
		GPULayers:   0,
		UseMMap:     true,
		UseMLock:    false,
	}
}

// withDefaults fills non-positive numeric fields from DefaultConfig. The
// boolean fields pass through as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ContextSize <= 0 {
		c.ContextSize = d.ContextSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Threads <= 0 {
		c.Threads = d.Threads
	}
	if c.GPULayers < 0 {
		c.GPULayers = 0
	}
	return c
}
