//go:build !llama

package llama

// CGO-free stand-ins compiled when the llama tag is absent, so default
// builds, tests and CI need no native toolchain. Every operation that would
// touch the native library reports ErrNotBuilt.

import "github.com/samcharles93/crust/internal/inference"

// Model is a placeholder for the native model handle.
type Model struct{}

// LoadModel always fails without native support.
func LoadModel(path string, cfg Config) (*Model, error) {
	return nil, ErrNotBuilt
}

func (m *Model) Close() error { return nil }

func (m *Model) VocabSize() int { return 0 }

func (m *Model) NewContext(cfg Config) (*Context, error) {
	return nil, ErrNotBuilt
}

// Context is a placeholder for the native context window.
type Context struct{}

var _ inference.Engine = (*Context)(nil)

// Open always fails without native support.
func Open(path string, cfg Config) (*Context, error) {
	return nil, ErrNotBuilt
}

func (c *Context) Tokenize(text string, addBOS, parseSpecial bool) ([]inference.Token, error) {
	return nil, ErrNotBuilt
}

func (c *Context) Piece(token inference.Token) (string, error) {
	return "", ErrNotBuilt
}

func (c *Context) Forward(tokens []inference.Token, startPos int, logitsForLastOnly bool) error {
	return ErrNotBuilt
}

func (c *Context) Logits() []float32 { return nil }

func (c *Context) IsEndOfGeneration(token inference.Token) bool { return false }

func (c *Context) ContextSize() int { return 0 }

func (c *Context) VocabSize() int { return 0 }

func (c *Context) Close() error { return nil }
