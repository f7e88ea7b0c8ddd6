//go:build llama

package llama

/*
#cgo LDFLAGS: -lllama -lm -lstdc++
#include <stdlib.h>
#include <llama.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/samcharles93/crust/internal/inference"
)

var backendOnce sync.Once

func initBackend() {
	backendOnce.Do(func() {
		C.llama_backend_init()
	})
}

// Model wraps loaded model weights. One Model serves any number of Contexts;
// close contexts before the model.
type Model struct {
	ptr *C.struct_llama_model
}

// LoadModel loads GGUF weights from path.
func LoadModel(path string, cfg Config) (*Model, error) {
	initBackend()
	cfg = cfg.withDefaults()

	mp := C.llama_model_default_params()
	mp.n_gpu_layers = C.int32_t(cfg.GPULayers)
	mp.use_mmap = C.bool(cfg.UseMMap)
	mp.use_mlock = C.bool(cfg.UseMLock)

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	ptr := C.llama_load_model_from_file(cpath, mp)
	if ptr == nil {
		return nil, fmt.Errorf("llama: failed to load model from %s", path)
	}
	return &Model{ptr: ptr}, nil
}

// Close releases the model weights. Contexts created from the model must be
// closed first.
func (m *Model) Close() error {
	if m.ptr != nil {
		C.llama_free_model(m.ptr)
		m.ptr = nil
	}
	return nil
}

// VocabSize returns the model's vocabulary size.
func (m *Model) VocabSize() int {
	return int(C.llama_n_vocab(m.ptr))
}

// Tokenize encodes text. A first pass with a generous buffer handles almost
// everything; a negative count reports the exact size for the retry.
func (m *Model) Tokenize(text string, addBOS, parseSpecial bool) ([]inference.Token, error) {
	if m.ptr == nil {
		return nil, fmt.Errorf("llama: tokenize on closed model")
	}
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	buf := make([]C.llama_token, len(text)+8)
	n := C.llama_tokenize(m.ptr, ctext, C.int32_t(len(text)),
		&buf[0], C.int32_t(len(buf)), C.bool(addBOS), C.bool(parseSpecial))
	if n < 0 {
		buf = make([]C.llama_token, -n)
		n = C.llama_tokenize(m.ptr, ctext, C.int32_t(len(text)),
			&buf[0], C.int32_t(len(buf)), C.bool(addBOS), C.bool(parseSpecial))
	}
	if n < 0 {
		return nil, fmt.Errorf("llama: tokenize failed for %d bytes of text", len(text))
	}

	out := make([]inference.Token, n)
	for i := range out {
		out[i] = inference.Token(buf[i])
	}
	return out, nil
}

// TokenToPiece decodes one token, rendering special tokens as their literal
// text so the stop scanner can see them.
func (m *Model) TokenToPiece(token inference.Token) (string, error) {
	if m.ptr == nil {
		return "", fmt.Errorf("llama: piece lookup on closed model")
	}
	buf := make([]C.char, 64)
	n := C.llama_token_to_piece(m.ptr, C.llama_token(token), &buf[0], C.int32_t(len(buf)), C.bool(true))
	if n < 0 {
		buf = make([]C.char, -n)
		n = C.llama_token_to_piece(m.ptr, C.llama_token(token), &buf[0], C.int32_t(len(buf)), C.bool(true))
	}
	if n < 0 {
		return "", fmt.Errorf("llama: no piece for token %d", token)
	}
	return C.GoStringN(&buf[0], n), nil
}

// IsEndOfGeneration reports whether token is in the model's end-of-generation
// set (EOS, EOT and friends).
func (m *Model) IsEndOfGeneration(token inference.Token) bool {
	return bool(C.llama_token_is_eog(m.ptr, C.llama_token(token)))
}

// Context is one context window over a Model and implements
// inference.Engine. It is not safe for concurrent Forward calls.
type Context struct {
	model     *Model
	ownsModel bool

	ptr    *C.struct_llama_context
	batch  C.struct_llama_batch
	nCtx   int
	nBatch int
	vocab  int
	logits []float32
}

var _ inference.Engine = (*Context)(nil)

// NewContext creates a context window over the model.
func (m *Model) NewContext(cfg Config) (*Context, error) {
	cfg = cfg.withDefaults()

	cp := C.llama_context_default_params()
	cp.n_ctx = C.uint32_t(cfg.ContextSize)
	cp.n_batch = C.uint32_t(cfg.BatchSize)
	cp.n_threads = C.uint32_t(cfg.Threads)
	cp.n_threads_batch = C.uint32_t(cfg.Threads)

	ptr := C.llama_new_context_with_model(m.ptr, cp)
	if ptr == nil {
		return nil, fmt.Errorf("llama: failed to create context (n_ctx=%d)", cfg.ContextSize)
	}

	vocab := m.VocabSize()
	return &Context{
		model:  m,
		ptr:    ptr,
		batch:  C.llama_batch_init(C.int32_t(cfg.BatchSize), 0, 1),
		nCtx:   int(C.llama_n_ctx(ptr)),
		nBatch: cfg.BatchSize,
		vocab:  vocab,
		logits: make([]float32, vocab),
	}, nil
}

// Open loads the model at path and wraps it in a single context. The
// returned context owns the model: closing it releases both.
func Open(path string, cfg Config) (*Context, error) {
	model, err := LoadModel(path, cfg)
	if err != nil {
		return nil, err
	}
	ctx, err := model.NewContext(cfg)
	if err != nil {
		model.Close()
		return nil, err
	}
	ctx.ownsModel = true
	return ctx, nil
}

func (c *Context) Tokenize(text string, addBOS, parseSpecial bool) ([]inference.Token, error) {
	return c.model.Tokenize(text, addBOS, parseSpecial)
}

func (c *Context) Piece(token inference.Token) (string, error) {
	return c.model.TokenToPiece(token)
}

func (c *Context) IsEndOfGeneration(token inference.Token) bool {
	return c.model.IsEndOfGeneration(token)
}

func (c *Context) ContextSize() int { return c.nCtx }

func (c *Context) VocabSize() int { return c.vocab }

// Forward evaluates tokens at consecutive positions from startPos, feeding
// the native decoder in batch-sized chunks. With logitsForLastOnly only the
// final token requests logits. startPos 0 begins a fresh evaluation, so the
// positional cache is cleared first.
func (c *Context) Forward(tokens []inference.Token, startPos int, logitsForLastOnly bool) error {
	if c.ptr == nil {
		return fmt.Errorf("llama: forward on closed context")
	}
	if len(tokens) == 0 {
		return fmt.Errorf("llama: forward of empty token batch")
	}
	if startPos == 0 {
		C.llama_kv_cache_clear(c.ptr)
	}
	for off := 0; off < len(tokens); off += c.nBatch {
		end := min(off+c.nBatch, len(tokens))
		last := !logitsForLastOnly || end == len(tokens)
		if err := c.decode(tokens[off:end], startPos+off, logitsForLastOnly, last); err != nil {
			return err
		}
	}
	return nil
}

// decode submits one chunk. wantLogits marks whether this chunk's final
// token should produce logits (and have them captured).
func (c *Context) decode(tokens []inference.Token, startPos int, lastOnly, wantLogits bool) error {
	n := len(tokens)
	c.batch.n_tokens = C.int32_t(n)

	toks := unsafe.Slice(c.batch.token, n)
	pos := unsafe.Slice(c.batch.pos, n)
	nSeq := unsafe.Slice(c.batch.n_seq_id, n)
	seq := unsafe.Slice(c.batch.seq_id, n)
	out := unsafe.Slice(c.batch.logits, n)

	for i := 0; i < n; i++ {
		toks[i] = C.llama_token(tokens[i])
		pos[i] = C.llama_pos(startPos + i)
		nSeq[i] = 1
		unsafe.Slice(seq[i], 1)[0] = 0
		if lastOnly {
			out[i] = 0
		} else {
			out[i] = 1
		}
	}
	if wantLogits {
		out[n-1] = 1
	}

	if status := C.llama_decode(c.ptr, c.batch); status != 0 {
		return fmt.Errorf("llama: decode failed with status %d at position %d", int(status), startPos)
	}

	if wantLogits {
		src := C.llama_get_logits_ith(c.ptr, C.int32_t(n-1))
		if src == nil {
			return fmt.Errorf("llama: no logits at position %d", startPos+n-1)
		}
		copy(c.logits, unsafe.Slice((*float32)(unsafe.Pointer(src)), c.vocab))
	}
	return nil
}

// Logits returns the captured logits of the last evaluated position. The
// slice is overwritten by the next Forward.
func (c *Context) Logits() []float32 { return c.logits }

// Close frees the context (and the model, when created through Open).
func (c *Context) Close() error {
	if c.ptr != nil {
		C.llama_batch_free(c.batch)
		C.llama_free(c.ptr)
		c.ptr = nil
	}
	if c.ownsModel && c.model != nil {
		c.model.Close()
		c.model = nil
	}
	return nil
}
