package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate and NewSampler when a
// sampling parameter is out of range.
var ErrInvalidConfig = errors.New("logits: invalid config")

// Temperatures at or below this are treated as greedy decoding.
const greedyCutoff = 1e-4

// Config holds the sampling parameters for one generation call. Values are
// fixed at NewSampler time; a zero field means the stage it controls is
// disabled, except TopP which has no neutral zero and must be set.
type Config struct {
	// Temperature flattens (>1) or sharpens (<1) the final distribution.
	// At or below 1e-4 sampling is greedy.
	Temperature float32

	// TopK keeps only the K highest-scoring tokens. 0 keeps all.
	TopK int

	// TopP keeps the smallest set of tokens whose cumulative probability
	// reaches P. Must be in (0,1]; 1 keeps all.
	TopP float32

	// MinP drops tokens whose probability is below MinP times the
	// probability of the most likely token. Must be in [0,1); 0 keeps all.
	MinP float32

	// RepeatPenalty divides the score of recently seen tokens (multiplies
	// when the score is negative). 0 or 1 disables.
	RepeatPenalty float32

	// FrequencyPenalty subtracts count*penalty from each recently seen
	// token's score. 0 disables.
	FrequencyPenalty float32

	// PresencePenalty subtracts a flat penalty from each recently seen
	// token's score. 0 disables.
	PresencePenalty float32

	// PenaltyLastN bounds the trailing window of history the penalties
	// consider. 0 means the entire history.
	PenaltyLastN int

	// Seed fixes the random stream. Negative seeds derive from the clock.
	Seed int64
}

// Validate reports the first out-of-range parameter, if any.
func (c Config) Validate() error {
	switch {
	case c.Temperature < 0:
		return fmt.Errorf("%w: temperature %v must be >= 0", ErrInvalidConfig, c.Temperature)
	case c.TopK < 0:
		return fmt.Errorf("%w: top-k %d must be >= 0", ErrInvalidConfig, c.TopK)
	case c.TopP <= 0 || c.TopP > 1:
		return fmt.Errorf("%w: top-p %v must be in (0,1]", ErrInvalidConfig, c.TopP)
	case c.MinP < 0 || c.MinP >= 1:
		return fmt.Errorf("%w: min-p %v must be in [0,1)", ErrInvalidConfig, c.MinP)
	case c.RepeatPenalty < 0:
		return fmt.Errorf("%w: repeat penalty %v must be >= 0", ErrInvalidConfig, c.RepeatPenalty)
	case c.FrequencyPenalty < 0:
		return fmt.Errorf("%w: frequency penalty %v must be >= 0", ErrInvalidConfig, c.FrequencyPenalty)
	case c.PresencePenalty < 0:
		return fmt.Errorf("%w: presence penalty %v must be >= 0", ErrInvalidConfig, c.PresencePenalty)
	case c.PenaltyLastN < 0:
		return fmt.Errorf("%w: penalty window %d must be >= 0", ErrInvalidConfig, c.PenaltyLastN)
	}
	return nil
}

// Sampler turns a logits vector into one sampled token. It is stateful only
// in its random stream and scratch buffers and must not be shared across
// goroutines.
type Sampler struct {
	rng       *rand.Rand
	cfg       Config
	greedy    bool
	topIdx    []int
	topVal    []float32
	prob      []float64
	seenMark  []uint32
	seenCount []int32
	seenEpoch uint32
	seenList  []int
}

// NewSampler validates cfg and returns a sampler seeded from cfg.Seed.
func NewSampler(cfg Config) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	greedy := cfg.Temperature <= greedyCutoff
	if greedy {
		cfg.Temperature = 1
	}
	if cfg.RepeatPenalty == 0 {
		cfg.RepeatPenalty = 1
	}
	seed := cfg.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(seed)),
		cfg:    cfg,
		greedy: greedy,
	}, nil
}

// Sample draws a single token id from logits. history is the sequence of
// token ids already in the context, oldest first; the penalties consider its
// trailing PenaltyLastN entries. The stages run in order:
//
//  1. Repeat/frequency/presence penalties adjust the scores of tokens seen
//     in the history window (in place).
//  2. The TopK highest-scoring tokens are shortlisted, ordered descending.
//  3. A softmax over the shortlist feeds the TopP cumulative cutoff, then
//     the MinP threshold relative to the most likely survivor.
//  4. Greedy temperature returns the top survivor outright; otherwise the
//     final distribution is a softmax of the survivors' scores scaled by
//     the inverse temperature, and one token is drawn from it.
func (s *Sampler) Sample(logits []float32, history []int32) int32 {
	s.penalize(logits, history)

	if s.greedy {
		return int32(argmax(logits))
	}

	k := s.cfg.TopK
	if k <= 0 || k > len(logits) {
		k = len(logits)
	}
	topIdx, topVal := s.topK(logits, k)
	if len(topVal) == 0 {
		return 0
	}

	// Softmax at unit temperature; topVal is sorted so topVal[0] is the max.
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i := range topVal {
		e := math.Exp(float64(topVal[i] - topVal[0]))
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return int32(topIdx[0])
	}
	invSum := 1.0 / sum
	for i := range prob {
		prob[i] *= invSum
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	if s.cfg.MinP > 0 {
		threshold := prob[0] * float64(s.cfg.MinP)
		for i := 1; i < cut; i++ {
			if prob[i] < threshold {
				cut = i
				break
			}
		}
	}

	// Final distribution over the survivors at the configured temperature.
	invTemp := float64(1) / float64(s.cfg.Temperature)
	sum = 0
	for i := 0; i < cut; i++ {
		w := math.Exp(float64(topVal[i]-topVal[0]) * invTemp)
		prob[i] = w
		sum += w
	}

	r := s.rng.Float64() * sum
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r <= c {
			return int32(topIdx[i])
		}
	}
	return int32(topIdx[cut-1])
}

// penalize adjusts logits in place for tokens appearing in the trailing
// PenaltyLastN window of history. Each distinct token is penalized once:
// the repeat penalty divides positive scores and multiplies negative ones,
// the frequency penalty scales with the occurrence count, and the presence
// penalty is flat.
func (s *Sampler) penalize(logits []float32, history []int32) {
	if s.cfg.RepeatPenalty == 1 && s.cfg.FrequencyPenalty == 0 && s.cfg.PresencePenalty == 0 {
		return
	}
	if len(history) == 0 {
		return
	}
	window := history
	if n := s.cfg.PenaltyLastN; n > 0 && len(window) > n {
		window = window[len(window)-n:]
	}

	if len(s.seenMark) < len(logits) {
		s.seenMark = make([]uint32, len(logits))
		s.seenCount = make([]int32, len(logits))
	}
	s.seenEpoch++
	if s.seenEpoch == 0 {
		for i := range s.seenMark {
			s.seenMark[i] = 0
		}
		s.seenEpoch = 1
	}
	s.seenList = s.seenList[:0]

	for _, tok := range window {
		id := int(tok)
		if id < 0 || id >= len(logits) {
			continue
		}
		if s.seenMark[id] != s.seenEpoch {
			s.seenMark[id] = s.seenEpoch
			s.seenCount[id] = 1
			s.seenList = append(s.seenList, id)
		} else {
			s.seenCount[id]++
		}
	}

	for _, id := range s.seenList {
		l := logits[id]
		if rp := s.cfg.RepeatPenalty; rp != 1 {
			if l > 0 {
				l /= rp
			} else {
				l *= rp
			}
		}
		l -= float32(s.seenCount[id])*s.cfg.FrequencyPenalty + s.cfg.PresencePenalty
		logits[id] = l
	}
}

// argmax returns the index of the maximum value in the slice. If the slice is
// empty it panics.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices and values of the k largest elements in logits,
// ordered from largest to smallest. O(V*K), suitable for small K.
func (s *Sampler) topK(logits []float32, k int) ([]int, []float32) {
	if k <= 0 {
		return nil, nil
	}
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, v := range logits {
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)

		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
