package inference

import "strings"

// StopScanner watches accumulated generation output for textual stop markers
// and excises hidden literals (special-token text) from what callers see.
// Markers and literals may arrive split across any number of pieces, so the
// scanner holds back a trailing fragment whenever it could still grow into a
// match.
//
// Two views accumulate: the visible text (what Push emits and Text returns)
// and the scan text (what markers match against). Hidden literals never
// reach the visible view; whether they stay in the scan view is the
// retainHiddenInScan choice.
type StopScanner struct {
	markers    []string
	hidden     []string
	scanHidden bool

	visible strings.Builder
	scan    strings.Builder
	pending string
	sent    int
	cut     int
	stopped bool
}

// NewStopScanner builds a scanner for the given stop markers and hidden
// literals. Empty strings in either set are ignored.
func NewStopScanner(markers, hidden []string, retainHiddenInScan bool) *StopScanner {
	return &StopScanner{
		markers:    markers,
		hidden:     hidden,
		scanHidden: retainHiddenInScan,
		cut:        -1,
	}
}

// Push feeds one decoded piece. It returns the text now safe to emit and
// whether a stop marker terminated the generation. After a stop, further
// pushes emit nothing.
func (s *StopScanner) Push(piece string) (string, bool) {
	if s.stopped {
		return "", true
	}
	s.pending += piece
	s.consumePending()

	if marker, ok := s.findMarker(); ok {
		return s.stopAt(marker), true
	}
	return s.release(), false
}

// Flush releases held-back text on a clean non-marker terminal (end of
// generation, token budget, cancellation). The returned fragment completes
// the visible text; Stopped reports whether the flushed tail completed a
// marker after all.
func (s *StopScanner) Flush() string {
	if s.stopped {
		return ""
	}
	if s.pending != "" {
		s.emitPlain(s.pending)
		s.pending = ""
	}
	if marker, ok := s.findMarker(); ok {
		return s.stopAt(marker)
	}
	text := s.visible.String()
	out := text[s.sent:]
	s.sent = len(text)
	return out
}

// Stopped reports whether a stop marker has matched.
func (s *StopScanner) Stopped() bool {
	return s.stopped
}

// Text returns the final visible text, truncated at the matched marker.
func (s *StopScanner) Text() string {
	if s.cut >= 0 {
		return s.visible.String()[:s.cut]
	}
	return s.visible.String()
}

// Emitted returns the prefix already handed out by Push/Flush. On an engine
// failure mid-generation this is the partial result the caller has seen.
func (s *StopScanner) Emitted() string {
	return s.visible.String()[:s.sent]
}

// consumePending moves pending input into the visible and scan views,
// excising complete hidden literals and withholding a trailing fragment that
// could still become one.
func (s *StopScanner) consumePending() {
	for {
		idx, lit := -1, ""
		for _, h := range s.hidden {
			if h == "" {
				continue
			}
			if i := strings.Index(s.pending, h); i >= 0 {
				if idx < 0 || i < idx || (i == idx && len(h) > len(lit)) {
					idx, lit = i, h
				}
			}
		}
		if idx < 0 {
			break
		}
		s.emitPlain(s.pending[:idx])
		if s.scanHidden {
			s.scan.WriteString(lit)
		}
		s.pending = s.pending[idx+len(lit):]
	}

	hold := longestOpenPrefix(s.pending, s.hidden)
	flush := s.pending[:len(s.pending)-hold]
	s.emitPlain(flush)
	s.pending = s.pending[len(s.pending)-hold:]
}

func (s *StopScanner) emitPlain(text string) {
	if text == "" {
		return
	}
	s.visible.WriteString(text)
	s.scan.WriteString(text)
}

// findMarker reports the earliest stop marker present in the scan view.
func (s *StopScanner) findMarker() (string, bool) {
	text := s.scan.String()
	best, bestIdx := "", -1
	for _, m := range s.markers {
		if m == "" {
			continue
		}
		if i := strings.Index(text, m); i >= 0 && (bestIdx < 0 || i < bestIdx) {
			best, bestIdx = m, i
		}
	}
	return best, bestIdx >= 0
}

// stopAt truncates the visible text at the marker and emits the remaining
// prefix. When the marker only occurred inside hidden text the visible view
// stays whole.
func (s *StopScanner) stopAt(marker string) string {
	s.stopped = true
	text := s.visible.String()
	idx := strings.Index(text, marker)
	if idx < 0 {
		idx = len(text)
	}
	if idx < s.sent {
		idx = s.sent
	}
	s.cut = idx
	if idx > s.sent {
		out := text[s.sent:idx]
		s.sent = idx
		return out
	}
	return ""
}

// release emits visible text that can no longer be part of a stop marker.
func (s *StopScanner) release() string {
	text := s.visible.String()
	unsent := text[s.sent:]
	hold := longestOpenPrefix(unsent, s.markers)
	end := len(text) - hold
	if end <= s.sent {
		return ""
	}
	out := text[s.sent:end]
	s.sent = end
	return out
}

// longestOpenPrefix returns the length of the longest suffix of text that is
// a proper prefix of any pattern, i.e. text that may still grow into a match.
func longestOpenPrefix(text string, patterns []string) int {
	for i := range text {
		suf := text[i:]
		for _, p := range patterns {
			if len(suf) < len(p) && strings.HasPrefix(p, suf) {
				return len(suf)
			}
		}
	}
	return 0
}
