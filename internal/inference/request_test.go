package inference

import (
	"reflect"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestDefaults(t *testing.T) {
	t.Parallel()

	d := Defaults()
	if d.MaxTokens != 1000 {
		t.Errorf("MaxTokens = %d, want 1000", d.MaxTokens)
	}
	if d.Temperature != 0.8 || d.TopK != 45 || d.TopP != 0.95 {
		t.Errorf("sampling defaults = %v/%v/%v, want 0.8/45/0.95", d.Temperature, d.TopK, d.TopP)
	}
	if d.RepeatPenalty != 1.1 || d.PenaltyLastN != 64 {
		t.Errorf("penalty defaults = %v/%v, want 1.1/64", d.RepeatPenalty, d.PenaltyLastN)
	}
	if d.Seed != -1 {
		t.Errorf("Seed = %d, want -1 (clock-derived)", d.Seed)
	}
	if !d.HideSpecial || !d.RetainHiddenInScan {
		t.Error("special-token handling defaults changed")
	}
}

func TestResolveOptions(t *testing.T) {
	t.Parallel()

	base := Defaults()
	base.StopMarkers = []string{"\nUser:"}

	tests := []struct {
		name string
		opts Options
		want func(Request) Request
	}{
		{
			name: "zero options keep base",
			opts: Options{},
			want: func(r Request) Request { return r },
		},
		{
			name: "sampling overrides",
			opts: Options{Temperature: ptr(0.2), TopK: ptr(1), Seed: ptr(int64(7))},
			want: func(r Request) Request {
				r.Temperature = 0.2
				r.TopK = 1
				r.Seed = 7
				return r
			},
		},
		{
			name: "stop markers append",
			opts: Options{StopMarkers: []string{"###"}},
			want: func(r Request) Request {
				r.StopMarkers = []string{"\nUser:", "###"}
				return r
			},
		},
		{
			name: "toggles",
			opts: Options{HideSpecial: ptr(false), EchoPrompt: ptr(true), MaxTokens: ptr(16)},
			want: func(r Request) Request {
				r.HideSpecial = false
				r.EchoPrompt = true
				r.MaxTokens = 16
				return r
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ResolveOptions(tt.opts, base)
			want := tt.want(base)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ResolveOptions() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestResolveOptionsDoesNotMutateBase(t *testing.T) {
	t.Parallel()

	base := Defaults()
	base.StopMarkers = []string{"a"}
	ResolveOptions(Options{StopMarkers: []string{"b"}}, base)

	if !reflect.DeepEqual(base.StopMarkers, []string{"a"}) {
		t.Errorf("base StopMarkers mutated: %v", base.StopMarkers)
	}
}
