package llama

import "testing"

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	d := DefaultConfig()
	if d.ContextSize != 4096 || d.BatchSize != 512 || d.Threads != 6 {
		t.Errorf("DefaultConfig() = %+v, want 4096/512/6", d)
	}
	if !d.UseMMap || d.UseMLock {
		t.Errorf("memory defaults = mmap %v mlock %v, want true/false", d.UseMMap, d.UseMLock)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "zero fills everything",
			in:   Config{},
			want: Config{ContextSize: 4096, BatchSize: 512, Threads: 6},
		},
		{
			name: "explicit values kept",
			in:   Config{ContextSize: 8192, BatchSize: 64, Threads: 2, GPULayers: 33, UseMMap: true},
			want: Config{ContextSize: 8192, BatchSize: 64, Threads: 2, GPULayers: 33, UseMMap: true},
		},
		{
			name: "negative gpu layers clamped",
			in:   Config{ContextSize: 1, BatchSize: 1, Threads: 1, GPULayers: -5},
			want: Config{ContextSize: 1, BatchSize: 1, Threads: 1, GPULayers: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.in.withDefaults(); got != tt.want {
				t.Errorf("withDefaults() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
