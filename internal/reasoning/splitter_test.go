package reasoning

import "testing"

func TestSplitRaw(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		in            string
		wantContent   string
		wantReasoning string
	}{
		{
			name:          "no thinking",
			in:            "Hello world",
			wantContent:   "Hello world",
			wantReasoning: "",
		},
		{
			name:          "closed thinking block",
			in:            "<think>internal</think>Hello",
			wantContent:   "Hello",
			wantReasoning: "internal",
		},
		{
			name:          "unclosed thinking block",
			in:            "<think>internal only",
			wantContent:   "",
			wantReasoning: "internal only",
		},
		{
			name:          "interleaved text",
			in:            "A<think>r1</think>B<think>r2</think>C",
			wantContent:   "ABC",
			wantReasoning: "r1r2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SplitRaw(tc.in)
			if got.Content != tc.wantContent {
				t.Fatalf("content got %q want %q", got.Content, tc.wantContent)
			}
			if got.Reasoning != tc.wantReasoning {
				t.Fatalf("reasoning got %q want %q", got.Reasoning, tc.wantReasoning)
			}
		})
	}
}

func TestSplitterPush(t *testing.T) {
	t.Parallel()

	var s Splitter

	c, r := s.Push("<think>abc")
	if c != "" || r != "abc" {
		t.Fatalf("first delta got content=%q reasoning=%q", c, r)
	}

	c, r = s.Push("</think>Hello")
	if c != "Hello" || r != "" {
		t.Fatalf("second delta got content=%q reasoning=%q", c, r)
	}
}

func TestSplitterHoldsPartialTag(t *testing.T) {
	t.Parallel()

	var s Splitter

	c, r := s.Push("Sure. <th")
	if c != "Sure. " || r != "" {
		t.Fatalf("partial tag leaked: content=%q reasoning=%q", c, r)
	}

	c, r = s.Push("ink>plan")
	if c != "" || r != "plan" {
		t.Fatalf("completed tag got content=%q reasoning=%q", c, r)
	}

	c, r = s.Push("</think> done")
	if c != " done" || r != "" {
		t.Fatalf("after close got content=%q reasoning=%q", c, r)
	}
}

func TestSplitterReleasesNonTagText(t *testing.T) {
	t.Parallel()

	var s Splitter

	c, _ := s.Push("1 <")
	if c != "1 " {
		t.Fatalf("trailing %q not held, content=%q", "<", c)
	}

	c, _ = s.Push(" 2")
	if c != "< 2" {
		t.Fatalf("disambiguated text not released, content=%q", c)
	}
}

func TestSplitterFlush(t *testing.T) {
	t.Parallel()

	var s Splitter
	if c, _ := s.Push("x <t"); c != "x " {
		t.Fatalf("content before flush = %q", c)
	}
	c, r := s.Flush()
	if c != "<t" || r != "" {
		t.Fatalf("Flush() = content %q reasoning %q, want held tail as content", c, r)
	}

	var inBlock Splitter
	inBlock.Push("<think>hm</t")
	if _, r := inBlock.Flush(); r != "</t" {
		t.Fatalf("Flush() reasoning = %q, want held tail", r)
	}
}

func TestStrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"<think>x</think>42", "42"},
		{"  plain  ", "plain"},
		{"<think>all reasoning", ""},
	}
	for _, tc := range cases {
		if got := ThinkTags.Strip(tc.in); got != tc.want {
			t.Errorf("Strip(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCustomTagsCaseInsensitive(t *testing.T) {
	t.Parallel()

	tags := Tags{Open: "<scratch>", Close: "</scratch>"}
	got := tags.Split("<SCRATCH>hm</Scratch>ok")
	if got.Content != "ok" || got.Reasoning != "hm" {
		t.Fatalf("Split() = %+v, want content ok reasoning hm", got)
	}
}
