package store

import "testing"

func TestGlobToLike(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"transcript:c1:*", "transcript:c1:%"},
		{"a?c", "a_c"},
		{"100%_done", `100\%\_done`},
		{`lit\*eral*`, "lit*eral%"},
		{`trailing\`, `trailing\\`},
	}
	for _, tt := range tests {
		if got := globToLike(tt.pattern); got != tt.want {
			t.Errorf("globToLike(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestEscapePattern(t *testing.T) {
	in := `19:a*b?c[d]{e}\f`
	want := `19:a\*b\?c\[d\]\{e\}\\f`
	if got := EscapePattern(in); got != want {
		t.Errorf("EscapePattern(%q) = %q, want %q", in, got, want)
	}

	g, err := compilePattern(EscapePattern(in))
	if err != nil {
		t.Fatalf("compilePattern() error = %v", err)
	}
	if !g.Match(in) {
		t.Errorf("escaped pattern does not match its own input %q", in)
	}
	if g.Match("19:aXb?c[d]{e}\\f") {
		t.Error("escaped '*' must not act as a wildcard")
	}
}
