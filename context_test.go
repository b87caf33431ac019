package baikon

import "testing"

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{true, "true"},
		{42, "42"},
		{int64(9000000000), "9000000000"},
		{3.0, "3"},
		{3.25, "3.25"},
		{map[string]any{"a": 1}, `{"a":1}`},
		{[]any{"x", 2}, `["x",2]`},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstitute(t *testing.T) {
	fc := NewContext("", "")
	fc.Variables["name"] = "Ada"
	fc.Variables["count"] = 2

	tests := []struct {
		in   string
		want string
	}{
		{"Hello {name}", "Hello Ada"},
		{"{count} items", "2 items"},
		{"{name}{name}", "AdaAda"},
		{"no placeholders", "no placeholders"},
		{"{unknown} stays", "{unknown} stays"},
	}
	for _, tt := range tests {
		if got := fc.Substitute(tt.in); got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
