// internal/util/util_test.go
package util

import (
	"strings"
	"testing"
)

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "no truncation", in: "hello", max: 10, want: "hello"},
		{name: "ascii truncation", in: "helloworld", max: 5, want: "hello…"},
		{name: "multibyte truncation", in: "سلام دنیا", max: 4, want: "سلام…"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateRunes(tt.in, tt.max); got != tt.want {
				t.Fatalf("TruncateRunes(%q,%d)=%q want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestRunePrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "hello", n: 0, want: ""},
		{in: "hello", n: -3, want: ""},
		{in: "hello", n: 2, want: "he"},
		{in: "hello", n: 5, want: "hello"},
		{in: "hello", n: 9, want: "hello"},
		{in: "héllo", n: 2, want: "hé"},
		{in: "世界", n: 1, want: "世"},
	}
	for _, tt := range tests {
		if got := RunePrefix(tt.in, tt.n); got != tt.want {
			t.Fatalf("RunePrefix(%q,%d)=%q want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestUnescapeNewlines(t *testing.T) {
	t.Parallel()

	if got := UnescapeNewlines(`line one\nline two`); got != "line one\nline two" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestWrapToWidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{
			name:  "wrap words",
			text:  "one two three four",
			width: 10,
			want:  "one two\nthree four",
		},
		{
			name:  "long word split",
			text:  "supercalifragilisticexpialidocious",
			width: 5,
			want: strings.Join([]string{
				"super",
				"calif",
				"ragil",
				"istic",
				"expia",
				"lidoc",
				"ious",
			}, "\n"),
		},
		{
			name:  "preserve blank lines",
			text:  "para one\n\npara two",
			width: 20,
			want:  "para one\n\npara two",
		},
		{
			name:  "non-positive width no-op",
			text:  "no wrap",
			width: 0,
			want:  "no wrap",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := WrapToWidth(tt.text, tt.width); got != tt.want {
				t.Fatalf("WrapToWidth(%q,%d)=%q want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}
