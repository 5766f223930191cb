// internal/util/util.go
package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	return RunePrefix(text, maxRunes) + "…"
}

// RunePrefix returns the first n runes of text. Negative n yields "" and n past
// the end yields text unchanged.
func RunePrefix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	for i := range text {
		if n == 0 {
			return text[:i]
		}
		n--
	}
	return text
}

// UnescapeNewlines turns literal "\n" escape sequences, as some models emit
// them inside summaries, into real line breaks.
func UnescapeNewlines(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}

// WrapToWidth wraps the given text to a specified width, breaking long words.
func WrapToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		words := strings.Fields(line)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		var cur strings.Builder
		count := 0
		flush := func() {
			if count > 0 {
				out = append(out, cur.String())
				cur.Reset()
				count = 0
			}
		}
		for _, w := range words {
			wLen := utf8.RuneCountInString(w)
			switch {
			case count > 0 && count+1+wLen <= width:
				cur.WriteByte(' ')
				cur.WriteString(w)
				count += 1 + wLen
			case wLen <= width:
				flush()
				cur.WriteString(w)
				count = wLen
			default:
				flush()
				r := []rune(w)
				for start := 0; start < len(r); start += width {
					end := min(start+width, len(r))
					if end-start == width || end < len(r) {
						out = append(out, string(r[start:end]))
						continue
					}
					cur.WriteString(string(r[start:end]))
					count = end - start
				}
			}
		}
		flush()
	}
	return strings.Join(out, "\n")
}
