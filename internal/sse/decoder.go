// internal/sse/decoder.go
package sse

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns successive response-body chunks into complete lines. UTF-8
// sequences split across chunks are carried over to the next Feed, so a
// character cut in half by a network read decodes intact.
//
// A Decoder is not safe for concurrent use; it belongs to one read loop.
type Decoder struct {
	transformer transform.Transformer
	pending     []byte
	line        strings.Builder
}

// NewDecoder returns a Decoder with an empty buffer.
func NewDecoder() *Decoder {
	return &Decoder{transformer: unicode.UTF8.NewDecoder()}
}

// Feed decodes chunk and returns every line completed by it, without the
// trailing newline. Text after the last newline stays buffered.
func (d *Decoder) Feed(chunk []byte) []string {
	text := d.decode(chunk)
	if text == "" {
		return nil
	}

	var lines []string
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			break
		}
		d.line.WriteString(text[:idx])
		lines = append(lines, d.line.String())
		d.line.Reset()
		text = text[idx+1:]
	}
	d.line.WriteString(text)
	return lines
}

// Pending returns the number of bytes held back: the unterminated line plus
// any incomplete UTF-8 sequence.
func (d *Decoder) Pending() int {
	return d.line.Len() + len(d.pending)
}

// Close ends the stream. An unterminated remainder is an incomplete frame and
// is discarded; it is returned only so callers can log it.
func (d *Decoder) Close() string {
	rest := d.line.String()
	if len(d.pending) > 0 {
		rest += string(d.pending)
	}
	d.line.Reset()
	d.pending = nil
	d.transformer.Reset()
	return rest
}

func (d *Decoder) decode(chunk []byte) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(append([]byte(nil), d.pending...), chunk...)
		d.pending = nil
	}
	if len(src) == 0 {
		return ""
	}

	var out strings.Builder
	// Each invalid byte may expand to a 3-byte replacement character.
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	for len(src) > 0 {
		nDst, nSrc, err := d.transformer.Transform(dst, src, false)
		out.Write(dst[:nDst])
		src = src[nSrc:]
		switch {
		case err == nil:
			if nSrc == 0 {
				d.pending = append(d.pending, src...)
				src = nil
			}
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append(d.pending, src...)
			src = nil
		case errors.Is(err, transform.ErrShortDst):
			dst = make([]byte, 2*len(dst))
		default:
			// The UTF-8 decoder replaces invalid input rather than failing;
			// keep going with whatever is left.
			out.WriteString(string(utf8.RuneError))
			if len(src) > 0 {
				src = src[1:]
			}
		}
	}
	return out.String()
}
