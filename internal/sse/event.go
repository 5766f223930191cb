// internal/sse/event.go
// Package sse decodes the retrieval service's text/event-stream responses into
// typed events. Decoding is split into a Decoder, which resolves line
// boundaries across arbitrary network reads, and Parse, which classifies a
// single line.
package sse

import "github.com/mwiater/ragview/internal/search"

// EventKind identifies the variant carried by an Event.
type EventKind int

const (
	// KindNone marks lines that carry nothing: comments, non-data fields,
	// empty payloads and the [DONE] sentinel.
	KindNone EventKind = iota
	// KindResults carries a batch of ranked search results.
	KindResults
	// KindToken carries one summary text delta.
	KindToken
	// KindMalformed marks a data frame whose payload could not be decoded.
	KindMalformed
	// KindUnrecognized marks a well-formed frame with an unknown type.
	KindUnrecognized
)

// String returns the lower-case name of the kind.
func (k EventKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindResults:
		return "results"
	case KindToken:
		return "token"
	case KindMalformed:
		return "malformed"
	case KindUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Event is one classified stream line.
type Event struct {
	Kind    EventKind
	Results []search.APIResult
	Text    string
	Final   bool
	// Type is the frame's declared type, set for every decoded frame.
	Type string
	// Err records why a frame was classified as malformed.
	Err error
	// Raw is the trimmed payload after the data: prefix.
	Raw string
}

// Dropped reports whether the event was a data frame that will not be surfaced.
func (e Event) Dropped() bool {
	return e.Kind == KindMalformed || e.Kind == KindUnrecognized
}
