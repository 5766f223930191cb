// internal/sse/parser.go
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mwiater/ragview/internal/search"
)

const (
	dataPrefix = "data:"
	// DoneSentinel is the payload that marks the end of a stream.
	DoneSentinel = "[DONE]"

	// TypeSearchResults is the frame type carrying ranked results.
	TypeSearchResults = "search_results"
	// TypeToken is the frame type carrying a summary delta.
	TypeToken = "token"
)

// envelope is the outer JSON object of every data frame.
type envelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

// tokenPayload is the shape of a token frame's data, once unwrapped.
type tokenPayload struct {
	Message *struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	Done *bool `json:"done"`
}

var (
	errEmptyTokenData = errors.New("token frame has no data")
	jsonNull          = []byte("null")
)

// Parse classifies one logical line. It never fails: undecodable frames come
// back as KindMalformed with Err set, and lines without a data payload come
// back as KindNone.
func Parse(line string) Event {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, dataPrefix) {
		return Event{Kind: KindNone}
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, dataPrefix))
	if payload == "" || payload == DoneSentinel {
		return Event{Kind: KindNone, Raw: payload}
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Event{Kind: KindMalformed, Raw: payload, Err: fmt.Errorf("decode frame: %w", err)}
	}
	frameType := "unknown"
	if env.Type != nil {
		frameType = *env.Type
	}

	switch frameType {
	case TypeSearchResults:
		return Event{Kind: KindResults, Type: frameType, Raw: payload, Results: decodeResults(env.Data)}
	case TypeToken:
		text, final, err := decodeToken(env.Data)
		if err != nil {
			return Event{Kind: KindMalformed, Type: frameType, Raw: payload, Err: err}
		}
		return Event{Kind: KindToken, Type: frameType, Raw: payload, Text: text, Final: final}
	default:
		return Event{Kind: KindUnrecognized, Type: frameType, Raw: payload}
	}
}

// decodeResults maps a search_results payload to wire items. Anything other
// than a JSON array yields an empty, non-nil slice; array elements that do not
// decode as result objects are skipped.
func decodeResults(data json.RawMessage) []search.APIResult {
	results := []search.APIResult{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return results
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return results
	}
	for _, elem := range elems {
		var item search.APIResult
		if err := json.Unmarshal(elem, &item); err != nil {
			continue
		}
		results = append(results, item)
	}
	return results
}

// decodeToken unwraps a token payload, which the service sends either as an
// object or as a JSON-encoded string holding that object.
func decodeToken(data json.RawMessage) (string, bool, error) {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return "", false, errEmptyTokenData
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return "", false, fmt.Errorf("decode token string: %w", err)
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
			return "", false, errEmptyTokenData
		}
	}

	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false, fmt.Errorf("decode token payload: %w", err)
	}

	var content string
	if payload.Message != nil && payload.Message.Content != nil {
		content = *payload.Message.Content
	}
	done := payload.Done != nil && *payload.Done
	return content, done, nil
}
