// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonFenceRegex extracts the body of a markdown code block, with or without a json tag.
	jsonFenceRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*(.*?)\\s*\x60\x60\x60")
)

// ErrNoJSONObject is returned when a response contains no JSON object at all.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// StrictJSON rejects unknown object keys and keeps numbers as json.Number so
// integer parameters are never silently coerced through float64.
var StrictJSON = jsoniter.Config{
	EscapeHTML:             false,
	UseNumber:              true,
	DisallowUnknownFields:  true,
	ValidateJsonRawMessage: true,
}.Froze()

// ExtractJSONObject isolates the JSON object in a model response. It handles the
// common formatting habits of models: markdown fences and conversational text
// around the object.
func ExtractJSONObject(response string) (string, error) {
	response = strings.TrimSpace(response)

	// 1. Handle markdown wrapping (most common case).
	if strings.Contains(response, "```") {
		if matches := jsonFenceRegex.FindStringSubmatch(response); len(matches) > 1 {
			response = strings.TrimSpace(matches[1])
		}
	}

	// 2. Already a bare object.
	if strings.HasPrefix(response, "{") && strings.HasSuffix(response, "}") {
		return response, nil
	}

	// 3. Attempt to find the object within conversational text.
	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first == -1 || last <= first {
		return "", fmt.Errorf("%w: %s", ErrNoJSONObject, TruncateString(response, 200))
	}
	return response[first : last+1], nil
}

// ParseJSONResponse extracts and strictly decodes a model response into T.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw, err := ExtractJSONObject(response)
	if err != nil {
		return nil, err
	}

	if err := RejectDuplicateKeys(raw); err != nil {
		return nil, err
	}

	var result T
	if err := StrictJSON.UnmarshalFromString(raw, &result); err != nil {
		// Provide a detailed error message including the extracted JSON snippet.
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, TruncateString(raw, 500))
	}
	return &result, nil
}

// RejectDuplicateKeys walks a JSON document and fails on the first object that
// repeats a key. Decoding into maps or structs keeps only the last value, so a
// repeated key would otherwise go unnoticed.
func RejectDuplicateKeys(doc string) error {
	iter := jsoniter.ParseString(StrictJSON, doc)
	if err := checkKeys(iter, ""); err != nil {
		return err
	}
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return fmt.Errorf("malformed JSON: %w", iter.Error)
	}
	return nil
}

func checkKeys(iter *jsoniter.Iterator, path string) error {
	var err error
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		seen := make(map[string]struct{})
		iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
			if _, dup := seen[field]; dup {
				where := "at the top level"
				if path != "" {
					where = "in " + path
				}
				err = fmt.Errorf("duplicate key %q %s", field, where)
				return false
			}
			seen[field] = struct{}{}
			child := field
			if path != "" {
				child = path + "." + field
			}
			err = checkKeys(iter, child)
			return err == nil
		})
	case jsoniter.ArrayValue:
		i := 0
		iter.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
			err = checkKeys(iter, fmt.Sprintf("%s[%d]", path, i))
			i++
			return err == nil
		})
	default:
		iter.Skip()
	}
	return err
}

// TruncateString shortens s to at most maxLen bytes on a rune boundary,
// appending an ellipsis when anything was cut.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
