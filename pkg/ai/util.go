package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// GenerateSchema creates a JSON Schema from the given Go type.
// It uses reflection to inspect the type structure and generates
// a schema suitable for use with AI structured output.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// StripCodeFences removes Markdown code fence markers (```json / ```) that
// models routinely wrap JSON output in.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ExtractJSONArray locates the substring between the first '[' and the
// last ']' of s, defending against prose the model prepends or appends.
// Fails with ErrMalformedResponse when no array delimiters remain.
func ExtractJSONArray(s string) (string, error) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "", MalformedResponse("no json array found in response")
	}
	return s[start : end+1], nil
}

// SanitizeArrayResponse applies the full response-sanitization pipeline:
// strip code fences, then extract the outermost JSON array. Sanitization is
// a hard requirement, not an optimization; model output reliably includes
// prose wrapping.
func SanitizeArrayResponse(s string) (string, error) {
	return ExtractJSONArray(StripCodeFences(s))
}

// DecodeArray sanitizes raw, parses it as a JSON array, and strictly
// decodes each element into T. Elements that fail to decode or that
// validate rejects are skipped; failure to parse the array itself is fatal
// with ErrMalformedResponse. Every element is either fully valid or
// dropped, never partially decoded.
func DecodeArray[T any](raw string, validate func(*T) error) ([]T, int, error) {
	arr, err := SanitizeArrayResponse(raw)
	if err != nil {
		return nil, 0, err
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &elements); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(arr)
		if rerr != nil {
			return nil, 0, MalformedResponse("response is not a json array: %v", err)
		}
		if err := json.Unmarshal([]byte(repaired), &elements); err != nil {
			return nil, 0, MalformedResponse("response is not a json array after repair: %v", err)
		}
	}

	out := make([]T, 0, len(elements))
	skipped := 0
	for _, el := range elements {
		var item T
		if err := json.Unmarshal(el, &item); err != nil {
			skipped++
			continue
		}
		if validate != nil {
			if err := validate(&item); err != nil {
				skipped++
				continue
			}
		}
		out = append(out, item)
	}

	return out, skipped, nil
}

// UnmarshalFlexible attempts to unmarshal JSON into the target with multiple
// fallback strategies: standard unmarshaling first, then double-encoded
// JSON strings, then jsonrepair on malformed input.
//
// This is useful for parsing AI-generated JSON which may be malformed or
// wrapped in strings.
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, input)
	}

	if err := json.Unmarshal([]byte(repaired), out); err == nil {
		return nil
	}

	return fmt.Errorf(
		"unmarshal failed after repair: input=%s repaired=%s",
		input, repaired,
	)
}
