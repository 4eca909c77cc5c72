package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var errNoJSON = errors.New("no JSON value in model output")

// ExtractJSON returns the first complete JSON object or array in text.
// Code fences and surrounding prose are ignored.
func ExtractJSON(text string) ([]byte, error) {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return nil, errNoJSON
	}
	if json.Valid([]byte(text)) {
		return []byte(text), nil
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return raw, nil
		}
	}
	return nil, errNoJSON
}

func stripFences(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	rest := text[start+3:]
	// drop the language tag line
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// decodeAny decodes JSON into generic values for schema validation.
func decodeAny(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// stringifyScalars turns numeric and boolean fields of each object in arr into
// strings. Spreadsheet phones frequently come back as bare numbers.
func stringifyScalars(arr []any) {
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for k, v := range obj {
			switch x := v.(type) {
			case float64:
				obj[k] = strconv.FormatFloat(x, 'f', -1, 64)
			case bool:
				obj[k] = strconv.FormatBool(x)
			}
		}
	}
}
