package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vergabeflow/internal/types"
)

// ErrUnrecognizedShape is returned when a question payload matches none of
// the known shapes.
var ErrUnrecognizedShape = errors.New("unrecognized question payload")

// Shape identifies which decoding rule accepted a question payload.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeList is a bare JSON array of question objects.
	ShapeList
	// ShapeWrapped is an object carrying the array under "questions".
	ShapeWrapped
	// ShapeMap is any other object; each value becomes one question.
	ShapeMap
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeWrapped:
		return "wrapped"
	case ShapeMap:
		return "map"
	default:
		return "unknown"
	}
}

// rawQuestion is one element of a list-shaped payload.
// Fields are decoded lazily so one malformed member does not drop the element.
type rawQuestion struct {
	Text     json.RawMessage `json:"text"`
	Question json.RawMessage `json:"question"`
	Options  json.RawMessage `json:"options"`
}

// ParseQuestions decodes a generation-service payload into questions.
// Rules are tried in order: list, wrapped, map. Ids are always synthesized
// as q-0, q-1, ... in output order; ids present in the payload are ignored.
func ParseQuestions(data []byte) (Shape, []types.Question, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ShapeUnknown, nil, fmt.Errorf("%w: empty body", ErrUnrecognizedShape)
	}

	switch data[0] {
	case '[':
		qs, err := parseList(data)
		if err != nil {
			return ShapeUnknown, nil, err
		}
		return ShapeList, qs, nil
	case '{':
		if qs, ok, err := parseWrapped(data); err != nil {
			return ShapeUnknown, nil, err
		} else if ok {
			return ShapeWrapped, qs, nil
		}
		qs, err := parseMap(data)
		if err != nil {
			return ShapeUnknown, nil, err
		}
		return ShapeMap, qs, nil
	}
	return ShapeUnknown, nil, fmt.Errorf("%w: expected array or object", ErrUnrecognizedShape)
}

func parseList(data []byte) ([]types.Question, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}

	questions := make([]types.Question, 0, len(elems))
	for _, raw := range elems {
		q, ok := decodeElement(raw)
		if !ok {
			continue
		}
		q.ID = types.QuestionID(len(questions))
		questions = append(questions, q)
	}
	return questions, nil
}

// decodeElement accepts a question object or a bare string.
// Elements without usable text are dropped.
func decodeElement(raw json.RawMessage) (types.Question, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return types.Question{}, false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
			return types.Question{}, false
		}
		return types.Question{Text: s, Options: []string{}}, true
	}

	if raw[0] != '{' {
		return types.Question{}, false
	}
	var rq rawQuestion
	if err := json.Unmarshal(raw, &rq); err != nil {
		return types.Question{}, false
	}
	text := stringValue(rq.Text)
	if strings.TrimSpace(text) == "" {
		text = stringValue(rq.Question)
	}
	if strings.TrimSpace(text) == "" {
		return types.Question{}, false
	}
	return types.Question{Text: text, Options: decodeOptions(rq.Options)}, true
}

// stringValue returns raw as a string, or "" when it is not a JSON string.
func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeOptions accepts an array of values or a single string option.
// Anything else yields no options.
func decodeOptions(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []string{}
	}
	switch raw[0] {
	case '[':
		var values []any
		if err := json.Unmarshal(raw, &values); err != nil {
			return []string{}
		}
		return stringify(values)
	case '"':
		if s := strings.TrimSpace(stringValue(raw)); s != "" {
			return []string{s}
		}
	}
	return []string{}
}

func parseWrapped(data []byte) ([]types.Question, bool, error) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	inner, ok := wrapper["questions"]
	if !ok {
		return nil, false, nil
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || inner[0] != '[' {
		// "questions" holding something else falls through to the map rule
		return nil, false, nil
	}
	qs, err := parseList(inner)
	if err != nil {
		return nil, false, err
	}
	return qs, true, nil
}

func parseMap(data []byte) ([]types.Question, error) {
	fields, err := orderedFields(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}

	questions := make([]types.Question, 0, len(fields))
	for _, f := range fields {
		questions = append(questions, types.Question{
			ID:      types.QuestionID(len(questions)),
			Text:    valueText(f.value),
			Options: []string{},
		})
	}
	return questions, nil
}

type field struct {
	key   string
	value json.RawMessage
}

// orderedFields returns the members of a JSON object in document order.
func orderedFields(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object")
	}

	var fields []field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

// valueText renders strings verbatim and everything else as compact JSON.
func valueText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func stringify(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch tv := v.(type) {
		case string:
			out = append(out, tv)
		case nil:
			continue
		default:
			b, err := json.Marshal(tv)
			if err != nil {
				continue
			}
			out = append(out, string(b))
		}
	}
	return out
}
