package actionlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Extractor projects an action's request and/or response body into the short
// detail string stored with the record.
type Extractor func(action Action, request, response map[string]any) (string, error)

var extractors = map[Action]Extractor{
	ActionCreate:               extractCreate,
	ActionDelete:               noDetail,
	ActionRootPassword:         noDetail,
	ActionResize:               wrappedField("resize", "flavorRef", "New Flavor: "),
	ActionRebuild:              wrappedField("rebuild", "imageRef", "New Image: "),
	ActionVolumeSnapshotCreate: extractSnapshot,
	ActionReboot:               wrappedField("reboot", "type", "Type: "),
	ActionConfirmResize:        noDetail,
	ActionRevertResize:         noDetail,
}

// ExtractDetail looks up the detail rule for action and applies it.
func ExtractDetail(action Action, request, response map[string]any) (string, error) {
	extract, ok := extractors[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return extract(action, request, response)
}

func noDetail(Action, map[string]any, map[string]any) (string, error) {
	return "", nil
}

func extractCreate(action Action, request, _ map[string]any) (string, error) {
	server, err := wrapper(action, request, "server")
	if err != nil {
		return "", err
	}
	return RenderPayload(server), nil
}

func extractSnapshot(action Action, request, _ map[string]any) (string, error) {
	image, err := wrapper(action, request, "createImage")
	if err != nil {
		return "", err
	}
	name, ok := image["name"]
	if !ok {
		return "", &ExtractionError{Action: action, Key: "name"}
	}
	metadata := map[string]any{}
	if raw, ok := image["metadata"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return "", &ExtractionError{Action: action, Key: "metadata"}
		}
		metadata = m
	}
	return "Name: " + scalar(name) + "\nMetadata: " + RenderPayload(metadata), nil
}

// wrappedField builds an extractor rendering prefix + body[wrapperKey][field].
func wrappedField(wrapperKey, field, prefix string) Extractor {
	return func(action Action, request, _ map[string]any) (string, error) {
		inner, err := wrapper(action, request, wrapperKey)
		if err != nil {
			return "", err
		}
		v, ok := inner[field]
		if !ok {
			return "", &ExtractionError{Action: action, Key: field}
		}
		return prefix + scalar(v), nil
	}
}

// wrapper strips the transport wrapper ({"resize": {...}}) from a body.
func wrapper(action Action, body map[string]any, key string) (map[string]any, error) {
	inner, ok := body[key].(map[string]any)
	if !ok {
		return nil, &ExtractionError{Action: action, Key: key}
	}
	return inner, nil
}

// RenderPayload renders a key/value payload deterministically: keys are sorted
// lexicographically and nested objects are rendered with the same rule, so two
// logically equal payloads always produce byte-identical output.
//
//	{"name": "a", "meta": {"z": 1, "a": true}} -> {'meta': {'a': True, 'z': 1}, 'name': 'a'}
func RenderPayload(payload map[string]any) string {
	var b strings.Builder
	renderObject(&b, payload)
	return b.String()
}

func renderObject(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteRepr(k))
		b.WriteString(": ")
		renderValue(b, m[k])
	}
	b.WriteByte('}')
}

func renderValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if t {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case string:
		b.WriteString(quoteRepr(t))
	case map[string]any:
		renderObject(b, t)
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			renderValue(b, item)
		}
		b.WriteByte(']')
	default:
		b.WriteString(scalar(t))
	}
}

// quoteRepr single-quotes s, switching to double quotes when s contains a
// single quote and no double quote.
func quoteRepr(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(quote):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

// scalar renders a single value without quoting strings.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		return RenderPayload(t)
	default:
		return fmt.Sprint(t)
	}
}

// DecodeBody parses a JSON object body. Numbers are kept as json.Number so that
// identifiers such as flavorRef render exactly as sent. An empty body decodes
// to nil without error.
func DecodeBody(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	return body, nil
}
