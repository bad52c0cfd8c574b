package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EncodeReturnValue converts a produced value into its canonical stored text
// form. Plain strings are stored verbatim so they are not double-encoded;
// everything else becomes canonical JSON (Go's encoder emits object keys in
// sorted order, which keeps the form byte-comparable).
func EncodeReturnValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode return value: %w", err)
	}
	return string(b), nil
}

// DecodeReturnValue reverses EncodeReturnValue. Text that parses as JSON
// yields the decoded value; anything else is a verbatim plain string.
func DecodeReturnValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// NormalizeValue maps a stored text form to a single canonical JSON string,
// so that a plain string stored verbatim and its quoted JSON form compare
// equal, and JSON number/whitespace variants collapse to one spelling.
func NormalizeValue(s string) string {
	b, err := json.Marshal(DecodeReturnValue(s))
	if err != nil {
		// Decoded values came from JSON or are plain strings, both of which
		// re-marshal cleanly. Fall back to the raw text if not.
		return s
	}
	return string(b)
}

// EmbeddingText builds the canonical text representation of a call used for
// embedding: the function name plus its arguments in sorted key order.
// Sensitive parameter names are excluded entirely.
func EmbeddingText(functionName string, inputs map[string]any, sensitive map[string]struct{}) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		if _, masked := sensitive[k]; masked {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(functionName)
	sb.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(argText(inputs[k]))
	}
	sb.WriteByte(')')
	return sb.String()
}

// ErrorText extends a call's embedding text with the error it produced, so
// failed executions are searchable by failure semantics as well as inputs.
func ErrorText(callText, errorMessage string) string {
	if errorMessage == "" {
		return callText
	}
	return callText + " error: " + errorMessage
}

func argText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// FilterInputs returns the subset of inputs whose keys appear in declared.
// Extraneous keys (operational metadata captured alongside inputs) are
// silently dropped.
func FilterInputs(inputs map[string]any, declared []string) map[string]any {
	filtered := make(map[string]any, len(declared))
	for _, name := range declared {
		if v, ok := inputs[name]; ok {
			filtered[name] = v
		}
	}
	return filtered
}

// MaskInputs copies inputs with every sensitive key removed.
func MaskInputs(inputs map[string]any, sensitive map[string]struct{}) map[string]any {
	masked := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if _, hidden := sensitive[k]; hidden {
			continue
		}
		masked[k] = v
	}
	return masked
}

// SensitiveSet converts a configured list of sensitive parameter names into
// the lookup form the masking helpers take.
func SensitiveSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
