package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/davidahmann/agentgate/internal/crypto"
)

const (
	// Masked replaces values under a sensitive key.
	Masked = "[redacted]"

	maxDepth = 32
)

// Redactor masks sensitive keys and pattern-matched substrings. It is safe
// for concurrent use.
type Redactor struct {
	patterns []*regexp.Regexp
}

// Source yields the redactor for the current policy snapshot.
type Source interface {
	Redactor() *Redactor
}

type static struct{ r *Redactor }

func (s static) Redactor() *Redactor { return s.r }

// Static wraps a fixed redactor as a Source.
func Static(r *Redactor) Source { return static{r: r} }

// New compiles custom patterns case-insensitively. They run before the
// built-in secret and PHI patterns.
func New(custom []string) (*Redactor, error) {
	compiled := make([]*regexp.Regexp, 0, len(custom)+len(secretPatterns)+len(phiPatterns))
	for _, pattern := range custom {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	compiled = append(compiled, secretPatterns...)
	compiled = append(compiled, phiPatterns...)
	return &Redactor{patterns: compiled}, nil
}

// Default is a redactor with only the built-in patterns.
func Default() *Redactor {
	r, _ := New(nil)
	return r
}

// RedactString replaces each pattern match with a correlation marker
// derived from the SHA-256 of the matched text.
func (r *Redactor) RedactString(text string) string {
	if text == "" {
		return text
	}
	out := text
	for _, re := range r.patterns {
		out = re.ReplaceAllStringFunc(out, marker)
	}
	return out
}

func marker(match string) string {
	return "[redacted:" + crypto.DigestHex([]byte(match))[:12] + "]"
}

// RedactPayload returns a deep copy of v with sensitive keys masked and
// string leaves pattern-redacted. Values that are not plain JSON shapes are
// round-tripped through encoding/json first.
func (r *Redactor) RedactPayload(v any) any {
	return r.redactValue(normalize(v), 0)
}

// RedactJSONString marshals the redacted form of v as canonical JSON.
func (r *Redactor) RedactJSONString(v any) string {
	out, err := crypto.CanonicalString(r.RedactPayload(v))
	if err != nil {
		return `{"redacted":true}`
	}
	return out
}

// RedactParams is RedactPayload for a params object.
func (r *Redactor) RedactParams(params map[string]any) map[string]any {
	out, ok := r.RedactPayload(params).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

func (r *Redactor) redactValue(v any, depth int) any {
	if depth > maxDepth {
		return Masked
	}
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		return r.RedactString(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = r.redactValue(item, depth+1)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, item := range value {
			if IsSensitiveKey(key) {
				out[key] = Masked
				continue
			}
			out[key] = r.redactValue(item, depth+1)
		}
		return out
	default:
		return value
	}
}

func normalize(v any) any {
	switch value := v.(type) {
	case nil, string, bool, json.Number, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return value
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, item := range value {
			out[key] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = item
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(value))
		for key, item := range value {
			out[key] = item
		}
		return out
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return string(raw)
	}
	return decoded
}
