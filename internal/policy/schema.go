package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const stringList = `{"type": "array", "items": {"type": "string"}}`

var memoryTierSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "label": {"type": "string"},
    "allow_write": {"type": "boolean"},
    "allow_read": {"type": "boolean"}
  }
}`

var documentSchema = strings.NewReplacer("STRING_LIST", stringList, "MEMORY_TIER", memoryTierSchema).Replace(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "agent policy",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "autonomy_level": {"type": "string", "enum": ["assistive_only", "supervised", "autonomous"]},
    "risk_threshold": {"type": "integer", "minimum": 0, "maximum": 100},
    "allow_actions": STRING_LIST,
    "requires_approval": STRING_LIST,
    "protected_paths": STRING_LIST,
    "absolute_prohibitions": STRING_LIST,
    "network_rules": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "allowlist_domains": STRING_LIST,
        "blocklist_domains": STRING_LIST,
        "require_approval_for_new_domains": {"type": "boolean"},
        "block_uploads_to_unknown": {"type": "boolean"}
      }
    },
    "memory_tiers": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "tier0": MEMORY_TIER,
        "tier1": MEMORY_TIER,
        "tier2": MEMORY_TIER,
        "tier3": MEMORY_TIER,
        "tier4": MEMORY_TIER
      }
    },
    "kill_switch": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "stop_phrase": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "retention_days": {"type": "integer", "minimum": 1},
        "include_hash_chain": {"type": "boolean"},
        "redaction": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "enabled": {"type": "boolean"},
            "patterns": STRING_LIST
          }
        }
      }
    },
    "self_protection": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "paths": STRING_LIST
      }
    }
  }
}`)

// ValidateSchema checks YAML or JSON policy bytes against the document
// schema. Unknown keys are rejected.
func ValidateSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing policy for schema validation: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	jsonBytes, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("converting policy to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msg strings.Builder
		for _, verr := range result.Errors() {
			fmt.Fprintf(&msg, "- %s\n", verr)
		}
		return fmt.Errorf("%w:\n%s", ErrInvalidPolicy, msg.String())
	}
	return nil
}

func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
