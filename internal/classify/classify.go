// Package classify derives the sensitivity profile of an action.
package classify

import (
	"bytes"
	"encoding/json"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/davidahmann/agentgate/internal/redact"
	"github.com/davidahmann/agentgate/pkg/types"
)

const maxRefDepth = 32

var (
	emailPattern   = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)
	phonePattern   = regexp.MustCompile(`\b\+?\d{1,3}?[ -.]?\(?\d{3}\)?[ -.]?\d{3}[ -.]?\d{4}\b`)
	financePattern = regexp.MustCompile(`(?i)\b(account|routing|iban|swift|wire|transfer|trade|stock|portfolio|crypto)\b`)
)

// Classify inspects params and declared outbound targets.
func Classify(actionType string, params map[string]any, outboundTargets []string) types.Classification {
	text := Serialize(params)

	return types.Classification{
		Sensitivity: types.Sensitivity{
			PHI:     redact.DetectPhi(text),
			PII:     emailPattern.MatchString(text) || phonePattern.MatchString(text),
			Secrets: redact.DetectSecrets(text),
			Finance: financePattern.MatchString(text) || strings.Contains(actionType, "finance"),
			System:  strings.HasPrefix(actionType, "system.") || strings.Contains(actionType, "install"),
		},
		ResourceRefs:    ResourceRefs(params),
		OutboundDomains: NormalizeDomains(outboundTargets),
	}
}

// ResourceRefs collects string values whose key mentions path or file.
// Keys are visited in sorted order so output is stable.
func ResourceRefs(params map[string]any) []string {
	refs := []string{}
	collectRefs(params, 0, &refs)
	return refs
}

func collectRefs(v any, depth int, refs *[]string) {
	if depth > maxRefDepth {
		return
	}
	switch value := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			item := value[key]
			lower := strings.ToLower(key)
			if s, ok := item.(string); ok && (strings.Contains(lower, "path") || strings.Contains(lower, "file")) {
				*refs = append(*refs, s)
				continue
			}
			collectRefs(item, depth+1, refs)
		}
	case []any:
		for _, item := range value {
			collectRefs(item, depth+1, refs)
		}
	}
}

// NormalizeDomains returns the lower-cased hostnames of targets, in first
// seen order without duplicates. Bare hostnames pass through lower-cased.
func NormalizeDomains(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	out := []string{}
	for _, target := range targets {
		domain := hostOf(target)
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, domain)
	}
	return out
}

// hostOf returns "" for targets with a scheme but no host, such as mailto:.
// host:port parses as scheme plus opaque, so it is split by hand.
func hostOf(target string) string {
	raw := strings.TrimSpace(target)
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	if err == nil && u.Scheme == "" {
		return strings.ToLower(raw)
	}
	if host, port, err := net.SplitHostPort(raw); err == nil {
		if _, err := strconv.ParseUint(port, 10, 16); err == nil {
			return strings.ToLower(host)
		}
	}
	if err != nil {
		return strings.ToLower(raw)
	}
	return ""
}

// Serialize encodes params as JSON without HTML escaping, the form the
// content heuristics run against.
func Serialize(params map[string]any) string {
	if params == nil {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}
