// Package legacy is the per-mode tool gate that runs alongside the policy
// evaluator, plus its plaintext JSONL audit sink.
package legacy

import (
	"encoding/json"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/davidahmann/agentgate/internal/classify"
	"github.com/davidahmann/agentgate/internal/crypto"
	"github.com/davidahmann/agentgate/pkg/types"
)

const (
	ModePHI    = "phi"
	ModeNormal = "normal"
)

type Config struct {
	// PHIMode selects the phi allowlist when the caller names no mode.
	PHIMode         bool
	AllowlistNormal []string
	AllowlistPHI    []string
	// AllowedDomains are hostname suffixes; empty allows every target.
	AllowedDomains []string
	PanicSwitch    bool
}

// Tool is the part of a tool definition the gate looks at.
type Tool struct {
	Name             string
	Outbound         bool
	RequiresApproval bool
}

type Result struct {
	Mode             string
	Allowlisted      bool
	PHI              PHIResult
	RedactedParams   map[string]any
	OutboundOK       bool
	Block            bool
	RequiresApproval bool
	PolicyHash       string
}

type Evaluator struct {
	cfg         Config
	outboundOff atomic.Bool
}

func New(cfg Config) *Evaluator {
	e := &Evaluator{cfg: cfg}
	e.outboundOff.Store(cfg.PanicSwitch)
	return e
}

// SetPanic disables or re-enables every outbound tool at runtime.
func (e *Evaluator) SetPanic(on bool) {
	e.outboundOff.Store(on)
}

func (e *Evaluator) OutboundDisabled() bool {
	return e.outboundOff.Load()
}

func (e *Evaluator) Evaluate(tool Tool, params map[string]any, caller types.CallerContext, outboundTargets []string) Result {
	mode := caller.Mode
	if mode == "" {
		mode = ModeNormal
		if e.cfg.PHIMode {
			mode = ModePHI
		}
	}
	allowlist := e.cfg.AllowlistNormal
	if mode == ModePHI {
		allowlist = e.cfg.AllowlistPHI
	}
	allowlisted := len(allowlist) == 0 || slices.Contains(allowlist, tool.Name)

	raw := classify.Serialize(params)
	phi := DetectPHI(raw)
	redactedText := RedactPHI(raw)
	redacted := map[string]any{}
	if err := json.Unmarshal([]byte(redactedText), &redacted); err != nil {
		redacted = map[string]any{"_raw": redactedText}
	}

	outboundOK := CheckOutboundDomains(outboundTargets, e.cfg.AllowedDomains)
	outboundBlocked := tool.Outbound && (e.OutboundDisabled() || !outboundOK)

	return Result{
		Mode:             mode,
		Allowlisted:      allowlisted,
		PHI:              phi,
		RedactedParams:   redacted,
		OutboundOK:       outboundOK,
		Block:            !allowlisted || outboundBlocked,
		RequiresApproval: tool.RequiresApproval || (tool.Outbound && phi.HasPHI && mode == ModePHI),
		PolicyHash:       policyHash(mode, allowlisted, outboundOK, phi.Matches),
	}
}

// CheckOutboundDomains reports whether every target URL's host ends with
// one of allowed. Targets that are not absolute URLs fail.
func CheckOutboundDomains(targets, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, target := range targets {
		u, err := url.Parse(target)
		if err != nil || u.Scheme == "" || u.Hostname() == "" {
			return false
		}
		host := strings.ToLower(u.Hostname())
		ok := false
		for _, suffix := range allowed {
			if strings.HasSuffix(host, strings.ToLower(suffix)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func policyHash(mode string, allowlisted, outboundOK bool, matches []PHIMatch) string {
	raw, err := json.Marshal(struct {
		Mode        string     `json:"mode"`
		Allowlisted bool       `json:"allowlisted"`
		OutboundOK  bool       `json:"outboundOk"`
		PHI         []PHIMatch `json:"phi"`
	}{mode, allowlisted, outboundOK, matches})
	if err != nil {
		return ""
	}
	return crypto.DigestHex(raw)
}
