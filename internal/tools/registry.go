// Package tools is the catalog of tools the gateway can run.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/davidahmann/agentgate/pkg/types"
)

var (
	ErrNameRequired      = errors.New("tool name required")
	ErrHandlerRequired   = errors.New("tool handler required")
	ErrAlreadyRegistered = errors.New("tool already registered")
)

type Handler func(ctx context.Context, params map[string]any, caller types.CallerContext) (any, error)

// Definition describes one tool. The optional funcs let a tool derive
// approval needs, outbound targets and a summary from the call's params.
type Definition struct {
	Name             string
	Description      string
	RiskLevel        string
	Outbound         bool
	RequiresApproval bool
	ApprovalFunc     func(params map[string]any, caller types.CallerContext) bool
	OutboundTargets  func(params map[string]any, caller types.CallerContext) []string
	HumanSummary     func(params map[string]any) string
	Handler          Handler
}

func (d Definition) NeedsApproval(params map[string]any, caller types.CallerContext) bool {
	if d.ApprovalFunc != nil {
		return d.ApprovalFunc(params, caller)
	}
	return d.RequiresApproval
}

func (d Definition) Targets(params map[string]any, caller types.CallerContext) []string {
	if d.OutboundTargets == nil {
		return []string{}
	}
	targets := d.OutboundTargets(params, caller)
	if targets == nil {
		return []string{}
	}
	return targets
}

func (d Definition) Summary(params map[string]any) string {
	if d.HumanSummary != nil {
		if s := d.HumanSummary(params); s != "" {
			return s
		}
	}
	return "Request to run " + d.Name
}

// Risk returns the declared risk level, "medium" when unset.
func (d Definition) Risk() string {
	if d.RiskLevel == "" {
		return "medium"
	}
	return d.RiskLevel
}

func (d Definition) Info() types.ToolInfo {
	return types.ToolInfo{
		Name:             d.Name,
		Description:      d.Description,
		RiskLevel:        d.Risk(),
		Outbound:         d.Outbound,
		RequiresApproval: d.RequiresApproval,
	}
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Definition{}}
}

func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return ErrNameRequired
	}
	if def.Handler == nil {
		return fmt.Errorf("%s: %w", def.Name, ErrHandlerRequired)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[def.Name]; ok {
		return fmt.Errorf("%s: %w", def.Name, ErrAlreadyRegistered)
	}
	r.tools[def.Name] = def
	return nil
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns the catalog sorted by name.
func (r *Registry) List() []types.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolInfo, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
