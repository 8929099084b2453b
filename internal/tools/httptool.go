package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davidahmann/agentgate/pkg/types"
)

const maxWebhookResponse = 1 << 20

// WebhookConfig declares a tool whose handler forwards params to an HTTP
// endpoint and returns the decoded response.
type WebhookConfig struct {
	Name             string            `yaml:"name"`
	Description      string            `yaml:"description"`
	URL              string            `yaml:"url"`
	Method           string            `yaml:"method"`
	Headers          map[string]string `yaml:"headers"`
	RiskLevel        string            `yaml:"risk_level"`
	RequiresApproval bool              `yaml:"requires_approval"`
	Summary          string            `yaml:"summary"`
	Timeout          time.Duration     `yaml:"timeout"`
}

func Webhook(cfg WebhookConfig, client *http.Client) Definition {
	if client == nil {
		client = &http.Client{}
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	def := Definition{
		Name:             cfg.Name,
		Description:      cfg.Description,
		RiskLevel:        cfg.RiskLevel,
		Outbound:         true,
		RequiresApproval: cfg.RequiresApproval,
		OutboundTargets: func(map[string]any, types.CallerContext) []string {
			return []string{cfg.URL}
		},
		Handler: func(ctx context.Context, params map[string]any, caller types.CallerContext) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return callWebhook(ctx, client, method, cfg, params, caller)
		},
	}
	if cfg.Summary != "" {
		def.HumanSummary = func(map[string]any) string { return cfg.Summary }
	}
	return def
}

func callWebhook(ctx context.Context, client *http.Client, method string, cfg WebhookConfig, params map[string]any, caller types.CallerContext) (any, error) {
	body, err := json.Marshal(map[string]any{"tool": cfg.Name, "params": params, "userId": caller.UserID, "correlationId": caller.Correlation()})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: webhook status %d", cfg.Name, resp.StatusCode)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{"status": resp.StatusCode}, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw), nil
	}
	return out, nil
}
