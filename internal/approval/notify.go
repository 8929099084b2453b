package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/davidahmann/agentgate/pkg/types"
)

var ErrQueueFull = errors.New("approval notification queue full")

// Message is the body posted to the approval webhook.
type Message struct {
	ApprovalID string `json:"approvalId"`
	ToolName   string `json:"toolName"`
	RiskLevel  string `json:"riskLevel"`
	Text       string `json:"text"`
}

func FormatMessage(a types.Approval) Message {
	summary := a.HumanSummary
	if summary == "" {
		summary = "Approval required"
	}
	lines := []string{"Approval required", summary}
	if a.ToolName != "" {
		lines = append(lines, "Tool: "+a.ToolName)
	}
	if a.ID != "" {
		lines = append(lines, "ID: "+a.ID)
	}
	lines = append(lines, "Approve or reject it from the approvals API before it goes stale.")
	return Message{ApprovalID: a.ID, ToolName: a.ToolName, RiskLevel: a.RiskLevel, Text: strings.Join(lines, "\n")}
}

type pending struct {
	msg      Message
	attempts int
	due      time.Time
}

// WebhookNotifier queues approval messages and posts them to a webhook from
// Run, retrying failed posts with exponential backoff.
type WebhookNotifier struct {
	url         string
	client      *http.Client
	queue       chan pending
	maxAttempts int
	backoffBase time.Duration
	now         func() time.Time
}

type WebhookOption func(*WebhookNotifier)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(n *WebhookNotifier) { n.client = c }
}

func WithBackoff(base time.Duration, maxAttempts int) WebhookOption {
	return func(n *WebhookNotifier) {
		n.backoffBase = base
		n.maxAttempts = maxAttempts
	}
}

func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:         url,
		client:      &http.Client{Timeout: 10 * time.Second},
		queue:       make(chan pending, 256),
		maxAttempts: 6,
		backoffBase: 5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyApprovalCreated enqueues the message without blocking.
func (n *WebhookNotifier) NotifyApprovalCreated(_ context.Context, a types.Approval) error {
	select {
	case n.queue <- pending{msg: FormatMessage(a), due: n.now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued messages until ctx is cancelled.
func (n *WebhookNotifier) Run(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	retry := []pending{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-n.queue:
			retry = n.deliver(ctx, p, retry)
		case <-ticker.C:
			now := n.now()
			still := retry[:0]
			for _, p := range retry {
				if p.due.After(now) {
					still = append(still, p)
					continue
				}
				still = n.deliver(ctx, p, still)
			}
			retry = still
		}
	}
}

func (n *WebhookNotifier) deliver(ctx context.Context, p pending, retry []pending) []pending {
	err := n.post(ctx, p.msg)
	if err == nil {
		return retry
	}
	p.attempts++
	if p.attempts >= n.maxAttempts {
		log.Error().Err(err).Str("approval_id", p.msg.ApprovalID).Int("attempts", p.attempts).Msg("approval_notify_dropped")
		return retry
	}
	p.due = n.now().Add(nextAttempt(n.backoffBase, p.attempts-1))
	log.Warn().Err(err).Str("approval_id", p.msg.ApprovalID).Int("attempts", p.attempts).Msg("approval_notify_retry")
	return append(retry, p)
}

func (n *WebhookNotifier) post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// nextAttempt doubles base per prior attempt, capped at 5m.
func nextAttempt(base time.Duration, attemptCount int) time.Duration {
	if attemptCount <= 0 {
		return base
	}
	d := base << attemptCount
	max := 5 * time.Minute
	if d > max || d <= 0 {
		return max
	}
	return d
}
