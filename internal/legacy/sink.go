package legacy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const DefaultMaxBytes int64 = 5 * 1024 * 1024

// Event types written to the plaintext sink.
const (
	EventToolCallBlocked          = "tool_call_blocked"
	EventToolCallRequiresApproval = "tool_call_requires_approval"
	EventToolCall                 = "tool_call"
	EventApprovalApproved         = "approval_approved"
	EventApprovalRejected         = "approval_rejected"
	EventApprovalExecuted         = "approval_executed"
)

type Event struct {
	Type          string `json:"type"`
	Tool          string `json:"tool"`
	At            string `json:"at"`
	CorrelationID string `json:"correlationId"`
	UserID        string `json:"userId"`
	Reason        string `json:"reason,omitempty"`
	Params        any    `json:"params,omitempty"`
	Result        any    `json:"result,omitempty"`
	ApprovalID    string `json:"approvalId,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
	Status        string `json:"status,omitempty"`
}

// FileSink appends events as JSON lines and moves the file aside once it
// reaches maxBytes.
type FileSink struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	now      func() time.Time
}

func NewFileSink(path string, maxBytes int64) *FileSink {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &FileSink{path: path, maxBytes: maxBytes, now: time.Now}
}

func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := s.rotateIfNeeded(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *FileSink) rotateIfNeeded() error {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < s.maxBytes {
		return nil
	}
	rotated := fmt.Sprintf("%s.%d", s.path, s.now().UnixMilli())
	return os.Rename(s.path, rotated)
}
