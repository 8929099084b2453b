package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProviderReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allow_actions: [chat.respond]\n"), 0o600))

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	first := p.Current()

	require.NoError(t, os.WriteFile(path, []byte("allow_actions: [notes.create]\n"), 0o600))
	next, err := p.Reload()
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, next.Hash)
	assert.Equal(t, []string{"notes.create"}, p.Current().Document.AllowActions)

	require.NoError(t, os.WriteFile(path, []byte("bogus_key: 1\n"), 0o600))
	kept, err := p.Reload()
	require.Error(t, err)
	assert.Equal(t, next.Hash, kept.Hash)
	assert.Equal(t, next.Hash, p.Current().Hash)
}

func TestFileProviderSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	p, err := NewFileProvider(path)
	require.NoError(t, err)

	doc := p.Current().Document
	doc.AllowActions = []string{"chat.respond"}
	snap, err := p.Save(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat.respond"}, p.Current().Document.AllowActions)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Hash, reloaded.Hash)

	doc.Logging.Redaction.Patterns = []string{"("}
	_, err = p.Save(doc)
	require.Error(t, err)
	assert.Equal(t, snap.Hash, p.Current().Hash)
}

func TestFileProviderWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allow_actions: [chat.respond]\n"), 0o600))
	p, err := NewFileProvider(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, 10*time.Millisecond) }()

	require.NoError(t, os.WriteFile(path, []byte("allow_actions: [file.read]\n"), 0o600))
	assert.Eventually(t, func() bool {
		return len(p.Current().Document.AllowActions) == 1 && p.Current().Document.AllowActions[0] == "file.read"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSelfProtectionCoversPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent-policy.yaml")
	snap, err := Load(path)
	require.NoError(t, err)

	ev := NewEvaluator(&StaticProvider{}, nil, nil)
	got := ev.EvaluateWith(snap, false, Request{ActionType: "file.write", Params: map[string]any{"path": path}})
	assert.Equal(t, ReasonSelfModify, got.Reason)
}
