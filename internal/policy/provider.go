package policy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/davidahmann/agentgate/internal/crypto"
	"github.com/davidahmann/agentgate/internal/redact"
)

// Provider hands out the current policy snapshot. Each evaluation reads it
// once so a reload never splits a decision across two revisions.
type Provider interface {
	Current() *Snapshot
}

// FileProvider serves a policy file and swaps snapshots on reload.
type FileProvider struct {
	path    string
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// NewFileProvider loads path, writing the default policy if it is missing.
func NewFileProvider(path string) (*FileProvider, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	p := &FileProvider{path: path}
	p.current.Store(snap)
	return p, nil
}

func (p *FileProvider) Current() *Snapshot {
	return p.current.Load()
}

func (p *FileProvider) Redactor() *redact.Redactor {
	return p.Current().Redactor()
}

func (p *FileProvider) Path() string {
	return p.path
}

// Reload re-reads the file. On failure the previous snapshot stays live.
func (p *FileProvider) Reload() (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := Load(p.path)
	if err != nil {
		return p.Current(), err
	}
	p.current.Store(snap)
	return snap, nil
}

// Save validates doc, persists it and makes it the live snapshot.
func (p *FileProvider) Save(doc Document) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc.ApplyDefaults()
	candidate, err := FromDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := ValidateSchema(candidate.Bytes); err != nil {
		return nil, err
	}
	if _, err := writeDocument(p.path, doc); err != nil {
		return nil, fmt.Errorf("write policy: %w", err)
	}
	snap, err := Parse(candidate.Bytes, p.path)
	if err != nil {
		return nil, err
	}
	p.current.Store(snap)
	return snap, nil
}

// Watch polls the file every interval and reloads when its digest changes.
// It returns when ctx is done.
func (p *FileProvider) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.reloadIfChanged()
		}
	}
}

func (p *FileProvider) reloadIfChanged() {
	// #nosec G304 -- path comes from operator-configured policy path.
	data, err := os.ReadFile(p.path)
	if err != nil {
		log.Warn().Err(err).Str("path", p.path).Msg("policy_read_failed")
		return
	}
	current := p.Current()
	if current != nil && bytes.Equal(data, current.Bytes) {
		return
	}
	snap, err := p.Reload()
	if err != nil {
		log.Error().Err(err).Str("path", p.path).Str("hash", crypto.DigestWithPrefix(data)).Msg("policy_reload_failed")
		return
	}
	log.Info().Str("path", p.path).Str("hash", snap.Hash).Msg("policy_reloaded")
}

// StaticProvider serves a fixed snapshot; tests swap it with Set.
type StaticProvider struct {
	current atomic.Pointer[Snapshot]
}

// NewStatic compiles doc into a fixed provider.
func NewStatic(doc Document) (*StaticProvider, error) {
	snap, err := FromDocument(doc)
	if err != nil {
		return nil, err
	}
	p := &StaticProvider{}
	p.current.Store(snap)
	return p, nil
}

func (p *StaticProvider) Current() *Snapshot {
	return p.current.Load()
}

func (p *StaticProvider) Redactor() *redact.Redactor {
	return p.Current().Redactor()
}

// Set replaces the served document.
func (p *StaticProvider) Set(doc Document) error {
	snap, err := FromDocument(doc)
	if err != nil {
		return err
	}
	p.current.Store(snap)
	return nil
}
