package policy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/agentgate/internal/crypto"
	"github.com/davidahmann/agentgate/internal/redact"
)

// Snapshot is an immutable, compiled view of one policy revision.
type Snapshot struct {
	Document Document
	Hash     string
	Bytes    []byte
	Path     string
	LoadedAt time.Time

	redactor  *redact.Redactor
	protected []glob
	self      []glob
}

// Redactor returns the redactor built from this revision's patterns.
func (s *Snapshot) Redactor() *redact.Redactor {
	return s.redactor
}

// Load reads, validates and compiles a YAML or JSON policy. When the file
// does not exist the default policy is written there first.
func Load(path string) (*Snapshot, error) {
	// #nosec G304 -- path comes from operator-configured policy path.
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = writeDocument(path, Default())
	}
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse validates and compiles raw policy bytes. path is only used for
// self-protection of the policy file itself and may be empty.
func Parse(data []byte, path string) (*Snapshot, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	doc.ApplyDefaults()
	return compile(doc, data, path)
}

// FromDocument compiles an in-memory document, hashing its YAML encoding.
func FromDocument(doc Document) (*Snapshot, error) {
	doc.ApplyDefaults()
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return compile(doc, data, "")
}

func compile(doc Document, data []byte, path string) (*Snapshot, error) {
	redactor, err := redact.New(doc.RedactionPatterns())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	selfPaths := append(append([]string{}, SafetyPaths...), doc.SelfProtection.Paths...)
	if path != "" {
		selfPaths = append(selfPaths, "*"+normalizePath(path))
		if abs, err := filepath.Abs(path); err == nil {
			selfPaths = append(selfPaths, normalizePath(abs))
		}
	}

	return &Snapshot{
		Document:  doc,
		Hash:      crypto.DigestWithPrefix(data),
		Bytes:     data,
		Path:      path,
		LoadedAt:  time.Now().UTC(),
		redactor:  redactor,
		protected: compileGlobs(doc.ProtectedPaths),
		self:      compileGlobs(selfPaths),
	}, nil
}

func writeDocument(path string, doc Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, err
	}
	return data, nil
}
