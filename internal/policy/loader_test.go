package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/agentgate/internal/crypto"
)

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "policy.yaml")

	snap, err := Load(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, crypto.DigestWithPrefix(data), snap.Hash)
	assert.Equal(t, Default().AllowActions, snap.Document.AllowActions)
	assert.Equal(t, 60, snap.Document.Threshold())
	assert.False(t, snap.Document.Tier4AllowWrite())
}

func TestLoadAppliesScalarDefaultsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allow_actions: [chat.respond]\nrisk_threshold: 0\n"), 0o600))

	snap, err := Load(path)
	require.NoError(t, err)
	doc := snap.Document
	assert.Equal(t, []string{"chat.respond"}, doc.AllowActions)
	assert.Empty(t, doc.RequiresApproval)
	assert.Equal(t, 0, doc.Threshold(), "explicit zero threshold is kept")
	assert.True(t, doc.RequireApprovalForNewDomains())
	assert.Equal(t, "PHI_readonly", doc.MemoryTiers.Tier4.Label)
	assert.Equal(t, DefaultStopPhrase, doc.KillSwitch.StopPhrase)
	assert.Equal(t, AutonomySupervised, doc.AutonomyLevel)
}

func TestLoadAcceptsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	body := `{"allow_actions": ["notes.create"], "network_rules": {"allowlist_domains": ["example.com"]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, snap.Document.NetworkRules.AllowlistDomains)
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "allow_actions: []\nsurprise: true\n",
		"threshold range":  "risk_threshold: 101\n",
		"autonomy enum":    "autonomy_level: reckless\n",
		"list of strings":  "allow_actions: [1, 2]\n",
		"redaction regexp": "logging:\n  redaction:\n    patterns: ['(']\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			require.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestRedactionDisabledDropsCustomPatterns(t *testing.T) {
	doc := Default()
	doc.Logging.Redaction.Enabled = boolPtr(false)
	snap, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "token=abc", snap.Redactor().RedactString("token=abc"))

	enabled, err := FromDocument(Default())
	require.NoError(t, err)
	assert.NotEqual(t, "token=abc", enabled.Redactor().RedactString("token=abc"))
}
