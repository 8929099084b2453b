package policy

// Document is the agent policy as authored on disk (YAML or JSON).
// Pointer fields distinguish "absent" from an explicit zero; ApplyDefaults
// fills them in.
type Document struct {
	AutonomyLevel        string         `yaml:"autonomy_level" json:"autonomy_level"`
	RiskThreshold        *int           `yaml:"risk_threshold,omitempty" json:"risk_threshold,omitempty"`
	AllowActions         []string       `yaml:"allow_actions" json:"allow_actions"`
	RequiresApproval     []string       `yaml:"requires_approval" json:"requires_approval"`
	ProtectedPaths       []string       `yaml:"protected_paths" json:"protected_paths"`
	NetworkRules         NetworkRules   `yaml:"network_rules" json:"network_rules"`
	MemoryTiers          MemoryTiers    `yaml:"memory_tiers" json:"memory_tiers"`
	AbsoluteProhibitions []string       `yaml:"absolute_prohibitions" json:"absolute_prohibitions"`
	KillSwitch           KillSwitch     `yaml:"kill_switch" json:"kill_switch"`
	Logging              Logging        `yaml:"logging" json:"logging"`
	SelfProtection       SelfProtection `yaml:"self_protection" json:"self_protection"`
}

type NetworkRules struct {
	AllowlistDomains             []string `yaml:"allowlist_domains" json:"allowlist_domains"`
	BlocklistDomains             []string `yaml:"blocklist_domains" json:"blocklist_domains"`
	RequireApprovalForNewDomains *bool    `yaml:"require_approval_for_new_domains,omitempty" json:"require_approval_for_new_domains,omitempty"`
	BlockUploadsToUnknown        *bool    `yaml:"block_uploads_to_unknown,omitempty" json:"block_uploads_to_unknown,omitempty"`
}

type MemoryTiers struct {
	Tier0 MemoryTier `yaml:"tier0" json:"tier0"`
	Tier1 MemoryTier `yaml:"tier1" json:"tier1"`
	Tier2 MemoryTier `yaml:"tier2" json:"tier2"`
	Tier3 MemoryTier `yaml:"tier3" json:"tier3"`
	Tier4 MemoryTier `yaml:"tier4" json:"tier4"`
}

type MemoryTier struct {
	Label      string `yaml:"label" json:"label"`
	AllowWrite *bool  `yaml:"allow_write,omitempty" json:"allow_write,omitempty"`
	AllowRead  *bool  `yaml:"allow_read,omitempty" json:"allow_read,omitempty"`
}

type KillSwitch struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	StopPhrase string `yaml:"stop_phrase" json:"stop_phrase"`
}

type Logging struct {
	RetentionDays    int       `yaml:"retention_days" json:"retention_days"`
	Redaction        Redaction `yaml:"redaction" json:"redaction"`
	IncludeHashChain *bool     `yaml:"include_hash_chain,omitempty" json:"include_hash_chain,omitempty"`
}

type Redaction struct {
	Enabled  *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// SafetyPaths are the gate's own implementation paths. They are always
// self-protected; SelfProtection.Paths adds to them.
var SafetyPaths = []string{
	"*/internal/policy/*",
	"*/internal/redact/*",
	"*/internal/audit/*",
	"*/internal/gate/*",
}

// SelfProtection lists globs for the gate's own code and configuration.
// file.* and system.modify actions touching them are denied.
type SelfProtection struct {
	Paths []string `yaml:"paths" json:"paths"`
}

const (
	AutonomyAssistiveOnly = "assistive_only"
	AutonomySupervised    = "supervised"
	AutonomyAutonomous    = "autonomous"

	DefaultRiskThreshold = 60
	DefaultStopPhrase    = "Aika, stand down."
	DefaultRetentionDays = 30
)

// ApplyDefaults fills absent scalar settings. Lists stay as authored;
// SafetyPaths are added at compile time, not written into the document.
func (d *Document) ApplyDefaults() {
	if d.AutonomyLevel == "" {
		d.AutonomyLevel = AutonomySupervised
	}
	if d.RiskThreshold == nil {
		d.RiskThreshold = intPtr(DefaultRiskThreshold)
	}
	defaultBool(&d.NetworkRules.RequireApprovalForNewDomains, true)
	defaultBool(&d.NetworkRules.BlockUploadsToUnknown, true)

	tiers := []struct {
		tier  *MemoryTier
		label string
		write bool
	}{
		{&d.MemoryTiers.Tier0, "ephemeral", true},
		{&d.MemoryTiers.Tier1, "personal", true},
		{&d.MemoryTiers.Tier2, "professional", true},
		{&d.MemoryTiers.Tier3, "encrypted", true},
		{&d.MemoryTiers.Tier4, "PHI_readonly", false},
	}
	for _, t := range tiers {
		if t.tier.Label == "" {
			t.tier.Label = t.label
		}
		defaultBool(&t.tier.AllowWrite, t.write)
		defaultBool(&t.tier.AllowRead, true)
	}

	if d.KillSwitch.StopPhrase == "" {
		d.KillSwitch.StopPhrase = DefaultStopPhrase
	}
	if d.Logging.RetentionDays == 0 {
		d.Logging.RetentionDays = DefaultRetentionDays
	}
	defaultBool(&d.Logging.Redaction.Enabled, true)
	defaultBool(&d.Logging.IncludeHashChain, true)
}

// Threshold returns the risk score at or above which approval is required.
func (d *Document) Threshold() int {
	if d.RiskThreshold == nil {
		return DefaultRiskThreshold
	}
	return *d.RiskThreshold
}

// RequireApprovalForNewDomains defaults to true.
func (d *Document) RequireApprovalForNewDomains() bool {
	return boolOr(d.NetworkRules.RequireApprovalForNewDomains, true)
}

// Tier4AllowWrite is true only when explicitly enabled.
func (d *Document) Tier4AllowWrite() bool {
	return boolOr(d.MemoryTiers.Tier4.AllowWrite, false)
}

// RedactionPatterns returns the custom patterns when redaction is enabled.
func (d *Document) RedactionPatterns() []string {
	if !boolOr(d.Logging.Redaction.Enabled, true) {
		return nil
	}
	return d.Logging.Redaction.Patterns
}

func defaultBool(p **bool, v bool) {
	if *p == nil {
		*p = boolPtr(v)
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }
