// Package scrub redacts secrets from feedback notes before they reach the
// store. Detection uses the Gitleaks ruleset; matches are replaced with a
// rule-tagged marker so the note keeps enough shape for keyword analysis.
package scrub

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Config configures the scrubber.
type Config struct {
	// Enabled turns scrubbing on. Disabled, Scrub is a passthrough.
	Enabled bool

	// AllowlistPath points at an optional TOML allowlist; see
	// LoadAllowlist. Missing file is fine, invalid file is a startup
	// error.
	AllowlistPath string
}

// Scrubber redacts detected secrets from text.
//
// The Gitleaks config (including the allowlist) is built once at
// construction; each Scrub call runs a fresh detector over it so no
// per-call state accumulates across the daemon's lifetime.
type Scrubber struct {
	enabled bool
	base    gitleaksConfig.Config
	logger  *zap.Logger
}

// New creates a scrubber from cfg.
func New(cfg Config, logger *zap.Logger) (*Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Enabled {
		return &Scrubber{enabled: false, logger: logger}, nil
	}

	// Default Gitleaks config carries the full built-in ruleset.
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("building gitleaks detector: %w", err)
	}

	allowlist, err := LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("loading allowlist: %w", err)
	}
	applyAllowlist(&detector.Config, allowlist)

	return &Scrubber{
		enabled: true,
		base:    detector.Config,
		logger:  logger,
	}, nil
}

// applyAllowlist merges allowlist patterns into the Gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	if allowlist == nil || len(allowlist.Regexes) == 0 {
		return
	}

	global := &gitleaksConfig.Allowlist{
		Description: "flywheeld operator allowlist",
	}

	for _, pattern := range allowlist.Regexes {
		// Patterns were validated in LoadAllowlist; a failure here is a
		// programming error.
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated allowlist pattern failed to compile: " + pattern)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, global)
}

// IsEnabled returns whether scrubbing is active.
func (s *Scrubber) IsEnabled() bool {
	return s.enabled
}

// Scrub returns text with every detected secret replaced by a
// [REDACTED:rule-id] marker. Feedback notes are small; replacement is by
// secret value, which also catches a secret pasted more than once.
func (s *Scrubber) Scrub(text string) string {
	if !s.enabled || text == "" {
		return text
	}

	findings := detect.NewDetector(s.base).DetectString(text)
	if len(findings) == 0 {
		return text
	}

	// Longest secrets first so a secret embedded in a longer one does not
	// shred the longer match.
	type hit struct {
		secret string
		ruleID string
	}
	seen := make(map[string]string, len(findings))
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		if _, ok := seen[f.Secret]; !ok {
			seen[f.Secret] = f.RuleID
		}
	}
	hits := make([]hit, 0, len(seen))
	for secret, ruleID := range seen {
		hits = append(hits, hit{secret: secret, ruleID: ruleID})
	}
	sort.Slice(hits, func(i, j int) bool {
		if len(hits[i].secret) != len(hits[j].secret) {
			return len(hits[i].secret) > len(hits[j].secret)
		}
		return hits[i].secret < hits[j].secret
	})

	scrubbed := text
	for _, h := range hits {
		marker := fmt.Sprintf("[REDACTED:%s]", h.ruleID)
		scrubbed = strings.ReplaceAll(scrubbed, h.secret, marker)
	}

	s.logger.Debug("scrubbed secrets from note",
		zap.Int("findings", len(findings)),
		zap.Int("unique_secrets", len(hits)))

	return scrubbed
}
