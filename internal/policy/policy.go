// Package policy loads the per-deployment scoring scheme, point table and
// intervention action sets from YAML.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/trust-engine/internal/intervention"
	"github.com/wolfman30/trust-engine/internal/trust"
)

// DefaultScheme is used when neither the file nor the caller picks one.
const DefaultScheme = trust.SchemeContract

// Policy is the resolved deployment policy.
type Policy struct {
	Scoring       trust.Scoring
	Interventions intervention.Policy
	// Hash is "sha256:<hex>" over the raw file bytes, or over empty input
	// when defaults were used.
	Hash string
}

type document struct {
	Scoring       trust.Scoring       `yaml:"scoring"`
	Interventions map[string][]string `yaml:"interventions"`
}

// Default returns the built-in policy for a scheme.
func Default(scheme trust.Scheme) *Policy {
	if scheme == "" {
		scheme = DefaultScheme
	}
	h := sha256.Sum256(nil)
	return &Policy{
		Scoring:       trust.DefaultScoring(scheme),
		Interventions: intervention.DefaultPolicy(),
		Hash:          "sha256:" + hex.EncodeToString(h[:]),
	}
}

// Load reads path and overlays it on the defaults. A missing file or empty
// path yields defaults. A non-empty scheme overrides the file's scheme.
func Load(path string, scheme trust.Scheme) (*Policy, error) {
	if path == "" {
		p := Default(scheme)
		return p, p.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			p := Default(scheme)
			return p, p.Validate()
		}
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(data, scheme)
}

// Parse overlays raw YAML on the defaults.
func Parse(data []byte, scheme trust.Scheme) (*Policy, error) {
	doc := document{Scoring: trust.DefaultScoring(DefaultScheme)}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: parse: %w", err)
	}
	if scheme != "" {
		doc.Scoring.Scheme = scheme
	}

	actions := intervention.DefaultPolicy()
	for name, list := range doc.Interventions {
		level, err := trust.ParseRiskLevel(name)
		if err != nil {
			return nil, fmt.Errorf("policy: interventions: %w", err)
		}
		set := make([]intervention.Action, 0, len(list))
		for _, a := range list {
			set = append(set, intervention.Action(a))
		}
		actions[level] = set
	}

	h := sha256.Sum256(data)
	p := &Policy{
		Scoring:       doc.Scoring,
		Interventions: actions,
		Hash:          "sha256:" + hex.EncodeToString(h[:]),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) Validate() error {
	if err := p.Scoring.Validate(); err != nil {
		return fmt.Errorf("policy: scoring: %w", err)
	}
	if err := p.Interventions.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}
