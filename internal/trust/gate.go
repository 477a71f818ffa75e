package trust

import (
	"context"
	"fmt"
	"strings"
)

// Gate is the identity gate: every write path calls it before touching scores.
type Gate struct {
	agreements AgreementStore
}

// NewGate wraps an agreement store.
func NewGate(agreements AgreementStore) *Gate {
	if agreements == nil {
		panic("trust: agreement store required")
	}
	return &Gate{agreements: agreements}
}

// IsEligible reports whether a signed agreement exists for the actor.
func (g *Gate) IsEligible(ctx context.Context, actorID string) (bool, error) {
	if strings.TrimSpace(actorID) == "" {
		return false, nil
	}
	signed, err := g.agreements.IsSigned(ctx, actorID)
	if err != nil {
		return false, fmt.Errorf("trust: check agreement: %w", err)
	}
	return signed, nil
}

// Require returns ErrAgreementRequired when the actor is not eligible.
func (g *Gate) Require(ctx context.Context, actorID string) error {
	ok, err := g.IsEligible(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: actor %s", ErrAgreementRequired, actorID)
	}
	return nil
}
