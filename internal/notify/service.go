package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/trust-engine/pkg/logging"
)

// Alert describes one risk escalation that operators should look at.
type Alert struct {
	EntryID       string
	ActorID       string
	RiskLevel     string
	PreviousLevel string
	TrustScore    int
	SusScore      int
	Actions       []string
	TriggeredAt   time.Time
}

// Service fans operator alerts out to the configured recipients.
type Service struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewService creates an alert service. Blank recipients are dropped.
func NewService(email EmailSender, recipients []string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	var cleaned []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &Service{email: email, recipients: cleaned, logger: logger}
}

// Enabled reports whether alerts have somewhere to go.
func (s *Service) Enabled() bool {
	return s != nil && s.email != nil && len(s.recipients) > 0
}

// NotifyEscalation emails every recipient. A failure for one recipient does
// not stop the others; all failures are returned joined.
func (s *Service) NotifyEscalation(ctx context.Context, alert Alert) error {
	if !s.Enabled() {
		s.logger.Debug("notify: operator alerts not configured, skipping", "actor_id", alert.ActorID)
		return nil
	}

	msg := EmailMessage{
		Subject:    formatSubject(alert),
		Body:       formatBody(alert),
		Categories: []string{"trust_escalation", strings.ToLower(alert.RiskLevel)},
	}

	var errs []error
	for _, to := range s.recipients {
		msg.To = to
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: operator alert failed", "error", err, "to", to, "actor_id", alert.ActorID)
			errs = append(errs, fmt.Errorf("notify: alert %s: %w", to, err))
			continue
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("notify: operator alert sent", "actor_id", alert.ActorID, "risk_level", alert.RiskLevel, "recipients", len(s.recipients))
	return nil
}

func formatSubject(a Alert) string {
	return fmt.Sprintf("[%s] actor %s escalated", a.RiskLevel, a.ActorID)
}

func formatBody(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Actor: %s\n", a.ActorID)
	if a.PreviousLevel != "" {
		fmt.Fprintf(&b, "Risk level: %s (was %s)\n", a.RiskLevel, a.PreviousLevel)
	} else {
		fmt.Fprintf(&b, "Risk level: %s (first classification)\n", a.RiskLevel)
	}
	fmt.Fprintf(&b, "Trust score: %d\n", a.TrustScore)
	fmt.Fprintf(&b, "Sus score: %d\n", a.SusScore)
	if len(a.Actions) > 0 {
		fmt.Fprintf(&b, "Actions: %s\n", strings.Join(a.Actions, ", "))
	}
	fmt.Fprintf(&b, "Triggered: %s\n", a.TriggeredAt.UTC().Format(time.RFC3339))
	if a.EntryID != "" {
		fmt.Fprintf(&b, "Log entry: %s\n", a.EntryID)
	}
	return b.String()
}
