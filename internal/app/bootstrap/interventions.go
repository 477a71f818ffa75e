package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/trust-engine/internal/ingest"
	"github.com/wolfman30/trust-engine/internal/intervention"
	"github.com/wolfman30/trust-engine/internal/notify"
)

func (rt *Runtime) buildDispatcher(ctx context.Context) (*intervention.Dispatcher, error) {
	levels, err := rt.buildLevelStore(ctx)
	if err != nil {
		return nil, err
	}

	var log intervention.Log
	if rt.pool != nil {
		log = intervention.NewPostgresLog(rt.pool)
	} else {
		log = intervention.NewMemoryLog()
	}

	notifiers, err := rt.buildNotifiers(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		names = append(names, n.Name())
	}
	rt.logger.Info("intervention dispatcher configured", "notifiers", names)

	return intervention.NewDispatcher(rt.Policy.Interventions, levels, log, rt.logger, notifiers...).
		WithObserver(rt.Metrics).
		WithNotifyTimeout(rt.Config.NotifyTimeout), nil
}

func (rt *Runtime) buildLevelStore(ctx context.Context) (intervention.LevelStore, error) {
	mode := rt.Config.InterventionLevelStore
	switch mode {
	case "memory":
		return intervention.NewMemoryLevelStore(), nil
	case "redis":
		if rt.redis == nil {
			return nil, fmt.Errorf("bootstrap: INTERVENTION_LEVEL_STORE=redis requires redis")
		}
		return intervention.NewRedisLevelStore(rt.redis, rt.Config.RedisPrefix+":intervention_levels"), nil
	case "dynamodb":
		awsCfg, err := rt.aws.Load(ctx)
		if err != nil {
			return nil, err
		}
		return intervention.NewDynamoLevelStore(dynamodb.NewFromConfig(awsCfg), rt.Config.InterventionLevelsTable), nil
	case "", "auto":
		if rt.redis != nil {
			return intervention.NewRedisLevelStore(rt.redis, rt.Config.RedisPrefix+":intervention_levels"), nil
		}
		return intervention.NewMemoryLevelStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown INTERVENTION_LEVEL_STORE %q", mode)
	}
}

func (rt *Runtime) buildNotifiers(ctx context.Context) ([]intervention.Notifier, error) {
	notifiers := []intervention.Notifier{intervention.NewLogNotifier(rt.logger)}

	if rt.redis != nil && rt.Config.InterventionChannel != "" {
		notifiers = append(notifiers, intervention.NewRedisPublisher(rt.redis, rt.Config.InterventionChannel))
	}

	if rt.Config.InterventionQueueURL != "" {
		awsCfg, err := rt.aws.Load(ctx)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, intervention.NewSQSNotifier(sqs.NewFromConfig(awsCfg), rt.Config.InterventionQueueURL))
	}

	sender, err := rt.buildEmailSender(ctx)
	if err != nil {
		return nil, err
	}
	alerts := notify.NewService(sender, rt.Config.OperatorAlertEmails, rt.logger)
	if alerts.Enabled() {
		notifiers = append(notifiers, intervention.NewOperatorNotifier(alerts))
	}
	return notifiers, nil
}

// buildEmailSender picks the operator email transport. "auto" prefers
// SendGrid when a key is present and falls back to the logging stub.
func (rt *Runtime) buildEmailSender(ctx context.Context) (notify.EmailSender, error) {
	cfg := rt.Config
	provider := cfg.EmailProvider
	if provider == "" || provider == "auto" {
		provider = "stub"
		if cfg.SendGridAPIKey != "" {
			provider = "sendgrid"
		}
	}

	switch provider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromEmail,
			FromName:  cfg.EmailFromName,
		}, rt.logger); sender != nil {
			return sender, nil
		}
		rt.logger.Warn("EMAIL_PROVIDER=sendgrid without SENDGRID_API_KEY; using stub sender")
		return notify.NewStubEmailSender(rt.logger), nil
	case "ses":
		awsCfg, err := rt.aws.Load(ctx)
		if err != nil {
			return nil, err
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromEmail,
			FromName:  cfg.EmailFromName,
		}, rt.logger), nil
	case "stub":
		return notify.NewStubEmailSender(rt.logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}

// buildQueue returns the behavior event queue, or nil when events are only
// ingested synchronously over HTTP.
func (rt *Runtime) buildQueue(ctx context.Context) (ingest.Queue, error) {
	if rt.Config.UseMemoryQueue {
		return ingest.NewMemoryQueue(0), nil
	}
	if rt.Config.EventQueueURL == "" {
		return nil, nil
	}
	awsCfg, err := rt.aws.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ingest.NewSQSQueue(sqs.NewFromConfig(awsCfg), rt.Config.EventQueueURL), nil
}
