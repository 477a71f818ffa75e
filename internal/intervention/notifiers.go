package intervention

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/trust-engine/internal/notify"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

// LogNotifier writes dispatches to the structured log. Always on.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, entry LogEntry) error {
	n.logger.WithActor(entry.ActorID).Info("intervention actions",
		"risk_level", entry.RiskLevelAtTrigger,
		"actions", entry.Actions,
		"entry_id", entry.ID,
	)
	return nil
}

// RedisPublisher publishes entries as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if client == nil {
		panic("intervention: redis client required")
	}
	if channel == "" {
		channel = "trust.interventions"
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Notify(ctx context.Context, entry LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("intervention: marshal entry: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("intervention: publish: %w", err)
	}
	return nil
}

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier enqueues entries for downstream consumers (the command layer
// that actually disables actions, starts cooldowns, and so on).
type SQSNotifier struct {
	client   sqsSender
	queueURL string
}

func NewSQSNotifier(client *sqs.Client, queueURL string) *SQSNotifier {
	if client == nil {
		panic("intervention: SQS client cannot be nil")
	}
	return newSQSNotifier(client, queueURL)
}

func newSQSNotifier(client sqsSender, queueURL string) *SQSNotifier {
	if queueURL == "" {
		panic("intervention: SQS queueURL cannot be empty")
	}
	return &SQSNotifier{client: client, queueURL: queueURL}
}

func (n *SQSNotifier) Name() string { return "sqs" }

func (n *SQSNotifier) Notify(ctx context.Context, entry LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("intervention: marshal entry: %w", err)
	}
	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"risk_level": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(entry.RiskLevelAtTrigger)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("intervention: failed to send SQS message: %w", err)
	}
	return nil
}

type operatorAlerter interface {
	NotifyEscalation(ctx context.Context, alert notify.Alert) error
}

// OperatorNotifier emails operators, but only for entries that include
// ActionAlertOperators.
type OperatorNotifier struct {
	alerts operatorAlerter
}

func NewOperatorNotifier(alerts operatorAlerter) *OperatorNotifier {
	if alerts == nil {
		panic("intervention: operator alert service required")
	}
	return &OperatorNotifier{alerts: alerts}
}

func (n *OperatorNotifier) Name() string { return "email" }

func (n *OperatorNotifier) Notify(ctx context.Context, entry LogEntry) error {
	if !entry.HasAction(ActionAlertOperators) {
		return nil
	}
	return n.alerts.NotifyEscalation(ctx, notify.Alert{
		EntryID:       entry.ID,
		ActorID:       entry.ActorID,
		RiskLevel:     string(entry.RiskLevelAtTrigger),
		PreviousLevel: string(entry.PreviousLevel),
		TrustScore:    entry.TrustScore,
		SusScore:      entry.SusScore,
		Actions:       actionStrings(entry.Actions),
		TriggeredAt:   entry.Timestamp,
	})
}
