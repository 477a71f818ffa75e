package intervention

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/trust-engine/internal/notify"
	"github.com/wolfman30/trust-engine/internal/trust"
)

func sampleEntry(actions ...Action) LogEntry {
	return LogEntry{
		ID:                 "entry-1",
		ActorID:            "a1",
		RiskLevelAtTrigger: trust.RiskCriticalIntervention,
		PreviousLevel:      trust.RiskDeveloping,
		TrustScore:         210,
		SusScore:           100,
		Actions:            actions,
		Timestamp:          time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_PublishesJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	sub := client.Subscribe(ctx, "trust.interventions")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client, "")
	require.NoError(t, pub.Notify(ctx, sampleEntry(ActionAlertOperators)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got LogEntry
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "entry-1", got.ID)
	assert.Equal(t, []Action{ActionAlertOperators}, got.Actions)
}

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSNotifier(t *testing.T) {
	fake := &fakeSQS{}
	n := newSQSNotifier(fake, "https://sqs.local/interventions")
	require.NoError(t, n.Notify(context.Background(), sampleEntry(ActionMandatoryCooldown)))

	assert.Equal(t, "https://sqs.local/interventions", aws.ToString(fake.input.QueueUrl))
	assert.Equal(t, "CRITICAL_INTERVENTION", aws.ToString(fake.input.MessageAttributes["risk_level"].StringValue))
	var got LogEntry
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(fake.input.MessageBody)), &got))
	assert.Equal(t, "a1", got.ActorID)

	fake.err = errors.New("throttled")
	assert.Error(t, n.Notify(context.Background(), sampleEntry()))
}

type recordingAlerter struct {
	alerts []notify.Alert
}

func (r *recordingAlerter) NotifyEscalation(_ context.Context, alert notify.Alert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func TestOperatorNotifier_OnlyForOperatorAlerts(t *testing.T) {
	alerter := &recordingAlerter{}
	n := NewOperatorNotifier(alerter)
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, sampleEntry(ActionSuggestLimits)))
	assert.Empty(t, alerter.alerts)

	require.NoError(t, n.Notify(ctx, sampleEntry(ActionDisableRiskActions, ActionAlertOperators)))
	require.Len(t, alerter.alerts, 1)
	alert := alerter.alerts[0]
	assert.Equal(t, "CRITICAL_INTERVENTION", alert.RiskLevel)
	assert.Equal(t, "DEVELOPING", alert.PreviousLevel)
	assert.Equal(t, []string{"disable_risk_actions", "alert_operators"}, alert.Actions)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.Notify(context.Background(), sampleEntry(ActionPassiveReminder)))
}
