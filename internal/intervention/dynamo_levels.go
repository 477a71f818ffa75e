package intervention

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/trust-engine/internal/trust"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type levelItem struct {
	ActorID   string `dynamodbav:"actorId"`
	RiskLevel string `dynamodbav:"riskLevel"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

// DynamoLevelStore keeps the last dispatched level per actor in a DynamoDB
// table with partition key "actorId". Used when several API/worker
// processes share dispatch state without a shared Redis.
type DynamoLevelStore struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoLevelStore(client *dynamodb.Client, tableName string) *DynamoLevelStore {
	if client == nil {
		panic("intervention: dynamodb client cannot be nil")
	}
	return newDynamoLevelStore(client, tableName)
}

func newDynamoLevelStore(client dynamoAPI, tableName string) *DynamoLevelStore {
	if tableName == "" {
		panic("intervention: table name cannot be empty")
	}
	return &DynamoLevelStore{client: client, tableName: tableName}
}

func (s *DynamoLevelStore) Get(ctx context.Context, actorID string) (trust.RiskLevel, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            map[string]types.AttributeValue{"actorId": &types.AttributeValueMemberS{Value: actorID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("intervention: get level item: %w", err)
	}
	if len(out.Item) == 0 {
		return "", false, nil
	}
	var item levelItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", false, fmt.Errorf("intervention: decode level item: %w", err)
	}
	level, err := trust.ParseRiskLevel(item.RiskLevel)
	if err != nil {
		return "", false, fmt.Errorf("intervention: stored level: %w", err)
	}
	return level, true, nil
}

func (s *DynamoLevelStore) Set(ctx context.Context, actorID string, level trust.RiskLevel) error {
	av, err := attributevalue.MarshalMap(levelItem{
		ActorID:   actorID,
		RiskLevel: string(level),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("intervention: encode level item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("intervention: put level item: %w", err)
	}
	return nil
}
