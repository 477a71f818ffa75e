package intervention

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/trust-engine/internal/trust"
)

func TestRedisLevelStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisLevelStore(client, "")
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "a1", trust.RiskHigh))
	level, ok, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, trust.RiskHigh, level)
	assert.Equal(t, "HIGH_RISK", mr.HGet("trust:intervention_levels", "a1"))

	mr.HSet("trust:intervention_levels", "a2", "SOMETHING_ELSE")
	_, _, err = store.Get(ctx, "a2")
	assert.Error(t, err)
}

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	id := in.Item["actorId"].(*types.AttributeValueMemberS).Value
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := in.Key["actorId"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func TestDynamoLevelStore(t *testing.T) {
	fake := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	store := newDynamoLevelStore(fake, "intervention-levels")
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "a1", trust.RiskCriticalIntervention))
	level, ok, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, trust.RiskCriticalIntervention, level)

	var item levelItem
	require.NoError(t, attributevalue.UnmarshalMap(fake.items["a1"], &item))
	assert.Equal(t, "a1", item.ActorID)
	assert.NotEmpty(t, item.UpdatedAt)
}

func TestNewDynamoLevelStore_RequiresTable(t *testing.T) {
	assert.Panics(t, func() { newDynamoLevelStore(&fakeDynamo{}, "") })
}
