package mainconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/trust-engine/internal/config"
)

func TestLoadAWSConfig_StaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{AWSRegion: "eu-west-1", AWSAccessKeyID: "AKIDTEST", AWSSecretAccessKey: "secret"}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDTEST", creds.AccessKeyID)
	assert.Nil(t, awsCfg.EndpointResolverWithOptions)
}

func TestLoadAWSConfig_EndpointOverride(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, awsCfg.EndpointResolverWithOptions)

	for _, service := range []string{sqs.ServiceID, dynamodb.ServiceID, sesv2.ServiceID} {
		ep, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(service, "us-east-1")
		require.NoError(t, err, service)
		assert.Equal(t, "http://localhost:4566", ep.URL)
		assert.Equal(t, "us-east-1", ep.SigningRegion)
	}

	_, err = awsCfg.EndpointResolverWithOptions.ResolveEndpoint("S3", "us-east-1")
	var notFound *aws.EndpointNotFoundError
	assert.True(t, errors.As(err, &notFound))
}
