package s3backend

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anonymousConfig returns an aws.Config good enough to presign a URL
// without ever making a network call: PresignGetObject only signs a
// request locally, it never dials the service.
func anonymousConfig() aws.Config {
	return aws.Config{
		Region:      "us-east-1",
		Credentials: aws.AnonymousCredentials{},
	}
}

func TestGenReadURLProducesAPresignedURLWithoutNetworkAccess(t *testing.T) {
	b := New(anonymousConfig(), "my-bucket")

	url, err := b.GenReadURL(context.Background(), "path/to/file.bin", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "my-bucket")
	assert.Contains(t, url, "path/to/file.bin")
}

func TestNewBuildsAClientBoundToTheGivenBucket(t *testing.T) {
	b := New(anonymousConfig(), "my-bucket")
	assert.Equal(t, "my-bucket", b.bucket)
	assert.NotNil(t, b.client)
	assert.NotNil(t, b.presign)
}
