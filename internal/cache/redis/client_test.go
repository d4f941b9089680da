package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj-status/forecaster/internal/artifact"
)

var _ artifact.Cache = (*Client)(nil)

func TestCacheKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "artifact:metrics/relax/2023-05-12_2023-05-13.json", cacheKey("metrics/relax/2023-05-12_2023-05-13.json"))
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, "127.0.0.1", 1, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}
