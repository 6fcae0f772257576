package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New(Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestEmptyKeyRejected(t *testing.T) {
	c := &Cache{client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})}
	defer c.Close()
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, c.GetJSON(ctx, "", &dest), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.SetJSON(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
}
