// README: Redis test helper gated on FIXIT_TEST_REDIS_ADDR; purges the test key prefix.
package testkit

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// Redis returns a client on FIXIT_TEST_REDIS_ADDR, skipping the test when unset.
// Keys with the given prefix are removed before and after the test.
func Redis(t *testing.T, keyPrefix string) *redis.Client {
	t.Helper()

	addr := os.Getenv("FIXIT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FIXIT_TEST_REDIS_ADDR not set; skipping Redis-backed tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("ping redis: %v", err)
	}
	purge := func() {
		iter := client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	purge()
	t.Cleanup(func() {
		purge()
		_ = client.Close()
	})
	return client
}
