package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotenceHeader = "x-idempotence"
	idempotenceTTL    = 60 * time.Second
)

// idempotenceStore is the slice of redis the middleware needs; tests
// substitute a fake.
type idempotenceStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Idempotence rejects a repeated non-GET request carrying the same
// x-idempotence key within 60 seconds of a successful one. Requests
// without the header pass through untouched.
func Idempotence(rdb *redis.Client) gin.HandlerFunc {
	return idempotence(rdb)
}

func idempotence(store idempotenceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		key := c.GetHeader(idempotenceHeader)
		if key == "" {
			c.Next()
			return
		}

		redisKey := fmt.Sprintf("sc:idempotence:%s", key)
		ctx := c.Request.Context()

		val, err := store.Get(ctx, redisKey).Result()
		if err == nil {
			msg := "identical request already succeeded within the last 60 seconds"
			if val == "0" {
				msg = "identical request is still being processed"
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"ok":      0,
				"code":    http.StatusConflict,
				"message": msg,
			})
			return
		}
		if !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}

		if setErr := store.Set(ctx, redisKey, "0", idempotenceTTL).Err(); setErr != nil {
			c.Next()
			return
		}

		c.Next()

		// The request context may already be canceled here when the
		// client disconnected mid-request. The completion marker must
		// still be written, or the in-flight "0" would pin the key for
		// the full TTL.
		done := context.Background()
		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			store.Set(done, redisKey, "1", redis.KeepTTL)
		} else {
			store.Del(done, redisKey)
		}
	}
}
