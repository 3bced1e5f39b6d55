package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go-leave/internal/shared/apperror"
	"go-leave/internal/shared/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyLockTTL   = 30 * time.Second
	idempotencyReplayTTL = 24 * time.Hour
)

type idempotencyRecord struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a mutating request carries
// an Idempotency-Key the caller already used on the same route. A short
// lock guards the first attempt, so a double-submit while the original is
// still in flight gets a conflict instead of a second execution. Requests
// without a key, or without a caller identity, pass through untouched.
func Idempotency(rdb *redis.Client) gin.HandlerFunc {
	log := zap.L().Named("middleware.idempotency")

	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut {
			c.Next()
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		employeeID := c.GetString("employee_id")
		if idempKey == "" || employeeID == "" {
			c.Next()
			return
		}

		cacheKey := fmt.Sprintf("idemp:%s:%s:%s", c.FullPath(), employeeID, idempKey)
		lockKey := cacheKey + ":lock"
		ctx := c.Request.Context()

		if val, err := rdb.Get(ctx, cacheKey).Result(); err == nil {
			var rec idempotencyRecord
			if json.Unmarshal([]byte(val), &rec) == nil {
				log.Info("replaying idempotent response",
					zap.String("key", cacheKey),
					zap.Int("status", rec.Status),
				)
				c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
				c.Abort()
				return
			}
		}

		isNew, err := rdb.SetNX(ctx, lockKey, "locked", idempotencyLockTTL).Result()
		if err != nil {
			// Redis trouble must not block the request itself.
			log.Error("idempotency lock failed", zap.String("key", lockKey), zap.Error(err))
			c.Next()
			return
		}
		if !isNew {
			response.Error(c, http.StatusConflict, apperror.CodeConflict,
				"request with this idempotency key is still being processed", nil)
			c.Abort()
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			rec, err := json.Marshal(idempotencyRecord{
				Status: status,
				Body:   writer.body.Bytes(),
			})
			if err == nil {
				if err := rdb.Set(ctx, cacheKey, rec, idempotencyReplayTTL).Err(); err != nil {
					log.Error("store idempotent response failed", zap.String("key", cacheKey), zap.Error(err))
				}
			}
		}

		// Failed attempts release the lock so the caller can retry.
		if err := rdb.Del(ctx, lockKey).Err(); err != nil {
			log.Error("release idempotency lock failed", zap.String("key", lockKey), zap.Error(err))
		}
	}
}
