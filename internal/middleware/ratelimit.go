package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimit returns middleware enforcing a fixed-window request limit per
// owner identity (falling back to client IP) on the routes it wraps.  The
// counter lives in Redis so the limit holds across instances.  With a nil
// client, or when Redis is unreachable, requests pass through; the
// limiter protects against hoarding, it is not a security boundary.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rdb == nil || limit <= 0 {
				return next(c)
			}
			id := OwnerID(c)
			if id == "" {
				id = c.RealIP()
			}
			key := fmt.Sprintf("ratelimit:%s:%d", id, time.Now().Unix()/int64(window.Seconds()))

			ctx := c.Request().Context()
			n, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				return next(c)
			}
			if n == 1 {
				rdb.Expire(ctx, key, window)
			}
			if n > int64(limit) {
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded, slow down"})
			}
			return next(c)
		}
	}
}
