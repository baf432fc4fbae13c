package http

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiterMiddleware limits requests per client with a sliding window kept
// in a Redis sorted set. Clients are keyed by JWT subject, else by IP. Redis
// errors let the request through.
func RateLimiterMiddleware(rdb redis.UniversalClient, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ratelimit:" + clientKey(r)
			now := time.Now().UnixNano()
			windowStart := now - window.Nanoseconds()

			var card *redis.IntCmd
			_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
				pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: uuid.NewString()})
				card = pipe.ZCard(ctx, key)
				pipe.PExpire(ctx, key, window)
				return nil
			})
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count := card.Val(); int(count) > limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeJSONError(w, "Too Many Requests", http.StatusTooManyRequests, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if sub := SubjectFromContext(r.Context()); sub != "" {
		return "sub:" + sub
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return fmt.Sprintf("ip:%s", ip)
}
