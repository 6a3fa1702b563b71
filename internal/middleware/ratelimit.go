package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	apierrors "authorkit/internal/errors"
	"authorkit/internal/ratelimit"
)

// RateLimit applies a fixed-window limit to one endpoint bucket, keyed
// by client IP. Distinct buckets hold independent counters for the
// same client.
func RateLimit(limiter *ratelimit.Limiter, bucket string, limit ratelimit.Limit, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			decision, err := limiter.Check(ctx, ClientIP(r), bucket, limit)
			if err != nil {
				// A broken store must not take the API down; log and
				// let the request through.
				logger.ErrorContext(ctx, "rate limit check failed",
					slog.String("bucket", bucket),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				logger.WarnContext(ctx, "rate limit exceeded",
					slog.String("bucket", bucket),
					slog.String("client_ip", ClientIP(r)),
					slog.Int("retry_after", decision.RetryAfterSeconds()),
				)
				render.Render(w, r, apierrors.NewErrorResponse(
					apierrors.RateLimited(decision.RetryAfterSeconds())))
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
