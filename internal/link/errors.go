package link

import (
	"context"

	"go.uber.org/zap"

	"github.com/andrewwphillips/eggclient/internal/metrics"
	"github.com/andrewwphillips/eggclient/internal/operation"
)

// ErrorObserver returns middleware that logs the failures in every result passing back
// through it. Results are passed on exactly as received, including those with failures.
func ErrorObserver(log *zap.Logger, m *metrics.Metrics) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, op *operation.Operation) <-chan *operation.Result {
			in := next.Execute(ctx, op)
			out := make(chan *operation.Result)
			go func() {
				defer close(out)
				for r := range in {
					if r.HasFailures() {
						logFailures(log, m, op, r)
					}
					select {
					case out <- r:
					case <-ctx.Done():
						return
					}
				}
			}()
			return out
		})
	}
}

func logFailures(log *zap.Logger, m *metrics.Metrics, op *operation.Operation, r *operation.Result) {
	log = log.With(
		zap.String("operation", op.Name),
		zap.Stringer("kind", op.Kind),
	)
	if subject := TokenSubject(op.Headers.Get(HeaderName)); subject != "" {
		log = log.With(zap.String("subject", subject))
	}

	for _, e := range r.Errors {
		fields := []zap.Field{zap.String("message", e.Message)}
		if len(e.Locations) > 0 {
			fields = append(fields, zap.Any("locations", e.Locations))
		}
		if len(e.Path) > 0 {
			fields = append(fields, zap.Stringer("path", e.Path))
		}
		log.Warn("GraphQL error", fields...)
	}
	if len(r.Errors) > 0 {
		m.Failure(metrics.KindGraphQL)
	}

	if r.NetworkError != nil {
		log.Warn("network error", zap.Error(r.NetworkError))
		m.Failure(metrics.KindNetwork)
	}
}
