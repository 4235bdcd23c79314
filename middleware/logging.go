package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs every store operation. Successful
// calls are logged at debug level, failures at error level.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op Op, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		attrs := []any{
			slog.String("op", op.Name),
			slog.String("collection", op.Collection),
			slog.Duration("elapsed", elapsed),
		}
		if op.Tx != nil {
			attrs = append(attrs, slog.String("tx", op.Tx.ID().String()))
		}

		if err != nil {
			logger.ErrorContext(ctx, "store operation failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			logger.DebugContext(ctx, "store operation completed", attrs...)
		}

		return err
	}
}
