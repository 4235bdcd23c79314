// Package middleware provides composable middleware around store operations.
//
// A [Middleware] wraps one call on a docstore.Store. Middleware are composed
// into a chain using [Chain] and attached to a store with [Instrument]. They
// are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → store
//	s := middleware.Instrument(store,
//	    middleware.Logging(logger),
//	    middleware.Recover(logger),
//	)
//
// # Built-in Middleware
//
//   - [Logging] logs operation name, collection, duration, and outcome
//   - [Recover] catches panics in the backend and converts them to errors
//   - [Timeout] bounds each operation with a deadline
//   - [Tracing] wraps each operation in an OpenTelemetry span
//   - [Metrics] records per-operation duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, op middleware.Op, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
