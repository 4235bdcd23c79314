package middleware

import (
	"context"

	"github.com/xraph/docstore"
)

// Op describes the store operation being executed.
type Op struct {
	// Name is the operation, e.g. "find_one" or "commit".
	Name string

	// Collection is empty for operations that are not collection-scoped.
	Collection string

	// Tx is the transaction the operation runs in, or nil.
	Tx *docstore.Tx
}

// InTx reports whether the operation runs inside a transaction.
func (o Op) InTx() bool { return o.Tx != nil }

// Handler is the terminal function that performs the store call.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the operation being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, op Op, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tracing) executes as:
//
//	logging → recover → tracing → store
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, op Op, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, op, prev)
			}
		}
		return h(ctx)
	}
}
