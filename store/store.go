package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/backoff"
	"github.com/xraph/docstore/middleware"
	"github.com/xraph/docstore/store/memory"
	"github.com/xraph/docstore/store/mongo"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	extra    []middleware.Middleware
	strategy backoff.Strategy
}

// WithLogger sets the logger handed to the backend and the logging
// middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRetryStrategy sets the delay between connection attempts.
func WithRetryStrategy(s backoff.Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithMiddleware appends middleware after the built-in ones.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) {
		o.extra = append(o.extra, mws...)
	}
}

// Open validates cfg, builds the backend it names, connects it and returns it
// wrapped in middleware.
func Open(ctx context.Context, cfg docstore.Config, opts ...Option) (docstore.Store, error) {
	o := options{logger: slog.Default(), strategy: backoff.DefaultStrategy()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var backend docstore.Store
	switch cfg.Backend {
	case docstore.BackendMemory:
		membership := memory.MembershipExcludes
		if cfg.Membership == memory.MembershipIncludes.String() {
			membership = memory.MembershipIncludes
		}
		backend = memory.New(
			memory.WithMembership(membership),
			memory.WithDatabaseName(cfg.DatabaseName),
		)
	case docstore.BackendMongo:
		backend = mongo.New(cfg.ConnectionString, cfg.DatabaseName, mongo.WithLogger(o.logger))
	default:
		return nil, fmt.Errorf("docstore: unknown backend %q", cfg.Backend)
	}

	if err := backoff.Retry(ctx, o.strategy, cfg.ConnectAttempts, func(ctx context.Context) error {
		return connect(ctx, backend, cfg.OperationTimeout, o.logger)
	}); err != nil {
		return nil, err
	}

	o.logger.Info("docstore: store opened",
		slog.String("backend", cfg.Backend),
		slog.String("database", backend.DatabaseName()),
	)
	return middleware.Instrument(backend, Middleware(cfg, o.logger, o.extra...)...), nil
}

// connect opens backend and, when it can, pings it so an unreachable server
// fails here instead of on the first request.
func connect(ctx context.Context, backend docstore.Store, timeout time.Duration, logger *slog.Logger) error {
	if err := backend.Connect(ctx); err != nil {
		logger.Warn("docstore: connect failed", slog.String("error", err.Error()))
		return err
	}
	p, ok := backend.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.Ping(ctx); err != nil {
		logger.Warn("docstore: ping failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Middleware returns the chain Open installs for cfg, outermost first.
func Middleware(cfg docstore.Config, logger *slog.Logger, extra ...middleware.Middleware) []middleware.Middleware {
	mws := []middleware.Middleware{
		middleware.Logging(logger),
		middleware.Recover(logger),
	}
	if cfg.Tracing {
		mws = append(mws, middleware.Tracing())
	}
	if cfg.Metrics {
		mws = append(mws, middleware.Metrics())
	}
	if cfg.OperationTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.OperationTimeout))
	}
	return append(mws, extra...)
}

// Unwrap strips every decorator added by middleware.Instrument and returns
// the backend underneath, e.g. to reach *mongo.Store for EnsureIndexes.
func Unwrap(s docstore.Store) docstore.Store {
	for {
		u, ok := s.(interface{ Unwrap() docstore.Store })
		if !ok {
			return s
		}
		s = u.Unwrap()
	}
}
