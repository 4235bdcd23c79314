// Package store opens a configured docstore.Store.
//
// It is the one place that knows every backend:
//
//   - store/memory: in-memory store for development and testing
//   - store/mongo: MongoDB backend on the official driver
//
// # Usage
//
//	cfg := docstore.DefaultConfig()
//	cfg.ApplyEnv(os.LookupEnv)
//
//	s, err := store.Open(ctx, cfg, store.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Shutdown(ctx)
//
// Open validates the config, connects the backend, and wraps it in the
// middleware the config asks for: logging and panic recovery always, plus
// a per-call timeout, tracing and metrics when enabled.
package store
