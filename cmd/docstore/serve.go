package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/api"
	"github.com/xraph/docstore/store"
	"github.com/xraph/docstore/store/mongo"
)

var (
	listenAddr      string
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the blog API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cmd.ErrOrStderr(), cfg)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Grace period for in-flight requests")
}

func serve(ctx context.Context, cfg docstore.Config, logger *slog.Logger) error {
	s, err := store.Open(ctx, cfg, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("docstore: shutdown store", slog.String("error", err.Error()))
		}
	}()

	if err := ensureIndexes(ctx, s); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           api.New(s, api.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docstore: listening", slog.String("addr", listenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("docstore: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ensureIndexes creates the unique username index when running on MongoDB.
// The memory backend has no indexes; the API checks uniqueness itself.
func ensureIndexes(ctx context.Context, s docstore.Store) error {
	m, ok := store.Unwrap(s).(*mongo.Store)
	if !ok {
		return nil
	}
	return m.EnsureIndexes(ctx, map[string][]mongod.IndexModel{
		api.User{}.Collection(): {mongo.UniqueIndex("username")},
	})
}
