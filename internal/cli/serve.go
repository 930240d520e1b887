package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync HTTP server",
		Long: `Run the sync HTTP server until SIGINT or SIGTERM.

The store schema is applied on start. Notifications, the outcome cache and
metrics are wired from the configuration file and LAUNDRYSYNC_* variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	logger := setupLogging(cfg, opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return runtimeError(KindServer, "failed to listen", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", ln.Addr())

	if err := a.serve(ctx, ln); err != nil {
		return runtimeError(KindServer, "server stopped", err)
	}
	return nil
}

// handler builds the HTTP handler from the app's services and config.
func (a *app) handler() http.Handler {
	cfg := a.cfg
	opts := []httpapi.Option{httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes)}
	if a.metrics != nil {
		opts = append(opts, httpapi.WithMetrics(a.metrics, cfg.Metrics.Path))
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		opts = append(opts, httpapi.WithRateLimit(httpapi.NewRateLimiter(rl.RequestsPerSecond, rl.Burst, a.metrics)))
	}
	return httpapi.New(a.intake, a.feed, a.store, opts...).Handler()
}

// serve runs the HTTP server on ln until ctx is done, then drains
// in-flight requests for up to server.shutdown_timeout.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	cfg := a.cfg.Server
	srv := &http.Server{
		Handler:      a.handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
