package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/codelens/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	Long: `Start the HTTP server for the review API.
By default it listens on port 5000 and mounts review routes under /api.
Use --port to change the port. SIGINT/SIGTERM trigger a graceful shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()
		return serveRun(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 5000, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

// newHTTPServer builds the API server from config.
func newHTTPServer(ctx context.Context) (*http.Server, error) {
	svc, err := newReviewService(ctx)
	if err != nil {
		return nil, err
	}
	verifier, err := newVerifier(ctx)
	if err != nil {
		return nil, err
	}

	apiSrv := api.NewServer(svc, verifier, logger, api.Options{
		BasePath:     viper.GetString("server.base_path"),
		MaxBodyBytes: viper.GetInt64("server.max_body_bytes"),
		CORSOrigin:   viper.GetString("server.cors_origin"),
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("port")),
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func serveRun(ctx context.Context) error {
	srv, err := newHTTPServer(ctx)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return serveUntilDone(ctx, srv, ln, viper.GetDuration("server.shutdown_timeout"))
}

// serveUntilDone serves on ln until ctx is cancelled, then shuts srv down,
// waiting at most timeout for in-flight requests.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", timeout))
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
