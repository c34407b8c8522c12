package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kaldav/go-kaldav/caldav"
	"github.com/kaldav/go-kaldav/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	var flags config.Serve

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory CalDAV server",
		Long: `Run an in-memory CalDAV server.

With --dir, each subdirectory of the directory is imported as a calendar and
the .ics files it holds as calendar objects. Changes are not written back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serve := opts.cfg.Serve
			if cmd.Flags().Changed("addr") {
				serve.Addr = flags.Addr
			}
			if cmd.Flags().Changed("principal") {
				serve.Principal = flags.Principal
			}
			if cmd.Flags().Changed("dir") {
				serve.Dir = flags.Dir
			}

			ctx := cmd.Context()
			handler, err := newServeHandler(ctx, serve, opts.logger)
			if err != nil {
				return err
			}

			return listenAndServe(ctx, &http.Server{Addr: serve.Addr, Handler: handler}, opts.logger)
		},
	}

	cmd.Flags().StringVar(&flags.Addr, "addr", "", "listening address (default: serve.addr)")
	cmd.Flags().StringVar(&flags.Principal, "principal", "", "path of the user principal (default: serve.principal)")
	cmd.Flags().StringVar(&flags.Dir, "dir", "", "directory of calendars to import")

	return cmd
}

func newServeHandler(ctx context.Context, serve config.Serve, logger logrus.FieldLogger) (*caldav.Handler, error) {
	principal := serve.Principal
	if !strings.HasPrefix(principal, "/") {
		principal = "/" + principal
	}
	if !strings.HasSuffix(principal, "/") {
		principal += "/"
	}

	backend := caldav.NewMemoryBackend(principal)
	if serve.Dir != "" {
		if err := caldav.LocalDirectory(serve.Dir).Import(ctx, backend, logger); err != nil {
			return nil, err
		}
	}

	return &caldav.Handler{Backend: backend, Logger: logger}, nil
}

// listenAndServe runs srv until ctx is done, then shuts it down gracefully.
func listenAndServe(ctx context.Context, srv *http.Server, logger logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("CalDAV server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
