package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kaldav/go-kaldav/caldav"
	"github.com/kaldav/go-kaldav/config"
	"github.com/kaldav/go-kaldav/filter/dsl"
)

// options carries the global flags and the state derived from them once the
// configuration is loaded.
type options struct {
	configFile string
	logLevel   string
	serverURL  string

	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "kaldav",
		Short:         "Query and manage CalDAV calendars",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: config.yaml in ., $HOME/.kaldav or /etc/kaldav)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides log.level")
	flags.StringVar(&opts.serverURL, "server", "", "CalDAV server URL, overrides server.url")

	cmd.AddCommand(
		newFilterCommand(),
		newDiscoverCommand(opts),
		newCalendarsCommand(opts),
		newSearchCommand(opts),
		newListCommand(opts, "objects", "List all calendar objects", caldavObjects),
		newListCommand(opts, "events", "List the events of a calendar", caldavEvents),
		newListCommand(opts, "tasks", "List the tasks of a calendar", caldavTasks),
		newMkcalendarCommand(opts),
		newServeCommand(opts),
	)

	return cmd
}

func (o *options) load(stderr io.Writer) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if _, err := logrus.ParseLevel(o.logLevel); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	if o.serverURL != "" {
		cfg.Server.URL = o.serverURL
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: !isTerminal(stderr),
	})
	logger.SetLevel(cfg.LogLevel())

	o.cfg = cfg
	o.logger = logger

	return nil
}

func (o *options) client(ctx context.Context) (*caldav.Client, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	hc, err := o.cfg.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}

	c, err := caldav.NewClient(hc, o.cfg.Server.URL)
	if err != nil {
		return nil, err
	}
	c.SetLogger(o.logger)

	return c, nil
}

// calendar returns the calendar named on the command line, or the configured
// default one.
func (o *options) calendar(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if o.cfg.Calendar != "" {
		return o.cfg.Calendar, nil
	}
	return "", fmt.Errorf("no calendar given and no default calendar configured")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// reportError prints err to w. Filter parse errors are shown with the
// offending source line.
func reportError(w io.Writer, err error) {
	var parseErr *dsl.ParseError
	if errors.As(err, &parseErr) {
		fmt.Fprint(w, dsl.FormatDiagnostic(parseErr, isTerminal(w)))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
