package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaldav/go-kaldav/filter"
	"github.com/kaldav/go-kaldav/filter/dsl"
)

// filterFlags are shared by the commands that evaluate an expression.
type filterFlags struct {
	vars map[string]string
	now  string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringToStringVar(&f.vars, "var", nil, "define a variable, e.g. --var start=2024-01-01T00:00:00Z (RFC 3339 values become times)")
	cmd.Flags().StringVar(&f.now, "now", "", "RFC 3339 time returned by time::now()")
}

func (f *filterFlags) options() ([]dsl.Option, error) {
	var opts []dsl.Option

	for name, value := range f.vars {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			opts = append(opts, dsl.WithVar(name, t))
		} else {
			opts = append(opts, dsl.WithVar(name, value))
		}
	}

	if f.now != "" {
		now, err := time.Parse(time.RFC3339, f.now)
		if err != nil {
			return nil, fmt.Errorf("invalid --now: %w", err)
		}
		opts = append(opts, dsl.WithClock(func() time.Time { return now }))
	}

	return opts, nil
}

func (f *filterFlags) compile(cmd *cobra.Command, arg string) (filter.Filter, error) {
	query, err := readExpression(cmd, arg)
	if err != nil {
		return filter.Filter{}, err
	}

	opts, err := f.options()
	if err != nil {
		return filter.Filter{}, err
	}

	return dsl.Compile(query, opts...)
}

// readExpression returns arg, or standard input when arg is "-".
func readExpression(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}

	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read filter from stdin: %w", err)
	}
	return string(b), nil
}

func newFilterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Compile filter expressions",
		Long: `Compile filter expressions.

An expression describes a CalDAV calendar-query filter, for example:

  CompFilter::new("VCALENDAR") {
      CompFilter::new("VEVENT") {
          time_range: TimeRange { start: time::now(), end: None },
      }
  }

Pass "-" instead of an expression to read it from standard input.`,
	}

	cmd.AddCommand(
		newFilterRenderCommand(),
		newFilterCheckCommand(),
		newFilterGenCommand(),
	)

	return cmd
}

func newFilterRenderCommand() *cobra.Command {
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "render <expression>",
		Short: "Print the calendar-query XML of an expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flags.compile(cmd, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), f.ToXML())
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}

func newFilterCheckCommand() *cobra.Command {
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "check <expression>",
		Short: "Check that an expression compiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := flags.compile(cmd, args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}

func newFilterGenCommand() *cobra.Command {
	var (
		pkg    string
		name   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "gen <expression>",
		Short: "Translate an expression into Go builder calls",
		Long: `Translate an expression into Go builder calls.

Without --func, only the Go expression is printed. With --func, a complete
gofmt'ed source file declaring that function is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readExpression(cmd, args[0])
			if err != nil {
				return err
			}

			expr, err := dsl.Parse(query)
			if err != nil {
				return err
			}

			var src []byte
			if name == "" {
				s, err := dsl.Generate(expr)
				if err != nil {
					return err
				}
				src = []byte(s + "\n")
			} else {
				src, err = dsl.GenerateFile(pkg, name, expr)
				if err != nil {
					return err
				}
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(src)
				return err
			}
			if err := os.WriteFile(output, src, 0o644); err != nil {
				return fmt.Errorf("failed to write %v: %w", output, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pkg, "package", "main", "package of the generated file")
	cmd.Flags().StringVar(&name, "func", "", "name of the generated function")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of standard output")

	return cmd
}
