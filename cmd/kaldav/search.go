package main

import (
	"context"
	"fmt"

	"github.com/emersion/go-ical"
	"github.com/spf13/cobra"

	"github.com/kaldav/go-kaldav/caldav"
)

type listFunc func(c *caldav.Client, ctx context.Context, calendar string) ([]string, error)

var (
	caldavObjects listFunc = (*caldav.Client).Objects
	caldavEvents  listFunc = (*caldav.Client).Events
	caldavTasks   listFunc = (*caldav.Client).Tasks
)

type objectInfo struct {
	Path      string `json:"path"`
	ETag      string `json:"etag,omitempty"`
	Component string `json:"component,omitempty"`
	UID       string `json:"uid,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

func newObjectInfo(co *caldav.CalendarObject) objectInfo {
	info := objectInfo{Path: co.Path, ETag: co.ETag}
	if co.Data == nil {
		return info
	}

	for _, child := range co.Data.Children {
		if child.Name == ical.CompTimezone {
			continue
		}
		info.Component = child.Name
		if prop := child.Props.Get(ical.PropUID); prop != nil {
			info.UID = prop.Value
		}
		if prop := child.Props.Get(ical.PropSummary); prop != nil {
			info.Summary = prop.Value
		}
		break
	}

	return info
}

func printPaths(cmd *cobra.Command, output string, paths []string) error {
	w := cmd.OutOrStdout()
	if output == outputJSON {
		if paths == nil {
			paths = []string{}
		}
		return writeJSON(w, paths)
	}

	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	return nil
}

func newSearchCommand(opts *options) *cobra.Command {
	var (
		flags  filterFlags
		data   bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "search [calendar] <expression>",
		Short: "Search a calendar with a filter expression",
		Long: `Search a calendar with a filter expression.

The calendar defaults to the "calendar" configuration key. Without --data only
the paths of matching objects are printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			calendar, err := opts.calendar(args[:len(args)-1])
			if err != nil {
				return err
			}

			f, err := flags.compile(cmd, args[len(args)-1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := opts.client(ctx)
			if err != nil {
				return err
			}

			opts.logger.WithField("calendar", calendar).Debugf("Searching with filter %v", f.ToXML())

			if !data {
				paths, err := c.Search(ctx, calendar, f)
				if err != nil {
					return err
				}
				return printPaths(cmd, output, paths)
			}

			objs, err := c.QueryCalendar(ctx, calendar, f)
			if err != nil {
				return err
			}

			infos := make([]objectInfo, 0, len(objs))
			for i := range objs {
				infos = append(infos, newObjectInfo(&objs[i]))
			}

			w := cmd.OutOrStdout()
			if output == outputJSON {
				return writeJSON(w, infos)
			}
			for _, info := range infos {
				fmt.Fprintf(w, "%-48s %-10s %s\n", info.Path, info.Component, info.Summary)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&data, "data", false, "fetch the matching objects and print their summary")
	addOutputFlag(cmd, &output)

	return cmd
}

func newListCommand(opts *options, use, short string, list listFunc) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   use + " [calendar]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			calendar, err := opts.calendar(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := opts.client(ctx)
			if err != nil {
				return err
			}

			paths, err := list(c, ctx, calendar)
			if err != nil {
				return err
			}
			return printPaths(cmd, output, paths)
		},
	}
	addOutputFlag(cmd, &output)

	return cmd
}
