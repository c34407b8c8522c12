package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kaldav/go-kaldav"
)

type calendarInfo struct {
	Path        string   `json:"path"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	Components  []string `json:"components"`
}

func newDiscoverCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <domain>",
		Short: "Find the CalDAV server of a domain through DNS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := kaldav.Discover(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			opts.logger.WithField("domain", args[0]).Debug("Discovered CalDAV server")
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

func newCalendarsCommand(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "List the calendars of the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := opts.client(ctx)
			if err != nil {
				return err
			}

			principal, err := c.FindCurrentUserPrincipal(ctx)
			if err != nil {
				return fmt.Errorf("failed to find current user principal: %w", err)
			}

			homeSet, err := c.FindCalendarHomeSet(ctx, principal)
			if err != nil {
				return fmt.Errorf("failed to find calendar home set: %w", err)
			}

			cals, err := c.FindCalendars(ctx, homeSet)
			if err != nil {
				return fmt.Errorf("failed to list calendars: %w", err)
			}

			infos := make([]calendarInfo, 0, len(cals))
			for _, cal := range cals {
				comps := cal.SupportedComponentSet
				if len(comps) == 0 {
					comps = []string{"VEVENT"}
				}
				infos = append(infos, calendarInfo{
					Path:        cal.Path,
					Name:        cal.Name,
					Description: cal.Description,
					Color:       cal.Color,
					Components:  comps,
				})
			}

			w := cmd.OutOrStdout()
			if output == outputJSON {
				return writeJSON(w, infos)
			}

			if len(infos) == 0 {
				fmt.Fprintln(w, "No calendars found")
				return nil
			}

			fmt.Fprintf(w, "%-40s %-24s %-10s %s\n", "PATH", "NAME", "COLOR", "COMPONENTS")
			for _, info := range infos {
				fmt.Fprintf(w, "%-40s %-24s %-10s %s\n", info.Path, info.Name, info.Color, strings.Join(info.Components, ","))
			}
			return nil
		},
	}
	addOutputFlag(cmd, &output)

	return cmd
}
