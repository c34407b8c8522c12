package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/spf13/cobra"

	"github.com/kaldav/go-kaldav/caldav"
)

func newMkcalendarCommand(opts *options) *cobra.Command {
	var (
		mk           caldav.Mkcalendar
		timezoneFile string
	)

	cmd := &cobra.Command{
		Use:   "mkcalendar <path>",
		Short: "Create a calendar collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timezoneFile != "" {
				tz, err := readTimezone(timezoneFile)
				if err != nil {
					return err
				}
				mk.Timezone = tz
			}
			for i, comp := range mk.SupportedComponents {
				mk.SupportedComponents[i] = strings.ToUpper(comp)
			}

			ctx := cmd.Context()
			c, err := opts.client(ctx)
			if err != nil {
				return err
			}

			if err := c.NewCalendar(ctx, args[0], &mk); err != nil {
				return err
			}

			opts.logger.WithField("calendar", args[0]).Info("Created calendar")
			return nil
		},
	}

	cmd.Flags().StringVar(&mk.Name, "name", "", "display name (default: the path)")
	cmd.Flags().StringVar(&mk.Description, "description", "", "calendar description")
	cmd.Flags().StringVar(&mk.Color, "color", "", "calendar color, e.g. #3a87ad")
	cmd.Flags().StringSliceVar(&mk.SupportedComponents, "component", []string{ical.CompEvent}, "supported component types")
	cmd.Flags().StringVar(&timezoneFile, "timezone", "", "iCalendar file holding the calendar's VTIMEZONE")

	return cmd
}

func readTimezone(name string) (*ical.Calendar, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cal, err := ical.NewDecoder(f).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode timezone %v: %w", name, err)
	}

	for _, child := range cal.Children {
		if child.Name == ical.CompTimezone {
			return cal, nil
		}
	}
	return nil, fmt.Errorf("%v has no %v component", name, ical.CompTimezone)
}
