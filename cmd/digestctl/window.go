package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"snipper/internal/window"
)

type windowOpts struct {
	day    int
	hour   int
	tz     string
	offset int
	at     string
}

func newWindowCmd() *cobra.Command {
	var o windowOpts

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Show the reporting window and UTC reset pair for a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWindow(o, time.Now(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&o.day, "day", 1, "Reset weekday, 0=Sunday .. 6=Saturday")
	cmd.Flags().IntVar(&o.hour, "hour", 15, "Reset hour, 0-23")
	cmd.Flags().StringVar(&o.tz, "tz", "America/Los_Angeles", "IANA timezone")
	cmd.Flags().IntVar(&o.offset, "offset", 0, "Weeks back")
	cmd.Flags().StringVar(&o.at, "at", "", "Reference instant (RFC 3339); defaults to now")
	return cmd
}

func runWindow(o windowOpts, now time.Time, out io.Writer) error {
	day := time.Weekday(o.day)
	if err := window.ValidateDayHour(day, o.hour); err != nil {
		return err
	}
	loc, err := time.LoadLocation(o.tz)
	if err != nil {
		return fmt.Errorf("unknown timezone %q: %w", o.tz, err)
	}
	if o.offset < 0 {
		return fmt.Errorf("--offset must not be negative")
	}

	ref := now
	if o.at != "" {
		ref, err = time.Parse(time.RFC3339, o.at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}

	w := window.Resolve(day, o.hour, loc, o.offset, ref)
	utcDay, utcHour := window.ConvertResetToUtc(day, o.hour, loc, ref)

	fmt.Fprintf(out, "reference:  %s\n", ref.In(loc).Format(time.RFC3339))
	fmt.Fprintf(out, "start:      %s\n", w.Start.Format(time.RFC3339))
	fmt.Fprintf(out, "end:        %s\n", w.End.Format(time.RFC3339))
	fmt.Fprintf(out, "utc reset:  %s %02d:00\n", utcDay, utcHour)
	return nil
}
