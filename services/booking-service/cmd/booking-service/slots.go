package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zerion/slotbook/libs/runtime"
	"github.com/zerion/slotbook/services/booking-service/internal/settings"
)

func newSlotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots [YYYY-MM-DD]",
		Short: "Print the free slots of a date (today when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings.Load()
			if err != nil {
				return err
			}
			logger := runtime.NewLoggerWithLevel(io.Discard, cfg.ServiceName, cfg.LogLevel)
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			date := a.service.Today()
			if len(args) == 1 {
				date = strings.TrimSpace(args[0])
			}
			slots, err := a.service.Availability(cmd.Context(), date)
			if err != nil {
				return fmt.Errorf("%s: %w", date, err)
			}
			out := cmd.OutOrStdout()
			if len(slots) == 0 {
				fmt.Fprintf(out, "%s: no free slots\n", date)
				return nil
			}
			labels := make([]string, 0, len(slots))
			for _, s := range slots {
				labels = append(labels, s.Label())
			}
			fmt.Fprintf(out, "%s: %s\n", date, strings.Join(labels, " "))
			return nil
		},
	}
}
