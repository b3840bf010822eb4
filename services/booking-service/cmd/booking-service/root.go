package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slotbook",
		Short:         "Appointment slots and reservations backed by a calendar and a local ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSlotsCmd(), newTokenCmd())
	return root
}
