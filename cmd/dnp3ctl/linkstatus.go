package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var linkStatusCmd = &cobra.Command{
	Use:   "lsr",
	Short: "Print the association's current state (lsr)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()
		fmt.Printf("association %s: %s\n", assoc.Address, assoc.State())
		return nil
	},
}
