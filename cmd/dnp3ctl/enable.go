package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable the association (dnp3ctl sets IntegrityAtStartup false, so no startup integrity poll runs)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()
		assoc.Enable()
		fmt.Println("association enabled")
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable the association",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()
		assoc.Disable()
		fmt.Println("association disabled")
		return nil
	},
}
