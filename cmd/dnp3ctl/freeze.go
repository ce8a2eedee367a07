package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/master"
)

var freezeInSeconds int

var freezeAtTimeCmd = &cobra.Command{
	Use:   "fat",
	Short: "Schedule a freeze-at-time operation (fat), supplemented feature",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		at := time.Now().Add(time.Duration(freezeInSeconds) * time.Second)
		t := master.NewFreezeAtTimeTask(app.NewTime(at))
		if _, err := runTask(ch, assoc, t, 10*time.Second); err != nil {
			return err
		}
		fmt.Printf("freeze scheduled for %s\n", at.Format(time.RFC3339))
		return nil
	},
}

func init() {
	freezeAtTimeCmd.Flags().IntVar(&freezeInSeconds, "in", 60, "seconds from now to schedule the freeze")
}
