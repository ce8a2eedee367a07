package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/master"
)

var timeSyncCmd = &cobra.Command{
	Use:   "lts",
	Short: "Write the outstation's time from this host's clock (lts; there is no separate nts verb)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		t := master.NewTimeSyncTask(app.NewTime(time.Now()))
		if _, err := runTask(ch, assoc, t, 10*time.Second); err != nil {
			return err
		}
		fmt.Println("time synchronized")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "crt",
	Short: "Issue a cold restart (crt) or warm restart with --warm (wrt)",
	RunE: func(cmd *cobra.Command, args []string) error {
		warm, _ := cmd.Flags().GetBool("warm")
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		t := master.NewRestartTask(warm)
		resp, err := runTask(ch, assoc, t, 30*time.Second)
		if err != nil {
			return err
		}
		if delay, ok := app.RestartDelay(resp); ok {
			fmt.Printf("restart scheduled, delay=%dms\n", delay)
		} else {
			fmt.Println("restart acknowledged")
		}
		return nil
	},
}

func init() {
	restartCmd.Flags().Bool("warm", false, "issue WARM_RESTART instead of COLD_RESTART")
}
