package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/master"
)

var commandCmd = &cobra.Command{
	Use:   "cmd <index> <on|off>",
	Short: "Select-before-operate a CROB latch (cmd)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return fmt.Errorf("dnp3ctl: invalid index %q", args[0])
		}
		var code app.ControlCode
		switch args[1] {
		case "on":
			code = app.ControlLatchOn
		case "off":
			code = app.ControlLatchOff
		default:
			return fmt.Errorf("dnp3ctl: expected on|off, got %q", args[1])
		}

		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		crob := app.CROB{Code: code, Count: 1}
		t := master.NewSelectOperateTask(uint16(index), crob)
		if _, err := runTask(ch, assoc, t, 10*time.Second); err != nil {
			return err
		}
		fmt.Printf("index %d latched %s\n", index, args[1])
		return nil
	},
}
