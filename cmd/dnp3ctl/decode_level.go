package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dnp3go/master/master"
)

var decodeLevelCmd = &cobra.Command{
	Use:   "dlv <nothing|header|objects|payload>",
	Short: "Set the channel's protocol decode/log level (dlv; there is no separate dln verb)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseDecodeLevel(args[0])
		if err != nil {
			return err
		}
		ch, _, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()
		ch.SetDecodeLevel(level)
		fmt.Printf("decode level set to %s\n", args[0])
		return nil
	},
}

func parseDecodeLevel(s string) (master.DecodeLevel, error) {
	switch s {
	case "nothing":
		return master.DecodeNothing, nil
	case "header":
		return master.DecodeHeader, nil
	case "objects":
		return master.DecodeObjectHeader, nil
	case "payload":
		return master.DecodePayload, nil
	default:
		return 0, fmt.Errorf("dnp3ctl: unknown decode level %q", s)
	}
}
