package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/master"
)

// deviceAttrCmd groups the supplemented device-attribute verbs rda/wda/
// ral (SPEC_FULL.md supplemented features), IEEE 1815 §4.3's group-0
// attribute objects.
var deviceAttrCmd = &cobra.Command{
	Use:   "attr",
	Short: "Device attribute operations: read (rda), write (wda), list (ral)",
}

var readAttrCmd = &cobra.Command{
	Use:   "rda <variation>",
	Short: "Read a single device attribute variation (rda)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("dnp3ctl: invalid variation %q", args[0])
		}
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		t := master.NewReadAttributeTask(uint8(v))
		resp, err := runTask(ch, assoc, t, 10*time.Second)
		if err != nil {
			return err
		}
		for _, obj := range resp.Objects {
			fmt.Printf("g0v%d: %s\n", obj.Header.Variation, hex.EncodeToString(obj.Data))
		}
		return nil
	},
}

var writeAttrCmd = &cobra.Command{
	Use:   "wda <variation> <hex-bytes>",
	Short: "Write a single device attribute variation (wda)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("dnp3ctl: invalid variation %q", args[0])
		}
		data, err := hex.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("dnp3ctl: invalid hex payload: %w", err)
		}
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		t := master.NewWriteAttributeTask(uint8(v), data)
		if _, err := runTask(ch, assoc, t, 10*time.Second); err != nil {
			return err
		}
		fmt.Println("attribute written")
		return nil
	},
}

var listAttrCmd = &cobra.Command{
	Use:   "ral",
	Short: "List supported device attribute variations (ral), g0v255",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		header := app.RawObjectHeader{Header: app.ObjectHeader{
			Group: 0, Variation: 255, Qualifier: app.Qual8BitStartStop,
			Kind: app.RangeStartStop, Start: 255, Stop: 255,
		}}
		t := master.NewReadTask([]app.RawObjectHeader{header})
		resp, err := runTask(ch, assoc, t, 10*time.Second)
		if err != nil {
			return err
		}
		for _, obj := range resp.Objects {
			fmt.Printf("g0v%d\n", obj.Header.Variation)
		}
		return nil
	},
}

func init() {
	deviceAttrCmd.AddCommand(readAttrCmd, writeAttrCmd, listAttrCmd)
}
