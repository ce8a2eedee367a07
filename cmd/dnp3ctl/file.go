package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnp3go/master/master"
)

// fileTransferCmd groups the block-oriented file transfer verbs rf/wf,
// spec.md §4.5 "FileTransfer".
var fileTransferCmd = &cobra.Command{
	Use:   "file",
	Short: "File transfer operations: read (rf), write (wf)",
}

var readFileCmd = &cobra.Command{
	Use:   "rf <remote-name> <local-path>",
	Short: "Download a file from the outstation (rf)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, local := args[0], args[1]
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		t := master.NewFileReadTask(remote)
		if _, err := runTask(ch, assoc, t, 60*time.Second); err != nil {
			return err
		}
		if err := os.WriteFile(local, t.FileResult, 0o644); err != nil {
			return fmt.Errorf("dnp3ctl: write %s: %w", local, err)
		}
		fmt.Printf("downloaded %d bytes to %s\n", len(t.FileResult), local)
		return nil
	},
}

var writeFileCmd = &cobra.Command{
	Use:   "wf <local-path> <remote-name>",
	Short: "Upload a file to the outstation (wf)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, remote := args[0], args[1]
		data, err := os.ReadFile(local)
		if err != nil {
			return fmt.Errorf("dnp3ctl: read %s: %w", local, err)
		}
		ch, assoc, cancel, err := openChannel()
		if err != nil {
			return err
		}
		defer cancel()
		defer ch.Stop()

		t := master.NewFileWriteTask(remote, data)
		if _, err := runTask(ch, assoc, t, 60*time.Second); err != nil {
			return err
		}
		fmt.Printf("uploaded %d bytes to %s\n", len(data), remote)
		return nil
	},
}

func init() {
	fileTransferCmd.AddCommand(readFileCmd, writeFileCmd)
}
