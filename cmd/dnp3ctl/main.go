// Command dnp3ctl is the external driver for the master package,
// spec.md §6: an interactive/scriptable front-end over a single
// channel/association pair, not a required part of the core. Flags and
// config loading follow the teacher pack's cobra+viper idiom
// (marmos91-dittofs/cmd/dittofsctl).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dnp3ctl",
	Short: "Drive a DNP3 master channel from the command line",
	Long: `dnp3ctl is a thin CLI over the master package's programmatic API.

It opens one channel to a single outstation address and exposes the
external driver verbs described in the master station specification:
enable/disable, decode-level control, reads, commands, time sync,
restarts, polling, file transfer, and device attributes.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.dnp3ctl.yaml)")
	rootCmd.PersistentFlags().String("host", "127.0.0.1:20000", "outstation TCP address")
	rootCmd.PersistentFlags().Uint16("master-address", 1, "master DNP3 link address")
	rootCmd.PersistentFlags().Uint16("outstation-address", 1024, "outstation DNP3 link address")
	_ = viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("master-address", rootCmd.PersistentFlags().Lookup("master-address"))
	_ = viper.BindPFlag("outstation-address", rootCmd.PersistentFlags().Lookup("outstation-address"))

	rootCmd.AddCommand(enableCmd, disableCmd, decodeLevelCmd,
		readAllAnalogCmd, readMultipleCmd, commandCmd, eventPollCmd,
		timeSyncCmd, restartCmd, linkStatusCmd, freezeAtTimeCmd,
		deviceAttrCmd, fileTransferCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".dnp3ctl")
		}
	}
	viper.SetEnvPrefix("DNP3CTL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
