package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"thirdangle/config"
)

var rootCmd = &cobra.Command{
	Use:           "boardctl",
	Short:         "Inspect and move tasks on the Third Angle board",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(boardCmd, moveCmd, notificationsCmd, watchCmd, tokenCmd)
}

func main() {
	config.SetupLogging()
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
