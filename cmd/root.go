package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "openlens",
	Short: "Reconstruct request flows from traces and correlate them with pod logs",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalln(err.Error())
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml (default: ./config.yaml, ./config/, /etc/openlens/)")
}
