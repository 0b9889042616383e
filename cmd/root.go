/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/boardtrack/apiserver/config"
	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boardtrack",
	Short: "Board tracking backend for barcode scan recording",
	Long: `boardtrack is the backend for the board tracking system: it stores
manufacturing orders and barcode scans per department and serves them
over a REST API.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		logging.Init(logging.Config{
			Level:      cfg.LogLevel,
			JSONOutput: os.Getenv("ENV") != "dev",
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Here you will define your flags and configuration settings.
	// Cobra supports persistent flags, which, if defined here,
	// will be global for your application.
}
