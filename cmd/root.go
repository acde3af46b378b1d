/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/codearena/judge/config"
	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "judge",
	Short: "Online judge evaluation service",
	Long: `Runs user submissions against problem test cases on a remote
execution engine and keeps the submission history.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file (environment variables still take precedence)")
}

// loadConfig reads --config when given, otherwise the environment only.
func loadConfig() (config.Config, error) {
	if configFile == "" {
		return config.LoadConfig(), nil
	}
	return config.LoadFile(configFile)
}
