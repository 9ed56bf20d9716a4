/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/recipebox/apiserver/config"
	"github.com/recipebox/apiserver/internal/logger"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Recipe API server and operator tooling",
	Long: `Recipe API server and operator tooling. Usage:

	recipes server
	recipes migrate up
	recipes createsuperuser --email admin@example.com --username admin
	recipes events watch
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and initialises the process logger
// from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, err
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return cfg, nil
}
