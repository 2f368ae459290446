package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lewtec/scriptorium/annotation"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scriptorium",
	Short: "Annotate regions of manuscript images",
	Long: strings.TrimSpace(`
Draw, edit and delete rectangular annotations on manuscript images. Work is
kept in a local cache until it is saved to the annotation backend, so unsaved
annotations survive between sessions.
    `),
	SilenceUsage: true,
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "Config file")
}

// loadConfig reads the --config file, falling back to defaults when it does
// not exist.
func loadConfig(cmd *cobra.Command) (*annotation.Config, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	config, err := annotation.LoadConfig(configFile)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Config file %s not found, using defaults", configFile)
		return annotation.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config, nil
}
