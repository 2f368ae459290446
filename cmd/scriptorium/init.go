package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lewtec/scriptorium/annotation"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init [folder]",
	Short: "Initialize a new annotation project",
	Long: `Initialize a new annotation project by creating:
- A sample configuration file (config.yaml)
- An images directory
- The backend database (annotations.db), populated with the images found

Example:
  scriptorium init ./project`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := "."
		if len(args) == 1 {
			folder = args[0]
		}
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return err
		}
		configFile := filepath.Join(folder, "config.yaml")
		databaseFile := filepath.Join(folder, "annotations.db")
		imagesDir := filepath.Join(folder, "images")

		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Printf("Creating default config: %s", configFile)
			if err := os.WriteFile(configFile, []byte(annotation.SampleConfig), 0o644); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}
		} else {
			log.Printf("Config file already exists: %s", configFile)
		}
		config, err := annotation.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if _, err := os.Stat(imagesDir); os.IsNotExist(err) {
			log.Printf("Creating images directory: %s", imagesDir)
			if err := os.MkdirAll(imagesDir, 0o755); err != nil {
				return err
			}
		}

		log.Printf("Creating database: %s", databaseFile)
		db, err := annotation.GetDatabase(databaseFile)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer db.Close()
		if err := annotation.PrepareDatabase(cmd.Context(), db, config, imagesDir); err != nil {
			return fmt.Errorf("failed to prepare database: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Initialization complete!")
		fmt.Fprintln(out, "Next steps:")
		fmt.Fprintf(out, "  1. Put images in %s (or use 'scriptorium ingest')\n", imagesDir)
		fmt.Fprintf(out, "  2. Start the backend: scriptorium serve -c %s\n", configFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
