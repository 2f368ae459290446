package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/lewtec/scriptorium/annotation"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development annotation backend",
	Long: `Serve the annotation REST endpoints, IIIF info.json documents and image
assets from the configured database and images folder.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = config.Server.Addr
		}

		db, err := annotation.GetDatabase(config.Server.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := annotation.PrepareDatabase(cmd.Context(), db, config, config.Server.Images); err != nil {
			return fmt.Errorf("failed to prepare database: %w", err)
		}

		app := &annotation.App{
			ImagesDir: config.Server.Images,
			Database:  db,
			Config:    config,
		}
		log.Printf("Database: %s", config.Server.Database)
		log.Printf("Images: %s", config.Server.Images)
		log.Printf("Starting server on: %s", addr)

		srv := &http.Server{Addr: addr, Handler: app.GetHTTPHandler()}
		stop := context.AfterFunc(cmd.Context(), func() { srv.Close() })
		defer stop()
		err = srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to bind the webserver (default from config)")
}
