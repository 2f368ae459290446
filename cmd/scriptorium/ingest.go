package main

import (
	"fmt"
	"image"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lewtec/scriptorium/annotation"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest input... [output]",
	Short: "Ingest folders of files into a flat folder of images.",
	Long: `Ingest folders of files that were extracted from somewhere and organize
them in a flat hierarchy of PNG images named after their sha256, which is also
their IIIF identifier. Without an explicit output the configured images folder
is used.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs := args
		output := ""
		if len(args) > 1 {
			inputs = args[:len(args)-1]
			output = args[len(args)-1]
		} else {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			output = config.Server.Images
		}
		for i, input := range inputs {
			fileInfo, err := os.Stat(input)
			if err != nil {
				return fmt.Errorf("on %dth argument: %w", i+1, err)
			}
			if !fileInfo.IsDir() {
				return fmt.Errorf("on %dth argument: must be a directory", i+1)
			}
		}
		if err := os.MkdirAll(output, 0o777); err != nil {
			return err
		}
		jobs, _ := cmd.Flags().GetUint("jobs")
		jobs = max(jobs, 1)

		queue := make(chan image.Image, 10)
		var wg sync.WaitGroup
		var mu sync.Mutex
		ingested := 0
		for i := uint(0); i < jobs; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for img := range queue {
					id, err := annotation.IngestImage(img, output)
					if err != nil {
						log.Printf("Ingesting image error: %s", err)
						continue
					}
					log.Printf("ingested %s", id)
					mu.Lock()
					ingested++
					mu.Unlock()
				}
			}()
		}

		var walkErr error
		for _, input := range inputs {
			walkErr = filepath.WalkDir(input, func(path string, info fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() {
					return nil
				}
				img, err := annotation.DecodeImage(path)
				if err != nil {
					return nil
				}
				log.Printf("found image '%s'", path)
				queue <- img
				return nil
			})
			if walkErr != nil {
				break
			}
		}
		close(queue)
		wg.Wait()

		fmt.Fprintf(cmd.OutOrStdout(), "%d images ingested into %s\n", ingested, output)
		return walkErr
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().UintP("jobs", "j", 1, "Amount of concurrent ingestors")
}
