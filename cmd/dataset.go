package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage the local flood hazard dataset",
}

var datasetFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Force-download the dataset file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Dataset.URL == "" {
			return eris.New("no dataset.url configured")
		}

		path, err := newDatasetStore().Fetch(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "fetch dataset")
		}

		info, err := os.Stat(path)
		if err != nil {
			return eris.Wrap(err, "stat dataset")
		}
		fmt.Printf("Downloaded %s (%d bytes)\n", path, info.Size())
		return nil
	},
}

var datasetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report dataset file and content status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Path: %s\n", cfg.Dataset.Path)

		info, err := os.Stat(cfg.Dataset.Path)
		if err != nil {
			fmt.Println("File: missing")
			if cfg.Dataset.URL == "" {
				fmt.Println("No download URL configured")
				return nil
			}
			fmt.Printf("Would download from: %s\n", cfg.Dataset.URL)
			return nil
		}
		fmt.Printf("File: present (%d bytes)\n", info.Size())

		coll, err := newDatasetStore().Load(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "parse dataset")
		}

		labeled := 0
		for _, f := range coll.Features {
			if f.Label != "" {
				labeled++
			}
		}

		fmt.Printf("SRID: %d\n", coll.SRID)
		fmt.Printf("Features: %d\n", len(coll.Features))
		if len(coll.Features) > 0 {
			fmt.Printf("Labeled: %d (%.1f%%)\n", labeled, 100*float64(labeled)/float64(len(coll.Features)))
		}
		return nil
	},
}

func init() {
	datasetCmd.AddCommand(datasetFetchCmd)
	datasetCmd.AddCommand(datasetStatusCmd)
	rootCmd.AddCommand(datasetCmd)
}
