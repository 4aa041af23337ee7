package cmd

import (
	"github.com/spf13/cobra"

	"github.com/weaviate/deephash-datasets/dataset"
	"github.com/weaviate/deephash-datasets/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the labels of every split to an HDF5 file",
	Long: `Write the label matrix of the train, test and db splits to an HDF5 file,
one dataset per split named <split>_labels. Rows are padded with -1.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "export"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		adapter := newAdapter(cfg, nil)
		var splits []*dataset.Dataset
		for _, split := range dataset.Splits {
			ds, err := dataset.Open(cmd.Context(), adapter, split.String())
			if err != nil {
				fatal(err)
			}
			splits = append(splits, ds)
		}

		if err := export.WriteLabels(cfg.HDF5File, splits...); err != nil {
			fatal(err)
		}
		infof("Wrote labels to %s", cfg.HDF5File)
	},
}

func initExport() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.PersistentFlags().StringVar(&globalConfig.HDF5File,
		"hdf5", "", "Path of the HDF5 file to write")
}
