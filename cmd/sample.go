package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/weaviate/deephash-datasets/dataset"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Decode one sample of a split and print its path, size and label",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "sample"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		ds, err := dataset.Open(cmd.Context(), newAdapter(cfg, nil), cfg.Split,
			dataset.WithForceDownload(cfg.ForceDownload))
		if err != nil {
			fatal(err)
		}

		if err := printSample(os.Stdout, ds, cfg.Index); err != nil {
			fatal(err)
		}
	},
}

func initSample() {
	rootCmd.AddCommand(sampleCmd)
	sampleCmd.PersistentFlags().IntVarP(&globalConfig.Index,
		"index", "i", 0, "Index of the sample within the split")
}

func printSample(w io.Writer, ds *dataset.Dataset, i int) error {
	img, label, err := ds.Get(i)
	if err != nil {
		return err
	}
	path, err := ds.Path(i)
	if err != nil {
		return err
	}

	b := img.Bounds()
	_, err = fmt.Fprintf(w, "path: %s\nsize: %dx%d\nlabel: %v\n", path, b.Dx(), b.Dy(), label)
	return err
}
