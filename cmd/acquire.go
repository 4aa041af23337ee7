package cmd

import (
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/weaviate/deephash-datasets/dataset"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Download and extract the dataset if it is not on disk yet",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "acquire"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		infof("Acquiring %s into %s", cfg.Dataset, cfg.Root)
		ds, err := dataset.Open(cmd.Context(), newAdapter(cfg, nil), cfg.Split,
			dataset.WithForceDownload(cfg.ForceDownload))
		if err != nil {
			fatal(err)
		}

		log.WithFields(log.Fields{
			"dataset": cfg.Dataset,
			"split":   ds.Split(),
			"samples": humanize.Comma(int64(ds.Len())),
			"root":    ds.Root(),
		}).Info("Dataset ready")
	},
}

func initAcquire() {
	rootCmd.AddCommand(acquireCmd)
}
