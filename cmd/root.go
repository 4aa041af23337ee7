package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var globalConfig Config

const (
	colorReset = "\033[0m"
	colorRed   = "\033[1;31m"
	colorWhite = "\033[0;37m"
)

func init() {
	logLevel, ok := os.LookupEnv("LOG_LEVEL")

	if ok {
		level, err := log.ParseLevel(logLevel)
		if err == nil {
			log.SetLevel(level)
		} else {
			log.Warn("Invalid log level. Defaulting to Info level.")
			log.SetLevel(log.InfoLevel)
		}
	} else {
		log.SetLevel(log.InfoLevel)
	}

	initRoot()
	initAcquire()
	initSummary()
	initSample()
	initExport()
	initServeMetrics()
}

var rootCmd = &cobra.Command{
	Use:   "deephash",
	Short: "Deep hashing dataset tool",
	Long: `Download, index and inspect the image datasets used to benchmark deep hashing
retrieval models (coco, nus-wide). Every dataset is split into train, test and db.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvAndConfigFile(cmd.Flags(), globalConfig.ConfigFile)
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("running the root command, see help or -h for available commands\n")
	},
}

func initRoot() {
	rootCmd.PersistentFlags().StringVar(&globalConfig.ConfigFile,
		"config", "", "Optional YAML file with flag values")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.Dataset,
		"dataset", "d", "nus-wide", "Dataset to use, one of [coco, nus-wide]")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.Root,
		"root", "r", "", "Dataset root directory (default ./data/<dataset>)")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.Split,
		"split", "s", "train", "Dataset split, one of [train, test, db]")
	rootCmd.PersistentFlags().BoolVar(&globalConfig.ForceDownload,
		"force-download", false, "Erase the dataset root and download everything again")
	rootCmd.PersistentFlags().StringVar(&globalConfig.BaseURL,
		"base-url", "", "Override the download location of the dataset")
	rootCmd.PersistentFlags().IntVar(&globalConfig.Retries,
		"retries", 0, "Number of retries for a failed download")
	rootCmd.PersistentFlags().IntVarP(&globalConfig.Workers,
		"workers", "w", 4, "Number of archives extracted in parallel")
}

// loadEnvAndConfigFile fills every flag that was not given on the command
// line from DEEPHASH_* environment variables or the config file.
func loadEnvAndConfigFile(flags *pflag.FlagSet, configFile string) error {
	v := viper.New()
	v.SetEnvPrefix("DEEPHASH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config file %q", configFile)
		}
	}

	var setErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		if err := flags.Set(f.Name, v.GetString(f.Name)); err != nil && setErr == nil {
			setErr = errors.Wrapf(err, "invalid value for %s", f.Name)
		}
	})
	return setErr
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, err.Error(), colorReset)
	os.Exit(1)
}

func infof(msg string, format ...interface{}) {
	formatted := fmt.Sprintf(msg, format...)
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorWhite, formatted, colorReset)
}
