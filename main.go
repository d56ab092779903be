package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gilchrisn/mortality-clustering-service/pkg/config"
)

var (
	cfg        = config.NewConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "mortality-clustering",
	Short: "Similarity graphs and community detection over mortality tables",
	Long: `Builds one similarity graph per sub-population of a mortality table and
clusters it with Louvain modularity optimization or label propagation.

Available commands:
  build    - Write the similarity graph of every group as CSV
  cluster  - Cluster every group and write partitions and a report
  serve    - Start the HTTP API

Examples:
  mortality-clustering build data/mortality.csv --out graphs
  mortality-clustering cluster data/mortality.csv --algorithm labelprop
  mortality-clustering serve --config service.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := cfg.LoadFromFile(configFile); err != nil {
				return err
			}
		}

		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = cfg.CreateLogger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("out", "output", "output directory")
	bindFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	bindFlag("output.dir", rootCmd.PersistentFlags().Lookup("out"))

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(serveCmd)
}

// bindFlag makes flag the source of key whenever it is set on the command line
func bindFlag(key string, flag *pflag.Flag) {
	cobra.CheckErr(cfg.Viper().BindPFlag(key, flag))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
