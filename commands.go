package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/mortality-clustering-service/pkg/api"
	"github.com/gilchrisn/mortality-clustering-service/pkg/export"
	"github.com/gilchrisn/mortality-clustering-service/pkg/grouping"
	"github.com/gilchrisn/mortality-clustering-service/pkg/metrics"
	"github.com/gilchrisn/mortality-clustering-service/pkg/parser"
	"github.com/gilchrisn/mortality-clustering-service/pkg/pipeline"
	"github.com/gilchrisn/mortality-clustering-service/pkg/service"
	"github.com/gilchrisn/mortality-clustering-service/pkg/similarity"
)

var buildCmd = &cobra.Command{
	Use:   "build <table.csv>",
	Short: "Write the similarity graph of every group as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, _, err := parser.LoadRecordsCSV(args[0], log.Logger)
		if err != nil {
			return err
		}

		builder := similarity.NewBuilder(cfg, log.Logger)
		table := pterm.TableData{{"Group", "Records", "Nodes", "Edges", "File"}}

		for _, group := range grouping.Partition(records, log.Logger) {
			g, err := builder.Build(ctx, group.Records)
			if err != nil {
				return errors.Wrapf(err, "group %s", group.Name)
			}
			path := filepath.Join(cfg.OutputDir(), group.Name+".csv")
			if err := export.SaveEdgesCSV(path, g); err != nil {
				return err
			}
			table = append(table, []string{
				group.Name,
				strconv.Itoa(len(group.Records)),
				strconv.Itoa(g.NumNodes()),
				strconv.Itoa(g.NumEdges()),
				path,
			})
		}

		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster <table.csv>",
	Short: "Cluster every group and write partitions and a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := metrics.NewRegistry()

		records, stats, err := parser.LoadRecordsCSV(args[0], log.Logger)
		if err != nil {
			return err
		}
		reg.RecordParse(stats.Records, stats.ShortRows, stats.MalformedRows, stats.Invalid)

		p := pipeline.New(cfg, log.Logger, reg)
		report, err := p.Run(cmd.Context(), records)
		if err != nil {
			return err
		}
		dir, err := p.Save(report)
		if err != nil {
			return err
		}

		table := pterm.TableData{{"Group", "Records", "Nodes", "Edges", "Communities", "Modularity", "Levels", "Stop"}}
		for _, result := range report.Groups {
			table = append(table, []string{
				result.Group.Name,
				strconv.Itoa(result.Records),
				strconv.Itoa(result.Summary.Graph.Nodes),
				strconv.Itoa(result.Summary.Graph.Edges),
				strconv.Itoa(result.Clustering.NumCommunities),
				fmt.Sprintf("%.4f", result.Clustering.Modularity),
				strconv.Itoa(result.Clustering.Levels),
				result.Clustering.StopReason,
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
			return err
		}
		pterm.Success.Printfln("Run %s written to %s (%d ms)", report.RunID, dir, report.RuntimeMS)

		if path := cfg.MetricsTextfile(); path != "" && cfg.MetricsEnabled() {
			if err := reg.WriteTextfile(path); err != nil {
				return errors.Wrap(err, "failed to write metrics")
			}
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Msg("Starting mortality clustering service")

		var reg *metrics.Registry
		if cfg.MetricsEnabled() {
			reg = metrics.DefaultRegistry()
		}

		p := pipeline.New(cfg, log.Logger, reg)
		jobs := service.NewJobService(p, cfg.MaxJobs())
		defer jobs.Close()

		handlers := api.NewHandlers(cfg, p, jobs, reg)

		server := &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      api.NewRouter(handlers, cfg.AllowedOrigins()),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().
				Str("address", cfg.ServerAddress()).
				Int("max_jobs", cfg.MaxJobs()).
				Msg("HTTP server starting")

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return errors.Wrap(err, "failed to start server")
		case <-quit:
			log.Info().Msg("Shutdown signal received")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "server forced to shutdown")
		}

		log.Info().Msg("Server shutdown complete")
		return nil
	},
}

func init() {
	clusterCmd.Flags().String("algorithm", "louvain", "clustering algorithm (louvain, labelprop)")
	clusterCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file")
	bindFlag("clustering.algorithm", clusterCmd.Flags().Lookup("algorithm"))
	bindFlag("metrics.textfile", clusterCmd.Flags().Lookup("metrics-file"))

	serveCmd.Flags().String("addr", ":3002", "listen address")
	bindFlag("server.address", serveCmd.Flags().Lookup("addr"))
}
