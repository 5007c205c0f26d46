// Package serve is a subcommand of the root command. It exports the latest values of raw
// results' statistics as Prometheus metrics.
package serve

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"statscollect/internal/common"
	"statscollect/internal/result"
	"statscollect/internal/util"
)

const cmdName = "serve"

var examples = []string{
	fmt.Sprintf("  Export a result:                $ %s %s ./run1", common.AppName, cmdName),
	fmt.Sprintf("  Export a result being collected: $ %s %s ./run1 --listen :9100 --refresh 5s", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName + " DIR...",
	Short:         "Export raw statistics results as Prometheus metrics",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.MinimumNArgs(1),
	SilenceErrors: true,
}

var (
	flagListen  string
	flagRefresh time.Duration
	flagStats   []string
	flagCPUs    string
)

const (
	flagListenName  = "listen"
	flagRefreshName = "refresh"
	flagStatsName   = "stats"
	flagCPUsName    = "cpus"
)

var cpus []int

func init() {
	Cmd.Flags().StringVar(&flagListen, flagListenName, ":9464", "")
	Cmd.Flags().DurationVar(&flagRefresh, flagRefreshName, 10*time.Second, "")
	Cmd.Flags().StringSliceVar(&flagStats, flagStatsName, []string{}, "")
	Cmd.Flags().StringVar(&flagCPUs, flagCPUsName, "", "")

	Cmd.SetUsageFunc(common.UsageFunc(getFlagGroups))
}

func getFlagGroups() []common.FlagGroup {
	return []common.FlagGroup{
		{
			GroupName: "Options",
			Flags: []common.Flag{
				{Name: flagListenName, Help: "address to serve the /metrics endpoint on"},
				{Name: flagRefreshName, Help: "how often the raw statistics are re-read"},
				{Name: flagStatsName, Help: "comma-separated statistics to export, default is all supported statistics"},
				{Name: flagCPUsName, Help: "CPUs to export per-CPU values for, e.g., \"0-3\""},
			},
		},
	}
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagRefresh <= 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must be positive", flagRefreshName))
	}
	for _, stat := range flagStats {
		if !result.IsSupportedStat(stat) {
			return common.FlagValidationError(cmd, fmt.Sprintf("unsupported statistic '%s'", stat))
		}
	}
	cpus = nil
	if flagCPUs != "" {
		var err error
		if cpus, err = util.SelectiveIntRangeToIntList(flagCPUs); err != nil {
			return common.FlagValidationError(cmd, fmt.Sprintf("bad --%s value: %v", flagCPUsName, err))
		}
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	var results []*result.RawResult
	for _, dir := range args {
		res, err := result.Open(dir, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			slog.Error(err.Error())
			cmd.SilenceUsage = true
			return err
		}
		results = append(results, res)
	}
	if err := result.DedupReportIDs(results); err != nil {
		cmd.SilenceUsage = true
		return err
	}
	ctx, cancel := common.SignalContext(cmd.Context())
	defer cancel()

	exp := newExporter()
	refresh(exp, results)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(exp.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              flagListen,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	slog.Info("Starting Prometheus metrics server", slog.String("address", flagListen))
	fmt.Printf("Serving metrics on %s/metrics, press Ctrl-C to stop\n", flagListen)
	serverErr := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	ticker := time.NewTicker(flagRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh(exp, results)
		case err := <-serverErr:
			if err != nil {
				slog.Error("Prometheus HTTP server ListenAndServe error", slog.String("error", err.Error()))
				cmd.SilenceUsage = true
				return err
			}
			return nil
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		}
	}
}

// refresh re-reads the statistics of every result. Failures are logged and the previous values
// are kept.
func refresh(exp *exporter, results []*result.RawResult) {
	for _, res := range results {
		names := flagStats
		if len(names) == 0 {
			names = res.StatNames()
		}
		for _, name := range names {
			if !result.IsSupportedStat(name) {
				continue
			}
			table, err := res.LoadStat(name, cpus)
			if err != nil {
				slog.Warn("failed to load statistic", slog.String("reportid", res.ReportID), slog.String("stat", name),
					slog.String("error", err.Error()))
				continue
			}
			exp.update(res.ReportID, table)
		}
	}
}
