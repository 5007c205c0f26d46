// Package collect is a subcommand of the root command. It samples the interrupt counters of the
// local system into a raw result.
package collect

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"statscollect/internal/collect"
	"statscollect/internal/common"
)

const cmdName = "collect"

var examples = []string{
	fmt.Sprintf("  Collect until Ctrl-C:          $ %s %s --output ./run1", common.AppName, cmdName),
	fmt.Sprintf("  Collect for a minute:          $ %s %s --output ./run1 --duration 1m --interval 2s", common.AppName, cmdName),
	fmt.Sprintf("  Collect 10 snapshots:          $ %s %s --output ./run1 --count 10", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Collect interrupts statistics on the local system",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagInterval time.Duration
	flagDuration time.Duration
	flagCount    int
	flagReportID string
	flagSource   string
)

const (
	flagIntervalName = "interval"
	flagDurationName = "duration"
	flagCountName    = "count"
	flagReportIDName = "reportid"
	flagSourceName   = "source"
)

func init() {
	Cmd.Flags().DurationVar(&flagInterval, flagIntervalName, collect.DefaultInterval, "")
	Cmd.Flags().DurationVar(&flagDuration, flagDurationName, 0, "")
	Cmd.Flags().IntVar(&flagCount, flagCountName, 0, "")
	Cmd.Flags().StringVar(&flagReportID, flagReportIDName, "", "")
	Cmd.Flags().StringVar(&flagSource, flagSourceName, collect.DefaultSource, "")

	Cmd.SetUsageFunc(common.UsageFunc(getFlagGroups))
}

func getFlagGroups() []common.FlagGroup {
	return []common.FlagGroup{
		{
			GroupName: "Options",
			Flags: []common.Flag{
				{Name: flagIntervalName, Help: "time between snapshots"},
				{Name: flagDurationName, Help: "stop after this long, 0 means until interrupted"},
				{Name: flagCountName, Help: "stop after this many snapshots, 0 means no limit"},
				{Name: flagReportIDName, Help: "report ID of the result, default is \"<hostname>-<start time>\""},
			},
		},
		{
			GroupName: "Advanced Options",
			Flags: []common.Flag{
				{Name: flagSourceName, Help: "file to sample"},
			},
		},
	}
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagInterval <= 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must be positive", flagIntervalName))
	}
	if flagDuration < 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must not be negative", flagDurationName))
	}
	if flagCount < 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must not be negative", flagCountName))
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext := common.GetAppContext(cmd)
	collector, err := collect.New(collect.Config{
		OutputDir: appContext.OutputDir,
		ReportID:  flagReportID,
		ToolVer:   appContext.Version,
		Source:    flagSource,
		Interval:  flagInterval,
		Duration:  flagDuration,
		Count:     flagCount,
	})
	if err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	// SIGINT and SIGTERM stop the collection, the result stays usable
	ctx, cancel := common.SignalContext(cmd.Context())
	defer cancel()
	fmt.Printf("Collecting to %s, press Ctrl-C to stop\n", appContext.OutputDir)
	if err := collector.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	fmt.Printf("Raw result: %s\n", appContext.OutputDir)
	return nil
}
