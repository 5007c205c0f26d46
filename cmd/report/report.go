// Package report is a subcommand of the root command. It turns the raw statistics of one or
// more raw results into tables.
package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"statscollect/internal/common"
	"statscollect/internal/dataframe"
	"statscollect/internal/dfbuilders"
	"statscollect/internal/mdc"
	"statscollect/internal/progress"
	"statscollect/internal/report"
	"statscollect/internal/result"
	"statscollect/internal/util"
)

const cmdName = "report"

var examples = []string{
	fmt.Sprintf("  All statistics of a result:        $ %s %s ./run1", common.AppName, cmdName),
	fmt.Sprintf("  Compare two results:               $ %s %s ./run1 ./run2 --stats turbostat --format txt,xlsx", common.AppName, cmdName),
	fmt.Sprintf("  Per-CPU columns and a time window: $ %s %s ./run1 --cpus 0-3 --begin 10 --end 70 --relative", common.AppName, cmdName),
	fmt.Sprintf("  Derived column:                    $ %s %s ./run1 --expr 'System-PkgWattX2=[System-PkgWatt] * 2'", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName + " DIR...",
	Short:         "Generate tables from raw statistics results",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.MinimumNArgs(1),
	SilenceErrors: true,
}

// flag vars
var (
	flagStats         []string
	flagCPUs          string
	flagFormat        []string
	flagBegin         float64
	flagEnd           float64
	flagRelative      bool
	flagExpr          []string
	flagReportIDs     []string
	flagFullRun       bool
	flagStdout        bool
	flagNoProgressBar bool
)

// flag names
const (
	flagStatsName         = "stats"
	flagCPUsName          = "cpus"
	flagFormatName        = "format"
	flagBeginName         = "begin"
	flagEndName           = "end"
	flagRelativeName      = "relative"
	flagExprName          = "expr"
	flagReportIDsName     = "reportids"
	flagFullRunName       = "full-run"
	flagStdoutName        = "stdout"
	flagNoProgressBarName = "no-progress"
)

// values parsed by validateFlags
var (
	cpus        []int
	formats     []string
	expressions []namedExpression
)

func init() {
	Cmd.Flags().StringSliceVar(&flagStats, flagStatsName, []string{}, "")
	Cmd.Flags().StringVar(&flagCPUs, flagCPUsName, "", "")
	Cmd.Flags().StringSliceVar(&flagFormat, flagFormatName, []string{report.FormatTxt}, "")
	Cmd.Flags().Float64Var(&flagBegin, flagBeginName, 0, "")
	Cmd.Flags().Float64Var(&flagEnd, flagEndName, math.Inf(1), "")
	Cmd.Flags().BoolVar(&flagRelative, flagRelativeName, false, "")
	Cmd.Flags().StringArrayVar(&flagExpr, flagExprName, []string{}, "")
	Cmd.Flags().StringSliceVar(&flagReportIDs, flagReportIDsName, []string{}, "")
	Cmd.Flags().BoolVar(&flagFullRun, flagFullRunName, false, "")
	Cmd.Flags().BoolVar(&flagStdout, flagStdoutName, false, "")
	Cmd.Flags().BoolVar(&flagNoProgressBar, flagNoProgressBarName, false, "")

	Cmd.SetUsageFunc(common.UsageFunc(getFlagGroups))
}

func getFlagGroups() []common.FlagGroup {
	var groups []common.FlagGroup
	flags := []common.Flag{
		{
			Name: flagStatsName,
			Help: "comma-separated statistics to include, default is all statistics found in the results",
		},
		{
			Name: flagCPUsName,
			Help: "CPUs to add per-CPU columns for, e.g., \"0-3,7\"",
		},
		{
			Name: flagExprName,
			Help: "add a derived column, \"NAME=EXPR\", bracket column names with '-' or '%', e.g., \"System-X=[System-PkgWatt] / 2\", may be repeated",
		},
	}
	groups = append(groups, common.FlagGroup{
		GroupName: "Table Options",
		Flags:     flags,
	})
	flags = []common.Flag{
		{
			Name: flagBeginName,
			Help: "drop the rows with a time-stamp before this one",
		},
		{
			Name: flagEndName,
			Help: "drop the rows with a time-stamp after this one",
		},
		{
			Name: flagRelativeName,
			Help: "begin and end are seconds since the first row rather than epoch time-stamps",
		},
		{
			Name: flagFullRunName,
			Help: "do not limit SPECjbb2015 results to the response-time curve",
		},
	}
	groups = append(groups, common.FlagGroup{
		GroupName: "Time Window Options",
		Flags:     flags,
	})
	flags = []common.Flag{
		{
			Name: flagFormatName,
			Help: fmt.Sprintf("choose output format(s) from: %s", strings.Join(append([]string{report.FormatAll}, report.FormatOptions...), ", ")),
		},
		{
			Name: flagReportIDsName,
			Help: "comma-separated report IDs overriding the ones in the results, one per result directory",
		},
		{
			Name: flagStdoutName,
			Help: "print the text report to stdout instead of writing report files",
		},
		{
			Name: flagNoProgressBarName,
			Help: "do not show the loading progress",
		},
	}
	groups = append(groups, common.FlagGroup{
		GroupName: "Output Options",
		Flags:     flags,
	})
	return groups
}

func validateFlags(cmd *cobra.Command, args []string) error {
	var err error
	if formats, err = report.ParseFormats(flagFormat); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	cpus = nil
	if flagCPUs != "" {
		if cpus, err = util.SelectiveIntRangeToIntList(flagCPUs); err != nil {
			return common.FlagValidationError(cmd, fmt.Sprintf("bad --%s value: %v", flagCPUsName, err))
		}
	}
	for _, stat := range flagStats {
		if !result.IsSupportedStat(stat) {
			return common.FlagValidationError(cmd, fmt.Sprintf("unsupported statistic '%s'", stat))
		}
	}
	if cmd.Flags().Changed(flagBeginName) || cmd.Flags().Changed(flagEndName) {
		window := dfbuilders.TimeWindow{Begin: flagBegin, End: flagEnd, Relative: flagRelative}
		if err := window.Validate(); err != nil {
			return common.FlagValidationError(cmd, err.Error())
		}
	} else if flagRelative {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s requires --%s or --%s", flagRelativeName, flagBeginName, flagEndName))
	}
	if expressions, err = parseExpressions(flagExpr); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if len(flagReportIDs) > 0 && len(flagReportIDs) != len(args) {
		return common.FlagValidationError(cmd, fmt.Sprintf("got %d report IDs for %d results", len(flagReportIDs), len(args)))
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext := common.GetAppContext(cmd)
	results, err := openResults(cmd, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	reports, err := loadReports(results, cmd.Flags().Changed(flagBeginName) || cmd.Flags().Changed(flagEndName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	if flagStdout {
		return printReports(reports)
	}
	// we have output data so create the output directory
	if err := common.CreateOutputDir(appContext.OutputDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	var reportFilePaths []string
	for _, res := range reports {
		for _, format := range formats {
			outputs, err := report.Create(format, res, report.Options{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				slog.Error(err.Error())
				cmd.SilenceUsage = true
				return err
			}
			for _, out := range outputs {
				reportPath := filepath.Join(appContext.OutputDir, out.Name)
				if err := common.WriteReport(out.Data, reportPath); err != nil {
					cmd.SilenceUsage = true
					return err
				}
				reportFilePaths = append(reportFilePaths, reportPath)
			}
		}
	}
	if len(reportFilePaths) > 0 {
		fmt.Println("Report files:")
	}
	for _, reportFilePath := range reportFilePaths {
		fmt.Printf("  %s\n", reportFilePath)
	}
	return nil
}

func openResults(cmd *cobra.Command, dirs []string) ([]*result.RawResult, error) {
	var results []*result.RawResult
	for i, dir := range dirs {
		reportID := ""
		if len(flagReportIDs) > 0 {
			reportID = flagReportIDs[i]
		}
		res, err := result.Open(dir, reportID)
		if err != nil {
			return nil, err
		}
		if cmd.Flags().Changed(flagBeginName) || cmd.Flags().Changed(flagEndName) {
			if err := res.SetTimeWindow(flagBegin, flagEnd, flagRelative); err != nil {
				return nil, err
			}
		} else if !flagFullRun {
			if err := res.LimitToSPECjbbRTCurve(); err != nil {
				return nil, err
			}
		}
		results = append(results, res)
	}
	if err := result.DedupReportIDs(results); err != nil {
		return nil, err
	}
	return results, nil
}

// loadReports loads the tables of every result concurrently.
func loadReports(results []*result.RawResult, windowed bool) ([]report.Result, error) {
	var spinner *progress.MultiSpinner
	if !flagNoProgressBar {
		spinner = progress.NewMultiSpinner()
		for _, res := range results {
			_ = spinner.AddSpinner(res.ReportID)
		}
		spinner.Start()
		defer spinner.Finish()
	}
	status := func(label, status string) {
		if spinner != nil {
			_ = spinner.Status(label, status)
		}
	}
	reports := make([]report.Result, len(results))
	errs := make([]error, len(results))
	var wg sync.WaitGroup
	for i, res := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = loadReport(res, status)
			if errs[i] != nil {
				status(res.ReportID, "failed")
			} else {
				status(res.ReportID, "loaded")
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if windowed {
		for _, rep := range reports {
			for _, table := range rep.Tables {
				if table.Frame.Len() == 0 {
					slog.Warn("no data within the time window", slog.String("reportid", rep.ReportID), slog.String("stat", table.Name))
				}
			}
		}
	}
	return reports, nil
}

func loadReport(res *result.RawResult, status func(label, status string)) (report.Result, error) {
	rep := report.Result{ReportID: res.ReportID}
	names := flagStats
	if len(names) == 0 {
		for _, name := range res.StatNames() {
			if !result.IsSupportedStat(name) {
				slog.Warn("skipping unsupported statistic", slog.String("reportid", res.ReportID), slog.String("stat", name))
				continue
			}
			names = append(names, name)
		}
	}
	for _, name := range names {
		if !slices.Contains(res.StatNames(), name) {
			slog.Warn("statistic not found in result", slog.String("reportid", res.ReportID), slog.String("stat", name))
			continue
		}
		status(res.ReportID, "loading "+name)
		table, err := res.LoadStat(name, cpus)
		if err != nil {
			return rep, err
		}
		if err := applyExpressions(table, expressions); err != nil {
			return rep, err
		}
		rep.Tables = append(rep.Tables, table)
	}
	return rep, nil
}

func printReports(reports []report.Result) error {
	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	for _, res := range reports {
		outputs, err := report.Create(report.FormatTxt, res, report.Options{Width: width})
		if err != nil {
			return err
		}
		for _, out := range outputs {
			fmt.Print(string(out.Data))
		}
	}
	return nil
}

type namedExpression struct {
	name string
	expr *dataframe.Expression
}

// parseExpressions parses "NAME=EXPR" derived column definitions.
func parseExpressions(values []string) ([]namedExpression, error) {
	var exprs []namedExpression
	for _, value := range values {
		name, text, ok := strings.Cut(value, "=")
		name, text = strings.TrimSpace(name), strings.TrimSpace(text)
		if !ok || name == "" || text == "" {
			return nil, fmt.Errorf("bad --%s value '%s', expected NAME=EXPR", flagExprName, value)
		}
		if dataframe.IsTimeCol(name) {
			return nil, fmt.Errorf("derived column name '%s' is reserved", name)
		}
		expr, err := dataframe.ParseExpression(text)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, namedExpression{name: name, expr: expr})
	}
	return exprs, nil
}

// applyExpressions adds the derived columns whose inputs are all in the table.
func applyExpressions(table *dfbuilders.Table, exprs []namedExpression) error {
	for _, e := range exprs {
		if missing := slices.IndexFunc(e.expr.Vars(), func(v string) bool { return !table.Frame.Has(v) }); missing != -1 {
			slog.Debug("skipping derived column", slog.String("stat", table.Name), slog.String("column", e.name),
				slog.String("missing", e.expr.Vars()[missing]))
			continue
		}
		if err := table.Frame.AddExpressionColumn(e.name, e.expr); err != nil {
			return err
		}
		if scope, metric, scoped := dataframe.SplitColname(e.name); scoped {
			table.Col2Metric[e.name] = metric
			if !table.Defs.Has(metric) {
				table.Defs.Add(&mdc.Definition{Name: metric, Title: metric, Descr: "Computed as " + e.expr.String(),
					Scope: scope})
			}
		}
	}
	return nil
}
