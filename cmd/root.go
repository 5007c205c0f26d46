// Package cmd provides the command line interface for the application.
package cmd

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"statscollect/cmd/collect"
	"statscollect/cmd/report"
	"statscollect/cmd/serve"
	"statscollect/internal/common"
	"statscollect/internal/util"

	"github.com/spf13/cobra"
)

var gLogFile *os.File

// gVersion is set at build time: -ldflags "-X statscollect/cmd.gVersion=<version>"
var gVersion = "dev"

var examples = []string{
	fmt.Sprintf("  Sample interrupts on this system:            $ %s collect --output ./run1 --duration 60s", common.AppName),
	fmt.Sprintf("  Tabulate the statistics of raw results:      $ %s report ./run1 ./run2", common.AppName),
	fmt.Sprintf("  Export the statistics to Prometheus:         $ %s serve ./run1 --listen :9464", common.AppName),
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:                common.AppName,
	Short:              common.AppName,
	Long:               fmt.Sprintf(`%s collects system statistics and turns raw statistics results (turbostat, interrupts, IPMI, AC power) into normalized tables.`, common.AppName),
	Example:            strings.Join(examples, "\n"),
	PersistentPreRunE:  initializeApplication,
	PersistentPostRunE: terminateApplication,
	Version:            gVersion,
}

var (
	// logging
	flagDebug     bool
	flagSyslog    bool
	flagLogStdOut bool
	// output
	flagOutputDir string
)

const (
	flagDebugName     = "debug"
	flagSyslogName    = "syslog"
	flagLogStdOutName = "log-stdout"
	flagOutputDirName = "output"
)

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{}) // block the help command
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.AddGroup([]*cobra.Group{{ID: "primary", Title: "Commands:"}}...)
	rootCmd.AddCommand(collect.Cmd)
	rootCmd.AddCommand(report.Cmd)
	rootCmd.AddCommand(serve.Cmd)
	// Global (persistent) flags
	rootCmd.PersistentFlags().BoolVar(&flagDebug, flagDebugName, false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagSyslog, flagSyslogName, false, "write logs to syslog instead of a file")
	rootCmd.PersistentFlags().BoolVar(&flagLogStdOut, flagLogStdOutName, false, "write logs to stdout")
	rootCmd.PersistentFlags().StringVar(&flagOutputDir, flagOutputDirName, "", "override the output directory")
	rootCmd.MarkFlagsMutuallyExclusive(flagSyslogName, flagLogStdOutName)
}

// Execute runs the command selected on the command line and exits with status 1 on failure.
func Execute() {
	cobra.EnableCommandSorting = false
	cobra.EnableCaseInsensitive = true
	err := rootCmd.Execute()
	if err != nil {
		terminateErr := terminateApplication(rootCmd, os.Args)
		if terminateErr != nil {
			slog.Error("Error terminating application", slog.String("error", terminateErr.Error()))
			fmt.Printf("Error: %v\n", terminateErr)
		}
		os.Exit(1)
	}
}

func initializeApplication(cmd *cobra.Command, args []string) error {
	timestamp := time.Now().Local().Format("2006-01-02_15-04-05")
	// the output directory is created by the commands that need one
	outputDirName := flagOutputDir
	if outputDirName == "" {
		outputDirName = common.AppName + "_" + timestamp
	}
	outputDir, err := util.AbsPath(outputDirName)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory '%s': %w", outputDirName, err)
	}
	logOpts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if flagDebug {
		logOpts.Level = slog.LevelDebug
		logOpts.AddSource = true
	}
	var target logTarget
	switch {
	case flagSyslog:
		target = logToSyslog
	case flagLogStdOut:
		target = logToStdout
	default:
		target = logToFile
	}
	handler, logFile, err := newLogHandler(target, common.AppName+".log", logOpts)
	if err != nil {
		return err
	}
	gLogFile = logFile
	slog.SetDefault(slog.New(handler))
	slog.Info("Starting up", slog.String("app", common.AppName), slog.String("version", gVersion),
		slog.Int("PID", os.Getpid()), slog.String("arguments", strings.Join(os.Args, " ")))
	var logFilePath string
	if gLogFile != nil {
		logFilePath = gLogFile.Name()
	}
	cmd.Parent().SetContext(context.WithValue(context.Background(), common.AppContext{}, common.AppContext{
		Timestamp:   timestamp,
		OutputDir:   outputDir,
		LogFilePath: logFilePath,
		Version:     gVersion,
		Debug:       flagDebug,
	}))
	return nil
}

type logTarget int

const (
	logToFile logTarget = iota
	logToSyslog
	logToStdout
)

// newLogHandler returns the slog handler for target. The returned file is the opened log file
// when logging to a file, nil otherwise.
func newLogHandler(target logTarget, logPath string, opts *slog.HandlerOptions) (slog.Handler, *os.File, error) {
	switch target {
	case logToSyslog:
		handler, err := NewSyslogHandler(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create syslog handler: %w", err)
		}
		return handler, nil, nil
	case logToStdout:
		return slog.NewJSONHandler(os.Stdout, opts), nil, nil
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G302
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return slog.NewTextHandler(logFile, opts), logFile, nil
}

// terminateApplication closes the log file
func terminateApplication(cmd *cobra.Command, args []string) error {
	slog.Info("Shutting down", slog.String("app", common.AppName), slog.String("version", gVersion), slog.Int("PID", os.Getpid()), slog.String("arguments", strings.Join(os.Args, " ")))
	if gLogFile != nil {
		err := gLogFile.Close()
		gLogFile = nil
		if err != nil {
			slog.Error("error closing log file", slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}

// SyslogHandler is a slog.Handler writing logfmt style records to the local syslog daemon.
type SyslogHandler struct {
	writer    *syslog.Writer
	level     slog.Leveler
	addSource bool
	attrs     []slog.Attr
}

func NewSyslogHandler(opts *slog.HandlerOptions) (*SyslogHandler, error) {
	writer, err := syslog.New(syslog.LOG_INFO|syslog.LOG_USER, filepath.Base(os.Args[0]))
	if err != nil {
		return nil, err
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return &SyslogHandler{writer: writer, level: level, addSource: opts.AddSource}, nil
}

func (h *SyslogHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := formatSyslogRecord(r, h.attrs, h.addSource)
	switch {
	case r.Level >= slog.LevelError:
		return h.writer.Err(msg)
	case r.Level >= slog.LevelWarn:
		return h.writer.Warning(msg)
	case r.Level >= slog.LevelInfo:
		return h.writer.Info(msg)
	default:
		return h.writer.Debug(msg)
	}
}

// formatSyslogRecord renders r as 'level=... [source=file:line] msg="..." key="value"...'.
func formatSyslogRecord(r slog.Record, attrs []slog.Attr, addSource bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "level=%s", r.Level)
	if addSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fmt.Fprintf(&sb, " source=%s:%d", filepath.Base(frame.File), frame.Line)
	}
	fmt.Fprintf(&sb, " msg=%q", r.Message)
	writeAttr := func(attr slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%q", attr.Key, attr.Value.String())
		return true
	}
	for _, attr := range attrs {
		writeAttr(attr)
	}
	r.Attrs(writeAttr)
	return sb.String()
}

func (h *SyslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clone(h.attrs), attrs...)
	return &clone
}

// WithGroup is not supported, group attributes are written without the group name.
func (h *SyslogHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *SyslogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}
