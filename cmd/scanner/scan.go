package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"memsast/internal/config"
	"memsast/internal/logger"
	"memsast/internal/report"
)

// scanOptions scan 命令的参数
type scanOptions struct {
	configPath     string
	format         string
	outputDir      string
	output         string
	workers        int
	timeout        time.Duration
	maxIterations  int
	logLevel       string
	include        []string
	exclude        []string
	disable        []string
	minSeverity    string
	failOnFindings bool
	pretty         bool
	noColor        bool
	timestamp      bool
	verbose        bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Analyse C source files and directories",
		Long: `Analyse every function of the given C files (directories are walked
recursively) and report memory-safety defects.

Exit status is 0 when the run completes, 1 when defects were found and
--fail-on-findings is set, and 2 on usage or I/O errors.

Report formats:
` + formatHelp(),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&opts.format, "format", "f", "text", "Output format (text, json, sarif, all)")
	flags.StringVar(&opts.outputDir, "output-dir", "", "Write report files into this directory instead of stdout")
	flags.StringVarP(&opts.output, "output", "o", "", "Report file name (inside --output-dir, default current directory)")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Number of functions analysed in parallel (default: NumCPU)")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Wall-clock limit per function (0 = no limit)")
	flags.IntVar(&opts.maxIterations, "max-iterations", 10000, "Worklist iteration cap per function (0 = no cap)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")
	flags.StringSliceVar(&opts.include, "include", nil, "Only analyse files whose relative path matches these globs")
	flags.StringSliceVar(&opts.exclude, "exclude", nil, "Skip files and directories whose relative path matches these globs")
	flags.StringSliceVar(&opts.disable, "disable", nil, "Disable rules or detectors by name")
	flags.StringVar(&opts.minSeverity, "min-severity", "", "Drop findings below this severity (low, medium, high, critical)")
	flags.BoolVar(&opts.failOnFindings, "fail-on-findings", false, "Exit with status 1 when defects are found")
	flags.BoolVar(&opts.pretty, "pretty", false, "Indent JSON and SARIF output")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable coloured text output")
	flags.BoolVar(&opts.timestamp, "timestamp", false, "Add a timestamp to report file names")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show function names and state snapshots in text output")
	return cmd
}

// formatHelp 每行一个格式及其说明
func formatHelp() string {
	var sb strings.Builder
	for _, f := range report.SupportedFormats() {
		fmt.Fprintf(&sb, "  %-6s %s\n", f, report.FormatDescription(f))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// applyFlags 命令行上显式给出的参数覆盖配置文件
func applyFlags(cfg *config.Config, flags *pflag.FlagSet, opts *scanOptions) {
	if flags.Changed("format") {
		cfg.Output.Format = opts.format
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = opts.outputDir
	}
	if flags.Changed("output") {
		cfg.Output.File = opts.output
	}
	if flags.Changed("pretty") {
		cfg.Output.Pretty = opts.pretty
	}
	if flags.Changed("no-color") {
		cfg.Output.Color = !opts.noColor
	}
	if flags.Changed("workers") {
		cfg.Analysis.Workers = opts.workers
	}
	if flags.Changed("timeout") {
		cfg.Analysis.Timeout = opts.timeout
	}
	if flags.Changed("max-iterations") {
		cfg.Analysis.MaxIterations = opts.maxIterations
	}
	if flags.Changed("log-level") {
		cfg.Logger.Level = opts.logLevel
	}
	if flags.Changed("include") {
		cfg.Scan.Include = opts.include
	}
	if flags.Changed("exclude") {
		cfg.Scan.Exclude = append(cfg.Scan.Exclude, opts.exclude...)
	}
	if flags.Changed("disable") {
		cfg.Rules.Disabled = append(cfg.Rules.Disabled, opts.disable...)
	}
	if flags.Changed("min-severity") {
		cfg.Rules.MinSeverity = strings.ToLower(opts.minSeverity)
	}
}

func runScan(cmd *cobra.Command, opts *scanOptions, args []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}
	applyFlags(cfg, cmd.Flags(), opts)
	if err := config.Validate(cfg); err != nil {
		return &exitError{code: ExitError, err: err}
	}

	log := logger.NewLoggerWithOutput(cfg, "memsast", cmd.ErrOrStderr())
	scanner, err := NewScanner(cfg, log)
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}

	result, err := scanner.Scan(cmd.Context(), args)
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}

	if err := writeReport(cmd, cfg, opts, result); err != nil {
		return &exitError{code: ExitError, err: err}
	}

	if opts.failOnFindings && result.HasDefects() {
		return &exitError{code: ExitFindings}
	}
	return nil
}

// writeReport 没有指定输出文件时写到 stdout；all 格式总是写文件
func writeReport(cmd *cobra.Command, cfg *config.Config, opts *scanOptions, result *report.ScanResult) error {
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	options := []report.ManagerOption{
		report.WithFormat(format),
		report.WithToolVersion(Version),
	}
	if cfg.Output.Pretty {
		options = append(options, report.WithPretty())
	}
	if cfg.Output.Color {
		options = append(options, report.WithTerminalColor())
	}
	if opts.timestamp {
		options = append(options, report.WithTimestamp())
	}
	if opts.verbose {
		options = append(options, report.WithVerboseText())
	}

	toFiles := cfg.Output.Dir != "" || cfg.Output.File != "" || format == report.FormatAll
	if !toFiles {
		return report.NewManager(options...).Render(result, cmd.OutOrStdout())
	}

	if cfg.Output.Dir != "" {
		options = append(options, report.WithOutputDir(cfg.Output.Dir))
	}
	if cfg.Output.File != "" {
		options = append(options, report.WithFilename(cfg.Output.File))
	}
	files, err := report.NewManager(options...).Generate(result)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", f)
	}
	return nil
}
