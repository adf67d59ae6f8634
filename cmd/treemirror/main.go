package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jgivc/treemirror/internal/app"
	"github.com/jgivc/treemirror/internal/config"
	"github.com/spf13/pflag"
)

const (
	exitOK = iota
	exitFatal
	exitUsage
	exitPartial
)

type options struct {
	cfgPath    string
	outDir     string
	workers    int
	timeout    time.Duration
	retries    int
	format     string
	reportFile string
	ref        string
	url        string

	flags *pflag.FlagSet
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}

	fs := pflag.NewFlagSet("treemirror", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: treemirror [flags] <repository url>\n\n")
		fs.PrintDefaults()
	}

	fs.StringVarP(&o.cfgPath, "config", "c", "config.yml", "path to config file")
	fs.StringVarP(&o.outDir, "out", "o", "", "output directory (default: a new temp dir)")
	fs.IntVarP(&o.workers, "workers", "w", 8, "concurrent downloads")
	fs.DurationVar(&o.timeout, "timeout", 30*time.Second, "per request timeout")
	fs.IntVar(&o.retries, "retries", 0, "retries per request")
	fs.StringVarP(&o.format, "format", "f", config.FormatText, "report format: text, yaml, markdown or html")
	fs.StringVar(&o.reportFile, "report-file", "", "write the report to this file instead of stdout")
	fs.StringVar(&o.ref, "ref", "", "ref path segment, e.g. branch/main")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		o.url = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected one repository url, got %d arguments", fs.NArg())
	}

	o.flags = fs

	return o, nil
}

// apply overrides config values with the flags given on the command line.
func (o *options) apply(cfg *config.Config) {
	if o.url != "" {
		cfg.Repository.URL = o.url
	}

	if o.flags.Changed("out") {
		cfg.Download.OutDir = o.outDir
	}

	if o.flags.Changed("workers") {
		cfg.Download.Workers = o.workers
	}

	if o.flags.Changed("timeout") {
		cfg.HTTP.Timeout = o.timeout
	}

	if o.flags.Changed("retries") {
		cfg.Download.Retries = o.retries
	}

	if o.flags.Changed("format") {
		cfg.Report.Format = o.format
	}

	if o.flags.Changed("report-file") {
		cfg.Report.File = o.reportFile
	}

	if o.flags.Changed("ref") {
		cfg.Repository.Ref = o.ref
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}

		fmt.Fprintln(stderr, err)

		return exitUsage
	}

	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)

		return exitUsage
	}

	o.apply(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		o.flags.Usage()

		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, stdout)
	if err := a.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Cannot start: %s\n", err)

		return exitFatal
	}
	defer a.Stop()

	report, err := a.Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Cannot mirror repository: %s\n", err)

		return exitFatal
	}

	if report.Failed() {
		return exitPartial
	}

	return exitOK
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
