package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/JeffersonLab/mya-getter/pkg/logger"
	"github.com/JeffersonLab/mya-getter/pkg/metrics"
	"github.com/JeffersonLab/mya-getter/pkg/mya"
	"github.com/JeffersonLab/mya-getter/pkg/trips"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	samplerCmdEnvVar = "MYA_SAMPLER_CMD"
	dataCmdEnvVar    = "MYA_DATA_CMD"
	myqueryURLEnvVar = "MYQUERY_URL"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `A tool for making many archiver queries in parallel.

Usage:
  mya-getter mysampler  Run mySampler on a generated set of queries
  mya-getter mydata     Run myData on a generated set of queries
  mya-getter config     Run the queries described by a JSON config file
  mya-getter trips      Extract combined down-state intervals for a PV list

Run 'mya-getter <subcommand> --help' for the subcommand's flags.
`)
}

func run() error {
	if len(os.Args) < 2 {
		usage()
		return fmt.Errorf("a subcommand is required")
	}

	// godotenv does not override existing env vars, so process env and
	// explicit exports take precedence.
	_ = godotenv.Load()

	initSentry()
	defer sentry.Flush(2 * time.Second)

	var err error
	switch os.Args[1] {
	case "mysampler":
		err = runMySampler(os.Args[2:])
	case "mydata":
		err = runMyData(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "trips":
		err = runTrips(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unrecognized subcommand %q", os.Args[1])
	}

	if err != nil {
		sentry.CaptureException(err)
	}
	return err
}

// initSentry enables error reporting when SENTRY_DSN is set, and is a no-op
// otherwise.
func initSentry() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return
	}
	release := version
	if commit != "none" {
		release = version + "-" + commit
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Sentry initialization failed: %v\n", err)
	}
}

type commonOpts struct {
	verbose     bool
	outputFile  string
	maxWorkers  int
	metricsAddr string
	pvList      []string
	pvFile      string
}

func addCommonFlags(fs *flag.FlagSet, o *commonOpts) {
	fs.BoolVar(&o.verbose, "verbose", false, "enable verbose (debug) logging")
	fs.StringVarP(&o.outputFile, "output-file", "o", "", "file where CSV output is saved (required)")
	fs.IntVar(&o.maxWorkers, "max-workers", mya.DefaultMaxWorkers, "maximum number of concurrent archiver queries")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (disabled when empty)")
}

func addPVFlags(fs *flag.FlagSet, o *commonOpts) {
	fs.StringSliceVarP(&o.pvList, "pv-list", "p", nil, "comma separated list of PVs to query")
	fs.StringVarP(&o.pvFile, "pv-file", "f", "", "path to a file containing PVs to query, one per line")
}

// setup builds the logger and signal-aware context shared by every
// subcommand, and starts the optional metrics listener.
func (o *commonOpts) setup() (context.Context, context.CancelFunc, *slog.Logger, error) {
	if o.outputFile == "" {
		return nil, nil, nil, fmt.Errorf("--output-file is required")
	}

	log := logger.New(o.verbose).With("run_id", uuid.New().String())
	log.Info("mya-getter starting", "version", version, "commit", commit)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal", "signal", sig.String())
		cancel()
	}()

	if o.metricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", o.metricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	return ctx, cancel, log, nil
}

// resolvePVs returns the PV list from either the inline flag or the file
// flag; exactly one must be given.
func resolvePVs(o *commonOpts) ([]string, error) {
	if (len(o.pvList) == 0) == (o.pvFile == "") {
		return nil, fmt.Errorf("exactly one of --pv-list and --pv-file is required")
	}
	if len(o.pvList) > 0 {
		return o.pvList, nil
	}

	raw, err := os.ReadFile(o.pvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read pv file: %w", err)
	}
	var pvs []string
	for _, line := range strings.Split(string(raw), "\n") {
		if pv := strings.TrimSpace(line); pv != "" {
			pvs = append(pvs, pv)
		}
	}
	if len(pvs) == 0 {
		return nil, fmt.Errorf("pv file %s contains no PVs", o.pvFile)
	}
	return pvs, nil
}

// parseTime accepts the date/time shapes the archiver tools do.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

func samplerCmdPath() string {
	if p := os.Getenv(samplerCmdEnvVar); p != "" {
		return p
	}
	return mya.DefaultSamplerCmd
}

func dataCmdPath() string {
	if p := os.Getenv(dataCmdEnvVar); p != "" {
		return p
	}
	return mya.DefaultDataCmd
}

func myqueryURL() string {
	if u := os.Getenv(myqueryURLEnvVar); u != "" {
		return u
	}
	return mya.DefaultMyQueryURL
}

func runMySampler(args []string) error {
	var o commonOpts
	fs := flag.NewFlagSet("mysampler", flag.ContinueOnError)
	addCommonFlags(fs, &o)
	addPVFlags(fs, &o)
	beginFlag := fs.StringP("begin", "b", "", "the start time from which all queries are offset")
	numSamplesFlag := fs.IntP("num-samples", "n", 0, "the number of samples for each query")
	sampleIntervalFlag := fs.StringP("sample-interval", "i", "", `the interval between samples in mySampler terms, e.g. "1s"`)
	queryIntervalFlag := fs.IntP("query-interval", "q", 0, "the time between the start of successive queries in seconds")
	numQueriesFlag := fs.Int("num-queries", 0, "the number of queries to make, each spaced --query-interval from the last")
	deploymentFlag := fs.StringP("deployment", "m", "", "the archiver deployment to query")
	webFlag := fs.Bool("web", false, "use the myquery web endpoint instead of the mySampler CLI")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel, log, err := o.setup()
	if err != nil {
		return err
	}
	defer cancel()

	pvs, err := resolvePVs(&o)
	if err != nil {
		return err
	}
	begin, err := parseTime(*beginFlag)
	if err != nil {
		return err
	}

	queries := mya.GenerateSamplerQueries(begin, *sampleIntervalFlag, *numSamplesFlag,
		time.Duration(*queryIntervalFlag)*time.Second, *numQueriesFlag, pvs)
	for i := range queries {
		queries[i].Deployment = *deploymentFlag
	}
	// Surface a bad interval spec before launching anything.
	if len(queries) > 0 {
		if _, err := queries[0].IntervalMillis(); err != nil {
			return err
		}
	}

	fetch := samplerFetch(*webFlag, log)
	batch, err := mya.DoParallelQueries(ctx, mya.BatchConfig{Logger: log, MaxWorkers: o.maxWorkers}, fetch, queries)
	if err != nil {
		return err
	}

	return writeBatch(log, batch, o.outputFile)
}

func samplerFetch(web bool, log *slog.Logger) func(context.Context, mya.SamplerQuery) (*mya.Table, error) {
	if web {
		return (&mya.SamplerWeb{URL: myqueryURL(), Log: log}).Fetch
	}
	return (&mya.SamplerCLI{Cmd: samplerCmdPath(), Log: log}).Fetch
}

func runMyData(args []string) error {
	var o commonOpts
	fs := flag.NewFlagSet("mydata", flag.ContinueOnError)
	addCommonFlags(fs, &o)
	addPVFlags(fs, &o)
	beginFlag := fs.StringP("begin", "b", "", "the start time from which all queries are offset")
	durationFlag := fs.IntP("duration", "d", 0, "the duration in seconds of each query, end = begin + duration")
	queryIntervalFlag := fs.IntP("query-interval", "q", 0, "the time between the start of successive queries in seconds")
	numQueriesFlag := fs.Int("num-queries", 0, "the number of queries to make, each spaced --query-interval from the last")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel, log, err := o.setup()
	if err != nil {
		return err
	}
	defer cancel()

	pvs, err := resolvePVs(&o)
	if err != nil {
		return err
	}
	begin, err := parseTime(*beginFlag)
	if err != nil {
		return err
	}

	queries := mya.GenerateDataQueries(begin, time.Duration(*durationFlag)*time.Second,
		time.Duration(*queryIntervalFlag)*time.Second, *numQueriesFlag, pvs)

	fetch := (&mya.DataCLI{Cmd: dataCmdPath(), Log: log}).Fetch
	batch, err := mya.DoParallelQueries(ctx, mya.BatchConfig{Logger: log, MaxWorkers: o.maxWorkers}, fetch, queries)
	if err != nil {
		return err
	}

	return writeBatch(log, batch, o.outputFile)
}

func runConfig(args []string) error {
	var o commonOpts
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	addCommonFlags(fs, &o)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("config requires exactly one query config file argument")
	}

	ctx, cancel, log, err := o.setup()
	if err != nil {
		return err
	}
	defer cancel()

	set, err := mya.LoadQueryFile(fs.Arg(0))
	if err != nil {
		return err
	}

	cfg := mya.BatchConfig{Logger: log, MaxWorkers: o.maxWorkers}
	var batch *mya.Batch
	switch {
	case len(set.Sampler) > 0:
		batch, err = mya.DoParallelQueries(ctx, cfg, (&mya.SamplerCLI{Cmd: samplerCmdPath(), Log: log}).Fetch, set.Sampler)
	case len(set.Data) > 0:
		batch, err = mya.DoParallelQueries(ctx, cfg, (&mya.DataCLI{Cmd: dataCmdPath(), Log: log}).Fetch, set.Data)
	default:
		return fmt.Errorf("query config %s contains no queries", fs.Arg(0))
	}
	if err != nil {
		return err
	}

	return writeBatch(log, batch, o.outputFile)
}

func runTrips(args []string) error {
	var o commonOpts
	fs := flag.NewFlagSet("trips", flag.ContinueOnError)
	addCommonFlags(fs, &o)
	addPVFlags(fs, &o)
	beginFlag := fs.StringP("begin", "b", "", "the start of the query range")
	endFlag := fs.StringP("end", "e", "", "the end of the query range")
	onStateFlag := fs.Float64("on-state", 1, "the value that represents the up state")
	offStateFlag := fs.Float64("off-state", 0, "the value that represents the down state")
	maxDurationFlag := fs.Duration("max-duration", 0, "drop individual PV intervals longer than this (0 keeps all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel, log, err := o.setup()
	if err != nil {
		return err
	}
	defer cancel()

	pvs, err := resolvePVs(&o)
	if err != nil {
		return err
	}
	begin, err := parseTime(*beginFlag)
	if err != nil {
		return err
	}
	end, err := parseTime(*endFlag)
	if err != nil {
		return err
	}

	cfg := trips.Config{
		Logger:      log,
		Source:      &mya.DataCLI{Cmd: dataCmdPath(), Log: log},
		OnState:     *onStateFlag,
		OffState:    *offStateFlag,
		MaxDuration: *maxDurationFlag,
		Agg:         trips.AggConfig{Channel: joinChannels},
	}

	collapsed, diags, err := trips.CombinedDownStateIntervals(ctx, cfg, pvs, begin, end)
	if err != nil {
		return err
	}
	log.Info("trips: extraction complete", "intervals", len(collapsed), "diagnostics", len(diags))

	return writeTrips(log, collapsed, o.outputFile)
}

// joinChannels merges the channel names contributing to a collapsed
// interval, dropping consecutive duplicates from the sorted group.
func joinChannels(channels []string) string {
	var parts []string
	for _, c := range channels {
		if len(parts) == 0 || parts[len(parts)-1] != c {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "+")
}

func writeBatch(log *slog.Logger, batch *mya.Batch, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := batch.WriteCSV(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Info("wrote output", "file", path, "rows", batch.NumRows())
	return nil
}

func writeTrips(log *slog.Logger, intervals []trips.Interval, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"pv", "start", "end", "duration_seconds"}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	for _, iv := range intervals {
		record := []string{
			iv.Channel,
			iv.Start.Format("2006-01-02 15:04:05"),
			iv.End.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%g", iv.Duration().Seconds()),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	log.Info("wrote output", "file", path, "intervals", len(intervals))
	return nil
}
