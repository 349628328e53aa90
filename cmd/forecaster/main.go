package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"revenue-forecaster/internal/api"
	"revenue-forecaster/internal/audit"
	"revenue-forecaster/internal/cfg"
	"revenue-forecaster/internal/common"
	"revenue-forecaster/internal/features"
	"revenue-forecaster/internal/metrics"
	"revenue-forecaster/internal/pipeline"
	"revenue-forecaster/internal/records"
	"revenue-forecaster/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `Usage: forecaster <command> [flags]

Commands:
  features   build the monthly feature table and write it as CSV
  train      train all candidates and save the selected artifact
  predict    forecast next-month revenue with the saved artifact
  import     load a consolidated CSV into the record database
  log        print the audit log
  serve      serve the HTTP API, /health and /metrics

Run 'forecaster <command> -h' for command flags.
`

// app holds the components shared by every command. The database is opened
// only when a command needs it.
type app struct {
	settings cfg.Settings
	metrics  *metrics.Metrics
	store    *storage.Store
	sink     *audit.FileSink
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{settings: c, metrics: metrics.New()}
	defer a.close()

	switch command {
	case "features":
		err = a.runFeatures(ctx, args)
	case "train":
		err = a.runTrain(ctx, args)
	case "predict":
		err = a.runPredict(ctx, args)
	case "import":
		err = a.runImport(ctx, args)
	case "log":
		err = a.runLog(args)
	case "serve", "serve-metrics":
		err = a.runServe(ctx, args)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func (a *app) close() {
	if a.sink != nil {
		a.sink.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) database() (*storage.Store, error) {
	if a.store == nil {
		store, err := storage.New(a.settings.DataPath)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	return a.store, nil
}

// source picks the record source: an explicit kind, else the remote URL when
// configured, else the consolidated CSV.
func (a *app) source(kind, csvPath string) (records.Source, error) {
	if kind == "" {
		kind = "csv"
		if a.settings.RecordsURL != "" {
			kind = "http"
		}
	}
	if csvPath == "" {
		csvPath = a.settings.RecordsFile
	}

	switch kind {
	case "csv":
		return records.NewCSVSource(csvPath), nil
	case "http":
		if a.settings.RecordsURL == "" {
			return nil, fmt.Errorf("%s is not set", common.EnvRecordsURL)
		}
		return records.NewHTTPSource(a.settings.RecordsURL, a.settings.HTTPTimeout), nil
	case "bolt":
		store, err := a.database()
		if err != nil {
			return nil, err
		}
		return storage.NewRecordSource(store), nil
	default:
		return nil, fmt.Errorf("unknown record source %q (want csv, http or bolt)", kind)
	}
}

func (a *app) service() (*pipeline.Service, error) {
	var artifacts storage.ArtifactStore
	switch a.settings.ArtifactBackend {
	case common.BackendBolt:
		store, err := a.database()
		if err != nil {
			return nil, err
		}
		artifacts = storage.NewBoltArtifactStore(store)
	default:
		artifacts = storage.NewFileArtifactStore()
	}

	if a.sink == nil {
		sink, err := audit.NewFileSink(a.settings.AuditLogPath)
		if err != nil {
			return nil, err
		}
		a.sink = sink
	}

	return pipeline.NewService(a.settings, pipeline.Deps{
		Store:   artifacts,
		Sink:    audit.MultiSink{a.sink, audit.LogSink{}},
		Metrics: metrics.NewWrapper(a.metrics),
	})
}

type sourceFlags struct {
	kind string
	csv  string
}

func (f *sourceFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.kind, "source", "", "Record source: csv, http or bolt (default csv, or http when RECORDS_URL is set)")
	fs.StringVar(&f.csv, "csv", "", "Consolidated records CSV (default from config)")
}

func (a *app) runFeatures(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	var src sourceFlags
	src.register(fs)
	out := fs.String("out", filepath.Join(a.settings.DataPath, "monthly_features.csv"), "Output CSV path, or - for stdout")
	fs.Parse(args)

	source, err := a.source(src.kind, src.csv)
	if err != nil {
		return err
	}
	recs, err := source.Load(ctx)
	if err != nil {
		return err
	}
	table, err := features.NewBuilder(metrics.NewWrapper(a.metrics)).Build(recs)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
			return err
		}
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := features.WriteCSV(w, table); err != nil {
		return err
	}

	log.Info().Int("rows", table.Len()).Str("out", *out).Msg("Feature table written")
	return nil
}

func (a *app) runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var src sourceFlags
	src.register(fs)
	location := fs.String("location", a.settings.ArtifactPath, "Artifact location")
	fs.Parse(args)

	source, err := a.source(src.kind, src.csv)
	if err != nil {
		return err
	}
	svc, err := a.service()
	if err != nil {
		return err
	}

	result, err := svc.Run(ctx, source, *location)
	if err != nil {
		return err
	}

	fmt.Printf("model=%s best=%s rows=%d run=%s\n", result.Location, result.Selected, result.Rows, result.RunID)
	for _, id := range common.CandidateOrder() {
		if mae, ok := result.MAE[id]; ok {
			fmt.Printf("  mae[%s]=%.4f\n", id, mae)
		}
	}
	return nil
}

func (a *app) runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	var src sourceFlags
	src.register(fs)
	location := fs.String("location", a.settings.ArtifactPath, "Artifact location")
	fs.Parse(args)

	source, err := a.source(src.kind, src.csv)
	if err != nil {
		return err
	}
	svc, err := a.service()
	if err != nil {
		return err
	}

	value, err := svc.Forecast(ctx, source, *location)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: run 'forecaster train' first", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%.2f\n", value)
	return nil
}

func (a *app) runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	csvPath := fs.String("csv", a.settings.RecordsFile, "Consolidated records CSV to import")
	appendRecords := fs.Bool("append", false, "Append to the stored records instead of replacing them")
	fs.Parse(args)

	recs, err := records.NewCSVSource(*csvPath).Load(ctx)
	if err != nil {
		return err
	}
	store, err := a.database()
	if err != nil {
		return err
	}

	if *appendRecords {
		err = store.StoreRecords(ctx, recs)
	} else {
		err = store.ReplaceRecords(ctx, recs)
	}
	if err != nil {
		return err
	}

	n, err := store.Count()
	if err != nil {
		return err
	}
	log.Info().Int("imported", len(recs)).Int("stored", n).Bool("append", *appendRecords).Msg("Records imported")
	return nil
}

func (a *app) runLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	path := fs.String("path", a.settings.AuditLogPath, "Audit log path")
	fs.Parse(args)

	text, err := audit.ReadAll(*path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		fmt.Println("(audit log is empty)")
		return nil
	}
	fmt.Print(text)
	return nil
}

func (a *app) runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var src sourceFlags
	src.register(fs)
	port := fs.Int("port", a.settings.MetricsPort, "Listen port")
	location := fs.String("location", a.settings.ArtifactPath, "Artifact location")
	fs.Parse(args)

	source, err := a.source(src.kind, src.csv)
	if err != nil {
		return err
	}
	svc, err := a.service()
	if err != nil {
		return err
	}

	server := api.NewServer(svc, source, api.Options{
		Port:         *port,
		Location:     *location,
		AuditLogPath: a.settings.AuditLogPath,
	})
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	return server.Stop()
}
