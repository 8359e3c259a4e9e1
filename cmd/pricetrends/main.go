package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/idealista-price-trends/config"
	"github.com/aluiziolira/idealista-price-trends/idealista"
	"github.com/aluiziolira/idealista-price-trends/models"
	"github.com/aluiziolira/idealista-price-trends/pipeline"
)

const pushJob = "idealista_price_trends"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.KeyFile, "key-file", cfg.KeyFile, "JSON file holding API_KEY and API_SECRET")
	flag.StringVar(&cfg.LocationsFile, "locations", cfg.LocationsFile, "YAML file mapping location names to idealista ids (built-in list when empty)")
	flag.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path")
	flag.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, or dual")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "Also insert rows into PostgreSQL when set")
	flag.StringVar(&cfg.PushgatewayURL, "pushgateway", cfg.PushgatewayURL, "Prometheus Pushgateway URL (e.g. http://localhost:9091)")
	flag.StringVar(&cfg.Operation, "operation", cfg.Operation, "Search operation: sale or rent")
	flag.StringVar(&cfg.PropertyType, "property-type", cfg.PropertyType, "Search property type")
	flag.StringVar(&cfg.TokenURL, "token-url", cfg.TokenURL, "OAuth token endpoint")
	flag.StringVar(&cfg.SearchURL, "search-url", cfg.SearchURL, "Search endpoint")
	flag.IntVar(&cfg.DedupeMaxSize, "dedupe", cfg.DedupeMaxSize, "Drop repeated property codes, remembering up to N per location (0 disables)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")

	flag.Parse()
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	locations, err := config.LoadLocations(cfg.LocationsFile)
	if err != nil {
		slog.Error("loading locations", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := config.LoadCredentials(cfg.KeyFile)
	if err != nil {
		slog.Debug("continuing without credentials", slog.Any("error", err))
	}

	client, err := idealista.NewClient(cfg)
	if err != nil {
		slog.Error("initialising client", slog.Any("error", err))
		os.Exit(1)
	}

	token, err := client.Token(ctx, creds)
	if err != nil {
		os.Exit(1)
	}

	writer, err := createWriter(ctx, cfg)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping after the current page")
	}()

	timestamp := time.Now()
	p := pipeline.New(client, writer, client.Metrics)
	result, runErr := p.Run(ctx, token, locations, timestamp)
	result.RequestCount, result.PageCount, result.ErrorsByType = mergeStats(client, result.ErrorsByType)
	if runErr != nil {
		slog.Error("run interrupted", slog.Any("error", runErr))
	} else {
		client.Metrics.MarkSuccess(result.EndTime)
	}

	if len(result.Rows) > 0 {
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		if err := client.Metrics.Push(pushCtx, cfg.PushgatewayURL, pushJob); err != nil {
			slog.Error("metrics push failed", slog.Any("error", err))
		}
		cancel()
	}

	if cfg.Verbose {
		printSummary(result, cfg.OutputFile)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// applyEnv overrides cfg with IDEALISTA_* variables. Flags parsed later win.
func applyEnv(cfg *config.Config) error {
	strs := map[string]*string{
		"IDEALISTA_KEY_FILE":     &cfg.KeyFile,
		"IDEALISTA_LOCATIONS":    &cfg.LocationsFile,
		"IDEALISTA_OUTPUT":       &cfg.OutputFile,
		"IDEALISTA_FORMAT":       &cfg.OutputFormat,
		"IDEALISTA_POSTGRES_DSN": &cfg.PostgresDSN,
		"IDEALISTA_PUSHGATEWAY":  &cfg.PushgatewayURL,
		"IDEALISTA_OPERATION":    &cfg.Operation,
		"IDEALISTA_TOKEN_URL":    &cfg.TokenURL,
		"IDEALISTA_SEARCH_URL":   &cfg.SearchURL,
	}
	for key, dst := range strs {
		if value, ok := config.EnvString(key); ok {
			*dst = value
		}
	}

	if value, ok, err := config.EnvInt("IDEALISTA_DEDUPE"); err != nil {
		return fmt.Errorf("invalid IDEALISTA_DEDUPE: %w", err)
	} else if ok {
		cfg.DedupeMaxSize = value
	}
	if value, ok, err := config.EnvInt("IDEALISTA_TIMEOUT_SECONDS"); err != nil {
		return fmt.Errorf("invalid IDEALISTA_TIMEOUT_SECONDS: %w", err)
	} else if ok {
		cfg.Timeout = time.Duration(value) * time.Second
	}
	if value, ok, err := config.EnvBool("IDEALISTA_VERBOSE"); err != nil {
		return fmt.Errorf("invalid IDEALISTA_VERBOSE: %w", err)
	} else if ok {
		cfg.Verbose = value
	}
	return nil
}

func createWriter(ctx context.Context, cfg *config.Config) (pipeline.Persister, error) {
	var sinks []pipeline.Persister
	switch cfg.OutputFormat {
	case "json":
		w, err := pipeline.NewJSONWriter(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	case "csv":
		w, err := pipeline.NewCSVWriter(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	case "dual":
		csvWriter, err := pipeline.NewCSVWriter(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		jsonWriter, err := pipeline.NewJSONWriter(strings.TrimSuffix(cfg.OutputFile, ".csv") + ".jsonl")
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, csvWriter, jsonWriter)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}

	if cfg.PostgresDSN != "" {
		pg, err := pipeline.NewPostgresWriter(ctx, cfg.PostgresDSN, pipeline.DefaultTable)
		if err != nil {
			return nil, errors.Join(err, pipeline.NewMultiWriter(sinks...).Close())
		}
		sinks = append(sinks, pg)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return pipeline.NewMultiWriter(sinks...), nil
}

func mergeStats(client *idealista.Client, runErrors map[string]int) (requests, pages int, merged map[string]int) {
	requests, pages, merged = client.Stats()
	for k, v := range runErrors {
		merged[k] += v
	}
	return requests, pages, merged
}

func printSummary(result *models.RunResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Run complete")
	fmt.Printf("  Locations:     %d written\n", len(result.Rows))
	fmt.Printf("  Listings:      %d\n", result.ListingCount)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	if len(result.PartialLocations) > 0 {
		fmt.Printf("  Partial:       %v\n", result.PartialLocations)
	}
	if len(result.PersistFailures) > 0 {
		fmt.Printf("  Not written:   %v\n", result.PersistFailures)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
