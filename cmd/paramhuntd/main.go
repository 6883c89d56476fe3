package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paramhunt/paramhunt/internal/scan/common/clock"
	"github.com/paramhunt/paramhunt/internal/scan/common/log"
	"github.com/paramhunt/paramhunt/internal/scan/domain"
	"github.com/paramhunt/paramhunt/internal/scan/gateways/differ"
	"github.com/paramhunt/paramhunt/internal/scan/gateways/probe"
	"github.com/paramhunt/paramhunt/internal/scan/infra/config"
	"github.com/paramhunt/paramhunt/internal/scan/repos/checkpoint"
	"github.com/paramhunt/paramhunt/internal/scan/repos/dictionary"
	"github.com/paramhunt/paramhunt/internal/scan/services/bisector"
	"github.com/paramhunt/paramhunt/internal/scan/services/dispatcher"
	"github.com/paramhunt/paramhunt/internal/scan/services/ledger"
	"github.com/paramhunt/paramhunt/internal/scan/services/writer"
)

const (
	version = "0.1.0-dev"
	appName = "paramhuntd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds every component of a single scan run.
type Application struct {
	config     *config.ScanConfig
	dispatcher *dispatcher.Dispatcher
	ledger     *ledger.Ledger
	writer     *writer.FileWriter
	checkpoint *checkpoint.Store
	dictionary domain.Chunk
	scanID     string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":     version,
		"env":         cfg.Env,
		"target_url":  cfg.TargetURL,
		"concurrency": cfg.Concurrency,
	}, "Starting paramhunt scan")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Failed to build application")
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Scan failed")
	}

	stats := app.ledger.Stats()
	found := app.ledger.Found()
	log.Info(map[string]any{
		"found":                 len(found),
		"requests_sent":         stats.RequestsSent,
		"control_requests_sent": stats.ControlRequestsSent,
		"noise_diffs_absorbed":  stats.NoiseDiffsAbsorbed,
	}, "Scan complete")
}

// buildApplication constructs every collaborator and wires them into a
// dispatcher ready to run.
func buildApplication(cfg *config.ScanConfig) (*Application, error) {
	logger := log.GetLogger()
	clk := clock.RealClock{}

	dict, err := dictionary.Load(cfg.DictionaryPath)
	if err != nil {
		return nil, fmt.Errorf("load dictionary: %w", err)
	}
	log.Info(map[string]any{"candidates": len(dict), "path": cfg.DictionaryPath}, "Dictionary loaded")

	scanID := scanIdentifier(cfg)

	var cp *checkpoint.Store
	var resumedFound []domain.FoundParameter
	if cfg.CheckpointPath != "" {
		cp, err = checkpoint.Open(cfg.CheckpointPath)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		resumedFound, err = cp.LoadFound(scanID)
		if err != nil {
			return nil, fmt.Errorf("load checkpointed findings: %w", err)
		}
	}

	fileWriter, err := writer.New(cfg.OutputPath, checkpointAdapter(cp), clk)
	if err != nil {
		return nil, fmt.Errorf("open findings writer: %w", err)
	}

	template := domain.RequestTemplate{
		Method:  cfg.Method,
		URL:     cfg.TargetURL,
		Headers: map[string]string{},
	}

	builder, err := probe.NewBuilder(probe.Options{
		Template: template,
		Timeout:  cfg.Timeout,
		ProxyURL: cfg.ProxyURL,
		Retries:  cfg.Retries,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build probe builder: %w", err)
	}

	baseline, err := builder.New(nil).WrappedSend(context.Background())
	if err != nil {
		return nil, fmt.Errorf("capture baseline response: %w", err)
	}
	log.Info(map[string]any{"status_code": baseline.Code, "body_length": baseline.BodyLength()}, "Baseline response captured")

	// Rebuild the probe builder now that the baseline is known, so
	// EmptyResponse substitutions carry it.
	builder, err = probe.NewBuilder(probe.Options{
		Template: template,
		Baseline: baseline,
		Timeout:  cfg.Timeout,
		ProxyURL: cfg.ProxyURL,
		Retries:  cfg.Retries,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild probe builder: %w", err)
	}

	led := ledger.New(nil, uint64(len(dict)))
	for _, f := range resumedFound {
		led.AppendIfAbsent(f, cfg.Strict)
	}

	b := bisector.New(bisector.Options{
		Builder:  builder,
		Differ:   differ.New(),
		Writer:   fileWriter,
		Ledger:   led,
		Logger:   logger,
		Baseline: baseline,
		Stable: domain.StableFlags{
			Reflections: cfg.StableReflections,
			Body:        cfg.StableBody,
		},
		Flags: domain.ScanFlags{
			ReflectedOnly: cfg.ReflectedOnly,
			Strict:        cfg.Strict,
		},
		ScanID:    scanID,
		TargetURL: cfg.TargetURL,
	})

	dispatchOpts := dispatcher.Options{
		Bisector:    b,
		Logger:      logger,
		Concurrency: cfg.Concurrency,
		MaxChunk:    cfg.MaxChunkSize,
		ScanID:      scanID,
	}
	if cp != nil {
		dispatchOpts.Checkpoint = cp
		dispatchOpts.ChunkKey = checkpoint.ChunkKey
	}

	return &Application{
		config:     cfg,
		dispatcher: dispatcher.New(dispatchOpts),
		ledger:     led,
		writer:     fileWriter,
		checkpoint: cp,
		dictionary: dict,
		scanID:     scanID,
	}, nil
}

// Run dispatches the full dictionary and blocks until the scan completes or
// ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	return app.dispatcher.Run(ctx, app.dictionary)
}

// Close releases every resource the application opened.
func (app *Application) Close() {
	if err := app.writer.Close(); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error closing findings writer")
	}
	if app.checkpoint != nil {
		if err := app.checkpoint.Close(); err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "Error closing checkpoint store")
		}
	}
}

// scanIdentifier returns cfg.ScanID when the operator set one explicitly, or
// else a deterministic fingerprint of TargetURL and DictionaryPath. Deriving
// it from wall-clock time would give every invocation a fresh namespace and
// break resume, since a restarted scan could never match a prior scan ID.
func scanIdentifier(cfg *config.ScanConfig) string {
	if cfg.ScanID != "" {
		return cfg.ScanID
	}
	sum := sha256.Sum256([]byte(cfg.TargetURL + "\x00" + cfg.DictionaryPath))
	return hex.EncodeToString(sum[:])
}

// checkpointAdapter narrows a possibly-nil *checkpoint.Store to the writer's
// Checkpoint interface, letting FileWriter.New take a plain nil to disable
// resume support without the interface/pointer nil-comparison pitfall.
func checkpointAdapter(cp *checkpoint.Store) writer.Checkpoint {
	if cp == nil {
		return nil
	}
	return cp
}
