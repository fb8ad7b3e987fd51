package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clawster/clawster/pkg/provision"
	"github.com/clawster/clawster/pkg/stores"
	"github.com/clawster/clawster/pkg/target"
	"github.com/clawster/clawster/pkg/telemetry"
)

// runtime bundles everything a command invocation needs: the parsed config,
// telemetry, the instance registry, and the concrete deployment target.
type runtime struct {
	cfg     *FileConfig
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	store   stores.Store
	target  target.DeploymentTarget
	kind    target.Kind
}

// newRuntime loads the config file and wires telemetry, the registry, and
// the deployment target.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	tcfg := telemetryConfig(cfg)
	logger, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if tcfg.Metrics.Enabled {
		metrics.StartMetricsServer()
	}
	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tgt, err := buildTarget(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		store:   store,
		target:  tgt,
		kind:    target.Kind(cfg.Target),
	}, nil
}

func telemetryConfig(cfg *FileConfig) *telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	s := cfg.Telemetry

	if verbose {
		tcfg.Logging.Level = "debug"
	} else if s.LogLevel != "" {
		tcfg.Logging.Level = s.LogLevel
	}
	if s.LogFormat != "" {
		tcfg.Logging.Format = s.LogFormat
	}
	if s.LogOutput != "" {
		tcfg.Logging.Output = s.LogOutput
	}

	tcfg.Metrics.Enabled = s.MetricsEnabled
	if s.MetricsListen != "" {
		tcfg.Metrics.ListenAddress = s.MetricsListen
	}

	tcfg.Tracing.Enabled = s.TracingEnabled
	if s.TracingExporter != "" {
		tcfg.Tracing.Exporter = s.TracingExporter
	}
	if s.TracingEndpoint != "" {
		tcfg.Tracing.Endpoint = s.TracingEndpoint
	}
	if s.SamplingRate > 0 {
		tcfg.Tracing.SamplingRate = s.SamplingRate
	}
	return tcfg
}

func openStore(ctx context.Context, cfg *FileConfig) (stores.Store, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Close flushes telemetry and closes the registry.
func (r *runtime) Close(ctx context.Context) {
	if err := r.tracer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("tracer shutdown failed")
	}
	if err := r.store.Close(); err != nil {
		log.Warn().Err(err).Msg("registry close failed")
	}
}

// instanceID derives the stable registry ID for this (profile, target).
func (r *runtime) instanceID() string {
	return provision.DeterministicID("instance", r.cfg.Profile, string(r.kind))
}

// recordEvent appends a lifecycle event; registry write failures are logged
// but never fail the operation that triggered them.
func (r *runtime) recordEvent(ctx context.Context, operation string, success bool, detail string) {
	err := r.store.RecordEvent(ctx, &stores.Event{
		InstanceID: r.instanceID(),
		Operation:  operation,
		Success:    success,
		Detail:     detail,
	})
	if err != nil {
		log.Warn().Err(err).Str("operation", operation).Msg("failed to record lifecycle event")
	}
}

// updateState records the observed state, preserving the stored endpoint.
// Registry write failures are logged, never propagated.
func (r *runtime) updateState(ctx context.Context, state string) {
	endpoint := ""
	if inst, err := r.store.GetInstance(ctx, r.cfg.Profile, string(r.kind)); err == nil {
		endpoint = inst.Endpoint
	}
	if err := r.store.UpdateInstanceState(ctx, r.instanceID(), state, endpoint); err != nil {
		log.Debug().Err(err).Msg("failed to update instance state")
	}
}

// run executes one lifecycle operation with tracing, metrics, and event
// bookkeeping around it.
func (r *runtime) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := r.tracer.StartLifecycleSpan(ctx, string(r.kind), r.cfg.Profile, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		r.metrics.RecordLifecycleOp(string(r.kind), operation, "failure", time.Since(start))
		r.recordEvent(ctx, operation, false, err.Error())
		return err
	}
	telemetry.RecordSuccess(span)
	r.metrics.RecordLifecycleOp(string(r.kind), operation, "success", time.Since(start))
	r.recordEvent(ctx, operation, true, "")
	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
