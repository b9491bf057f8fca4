package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/quebec-foncier/ocrworkerd/internal/adminserver"
	"github.com/quebec-foncier/ocrworkerd/internal/capacity"
	"github.com/quebec-foncier/ocrworkerd/internal/config"
	"github.com/quebec-foncier/ocrworkerd/internal/eventlog"
	"github.com/quebec-foncier/ocrworkerd/internal/healthmonitor"
	"github.com/quebec-foncier/ocrworkerd/internal/jobmonitor"
	"github.com/quebec-foncier/ocrworkerd/internal/kv"
	"github.com/quebec-foncier/ocrworkerd/internal/metrics"
	"github.com/quebec-foncier/ocrworkerd/internal/objectstore"
	acte "github.com/quebec-foncier/ocrworkerd/internal/pipeline/acte"
	index "github.com/quebec-foncier/ocrworkerd/internal/pipeline/index"
	"github.com/quebec-foncier/ocrworkerd/internal/pool"
	"github.com/quebec-foncier/ocrworkerd/internal/processor"
	"github.com/quebec-foncier/ocrworkerd/internal/providers"
	"github.com/quebec-foncier/ocrworkerd/internal/ratebudget"
	"github.com/quebec-foncier/ocrworkerd/internal/store"
	"github.com/quebec-foncier/ocrworkerd/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the worker pool",
	Long: `Start the ocrworkerd worker pool.

This connects to every configured Postgres environment, runs pending
migrations, starts one claim-loop goroutine per pool worker, and brings
up the Pool Manager's rebalance loop, the Health Monitor's reclamation
sweep, the metrics collector, and the read-only admin HTTP surface.

When the process receives SIGINT or SIGTERM, the shared context is
cancelled and the process exits once the admin server has shut down.
In-flight jobs are not awaited; their claims stay at OcrInProgress until
a Health Monitor sweep reclaims them.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: GetLogLevel()}))

	homeDir, err := ocrworkerdHome()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return fmt.Errorf("serve: create home dir: %w", err)
	}

	configFile := cfgFile
	if configFile == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configFile = "config.yaml"
		} else {
			configFile = filepath.Join(homeDir, "config.yaml")
		}
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logger.Info("creating default config", "path", configFile)
		if err := config.WriteDefault(configFile); err != nil {
			logger.Warn("failed to write default config", "error", err)
		}
	}

	cfgMgr, err := config.NewManager(configFile)
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}
	cfgMgr.WatchConfig()
	cfg := cfgMgr.Get()

	if len(cfg.Environments) == 0 {
		return fmt.Errorf("serve: no environments configured in %s", configFile)
	}

	kvStore := kv.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := kvStore.Ping(ctx); err != nil {
		return fmt.Errorf("serve: redis unreachable: %w", err)
	}

	rateLimits := make(map[string]ratebudget.Limit, len(cfg.Rate.Providers))
	providerNames := make([]string, 0, len(cfg.Rate.Providers))
	for name, p := range cfg.Rate.Providers {
		rateLimits[name] = ratebudget.Limit{RPM: p.RPM, TPM: p.TPM}
		providerNames = append(providerNames, name)
	}
	rateBudget := ratebudget.New(kvStore, rateLimits)

	capClasses := make(map[string]capacity.Class, len(cfg.Capacity.Classes))
	classNames := make([]string, 0, len(cfg.Capacity.Classes))
	for name, c := range cfg.Capacity.Classes {
		capClasses[name] = capacity.Class{CPU: c.CPU, RAM: c.RAM}
		classNames = append(classNames, name)
	}
	capBudget := capacity.New(kvStore, capacity.ServerCapacity{
		CPUMax:      cfg.Capacity.CPUMax,
		RAMMax:      cfg.Capacity.RAMMax,
		CPUReserved: cfg.Capacity.CPUReserved,
		RAMReserved: cfg.Capacity.RAMReserved,
	}, capClasses)

	registry, err := providers.NewRegistryFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("serve: provider registry: %w", err)
	}
	registry.SetLogger(logger)
	cfgMgr.OnChange(func(c *config.Config) {
		if err := registry.Reload(c); err != nil {
			logger.Error("serve: provider registry reload failed", "error", err)
		}
	})

	objStore, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Endpoint:  cfg.ObjectStore.Endpoint,
		Region:    cfg.ObjectStore.Region,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
	})
	if err != nil {
		return fmt.Errorf("serve: object store: %w", err)
	}

	eventFile, err := os.OpenFile(filepath.Join(homeDir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("serve: open event log: %w", err)
	}
	events := eventlog.New(eventFile)

	proc := processor.New(processor.Config{
		MaxProviderRetries: cfg.Pipeline.MaxProviderRetries,
		RetryBaseDelay:     cfg.Pipeline.RetryBaseDelay,
		MaxContinuations:   cfg.Pipeline.MaxContinuations,
	}, registry, events, logger)

	indexPipeline := index.New(index.Config{
		Prompts:               index.Prompts{ExtractPage: indexExtractPrompt, BoostDoc: boostDocPrompt},
		RenderDPI:              cfg.Pipeline.PDFRenderDPI,
		CallOpts:               providers.CallOpts{Temperature: 0},
		EstimateTokensPerPage:  2000,
	}, objStore, proc, rateBudget, events, logger)

	actePipeline := acte.New(acte.Config{
		Prompts:          acte.Prompts{ExtractDoc: acteExtractPrompt, BoostDoc: boostDocPrompt},
		CallOpts:         providers.CallOpts{Temperature: 0},
		FileAwaitTimeout: cfg.Pipeline.FileAwaitTimeout,
	}, objStore, proc, logger)

	var envs []store.Environment
	poolManagers := make(map[string]*pool.Manager)
	for _, ec := range cfg.Environments {
		if err := store.Migrate(ctx, ec.DSN); err != nil {
			return fmt.Errorf("serve: migrate environment %s: %w", ec.Name, err)
		}
		st, err := store.New(ctx, ec.DSN)
		if err != nil {
			return fmt.Errorf("serve: connect environment %s: %w", ec.Name, err)
		}
		defer st.Close()

		envs = append(envs, store.Environment{
			Name:        ec.Name,
			Store:       st,
			IndexBucket: ec.IndexBucket,
			ActesBucket: ec.ActesBucket,
			PlansBucket: ec.PlansCadBucket,
		})
		poolManagers[ec.Name] = pool.New(pool.Config{
			PoolSize:           cfg.Pool.TotalWorkers,
			MinIndexWorkers:    cfg.Pool.MinIndexWorkers,
			MinActeWorkers:     cfg.Pool.MinActeWorkers,
			RebalanceThreshold: cfg.Pool.RebalanceThreshold,
		}, st, st)
	}
	ring := store.NewEnvironmentRing(envs)

	// Each worker slot is bound to one environment for its lifetime,
	// assigned round-robin at startup per SPEC_FULL.md §9 — simpler than
	// switching environments mid-poll, and still spreads workers evenly
	// across every configured Postgres DSN.
	for i := 0; i < cfg.Pool.TotalWorkers; i++ {
		env := ring.Next()
		workerID := fmt.Sprintf("worker-%d-%s", i, env.Name)

		dir, err := worker.New("", workerID)
		if err != nil {
			return fmt.Errorf("serve: worker dir for %s: %w", workerID, err)
		}
		if err := dir.EnsureExists(); err != nil {
			return fmt.Errorf("serve: worker dir for %s: %w", workerID, err)
		}

		monitor := jobmonitor.New(jobmonitor.Config{
			WorkerID:       workerID,
			PollInterval:   5 * time.Second,
			IdleCloseAfter: 5 * time.Minute,
			Provider:       providerNames[0],
		}, env.Store, poolManagers[env.Name], jobmonitor.Pipelines{
			Index: indexPipeline,
			Acte:  actePipeline,
		}, jobmonitor.Buckets{
			Index: env.IndexBucket,
			Acte:  env.ActesBucket,
		}, dir, logger.With("worker_id", workerID))

		go func() {
			if err := monitor.Run(ctx); err != nil {
				logger.Error("worker monitor exited", "worker_id", workerID, "error", err)
			}
		}()
	}

	for _, env := range envs {
		hm := healthmonitor.New(healthmonitor.Config{
			CheckInterval:  cfg.Health.SweepEvery,
			StaleThreshold: cfg.Health.StaleJobThreshold,
			DeadThreshold:  cfg.Health.WorkerDeadThreshold,
		}, env.Store, logger.With("environment", env.Name))
		go func() {
			if err := hm.Run(ctx); err != nil {
				logger.Error("health monitor exited", "environment", env.Name, "error", err)
			}
		}()
	}

	for _, env := range envs {
		pm := poolManagers[env.Name]
		go func() {
			ticker := time.NewTicker(max(cfg.Pool.RebalanceEvery, time.Second))
			defer ticker.Stop()
			for range ticker.C {
				if ctx.Err() != nil {
					return
				}
				if _, _, err := pm.Rebalance(ctx); err != nil {
					logger.Error("pool rebalance failed", "environment", env.Name, "error", err)
				}
			}
		}()
	}

	metricsReg := metrics.New(prometheus.DefaultRegisterer)
	for _, env := range envs {
		collector := metrics.NewCollector(metricsReg, rateBudget, providerNames, capBudget, classNames, poolManagers[env.Name], 15*time.Second, logger.With("environment", env.Name))
		go func() {
			if err := collector.Run(ctx); err != nil {
				logger.Error("metrics collector exited", "environment", env.Name, "error", err)
			}
		}()
	}

	admin := adminserver.New(adminserver.Config{
		Addr:      cfg.Admin.Addr,
		Store:     envs[0].Store,
		Pool:      poolManagers[envs[0].Name],
		RateBudg:  rateBudget,
		Providers: providerNames,
		CapBudg:   capBudget,
		Classes:   classNames,
		Logger:    logger,
	})

	logger.Info("ocrworkerd started", "environments", len(envs), "workers", cfg.Pool.TotalWorkers)
	return admin.Run(ctx)
}

func ocrworkerdHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("serve: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".ocrworkerd"), nil
}

const (
	indexExtractPrompt = "Extract every field visible on this land-registry index page verbatim, preserving Option 1/Option 2 confidence annotations."
	acteExtractPrompt  = "Extract the full text of this acte document verbatim, page by page."
	boostDocPrompt     = "Reconcile and correct the extracted text against the source document, fixing OCR errors without inventing content."
)
