package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/config"
	"github.com/northquay/leadex/internal/db"
	dbRedis "github.com/northquay/leadex/internal/db/redis"
	"github.com/northquay/leadex/internal/domain/record"
	"github.com/northquay/leadex/internal/export"
	logpkg "github.com/northquay/leadex/internal/logger"
	"github.com/northquay/leadex/internal/metrics"
	"github.com/northquay/leadex/internal/repository/progress"
	"github.com/northquay/leadex/internal/repository/seen"
	chiTransport "github.com/northquay/leadex/internal/transport/chi"
	openaiTransport "github.com/northquay/leadex/internal/transport/openai"
	"github.com/northquay/leadex/internal/transport/places"
	classifyuc "github.com/northquay/leadex/internal/usecase/classify"
	"github.com/northquay/leadex/internal/usecase/dedupe"
	reportuc "github.com/northquay/leadex/internal/usecase/report"
	scrapeuc "github.com/northquay/leadex/internal/usecase/scrape"
	"github.com/northquay/leadex/internal/version"
)

func main() {
	fresh := flag.Bool("fresh", false, "discard stored classification progress before running")
	forceClassify := flag.Bool("classify", false, "enable classification regardless of config")
	noClassify := flag.Bool("no-classify", false, "skip the classification phase")
	resumeFrom := flag.String("resume", "", "skip scrape and resolution, reload canonical listings from this CSV")
	outDir := flag.String("out", "", "override the export directory")
	flag.Parse()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if *outDir != "" {
		cfg.Export.Dir = *outDir
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()[:8]
	logger.Info("Starting leadex pipeline",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("run_id", runID),
		zap.Int("countries", len(cfg.Search.Countries)),
	)

	metrics.RegisterPipelineMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional storage: resume and seen-window stores.
	var store db.Store
	var seenStore *seen.Store
	var progressStore *progress.Store
	if len(cfg.Storage.Addrs) > 0 {
		redisStore, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Storage.Addrs,
			Password: cfg.Storage.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create store", zap.Error(err))
		}
		defer redisStore.Close()

		if err := redisStore.WaitForReady(ctx, time.Duration(cfg.Storage.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Store not ready", zap.Error(err))
		}
		logger.Info("Connected to store", zap.Strings("addrs", cfg.Storage.Addrs))

		store = redisStore
		seenStore = seen.New(redisStore, cfg.Storage.KeyPrefix, time.Duration(cfg.Storage.SeenTTLHours)*time.Hour)
		progressStore = progress.New(redisStore, cfg.Storage.KeyPrefix)

		if *fresh {
			if err := progressStore.Clear(ctx); err != nil {
				logger.Fatal("Failed to clear progress", zap.Error(err))
			}
			logger.Info("Cleared stored classification progress")
		}
	} else {
		logger.Info("Storage disabled, running stateless")
	}

	track := newTracker(runID)

	if cfg.Status.Enabled {
		srv := chiTransport.NewServer(
			fmt.Sprintf(":%d", cfg.Status.Port), track.snapshot, pinger(store), logger)
		srv.Start()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	var records []record.Record
	var result dedupe.Result

	if *resumeFrom != "" {
		cans, err := loadCanonical(*resumeFrom)
		if err != nil {
			logger.Fatal("Failed to reload canonical listings", zap.Error(err))
		}
		logger.Info("Resumed from canonical export",
			zap.String("path", *resumeFrom), zap.Int("canonical", len(cans)))
		result = dedupe.Result{Canonical: cans, Audit: map[string]string{}}
		track.set(func(s *chiTransport.Status) { s.Canonical = len(cans) })
	} else {
		records, result = scrapeAndResolve(ctx, cfg, seenStore, track, logger)
	}

	// Phase 3: classification.
	if (cfg.Classify.Enabled || *forceClassify) && !*noClassify {
		track.set(func(s *chiTransport.Status) { s.Phase = "classify" })

		classifier := openaiTransport.NewClassifier(&openaiTransport.Config{
			APIKey:      cfg.Classify.APIKey,
			BaseURL:     cfg.Classify.BaseURL,
			Model:       cfg.Classify.Model,
			Temperature: cfg.Classify.Temperature,
			Logger:      logger,
		})
		classifySvc, err := classifyuc.New(classifier, progressAdapter(progressStore), classifyuc.Config{
			RequestsPerMin: cfg.Classify.RequestsPerMin,
			SaveEvery:      cfg.Classify.SaveEvery,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create classifier", zap.Error(err))
		}
		classifySvc.Progress = func(done int) {
			track.set(func(s *chiTransport.Status) { s.Classified = done })
		}

		if err := classifySvc.Run(ctx, result.Canonical); err != nil {
			logger.Warn("Classification ended early", zap.Error(err))
		}
	}

	// Phase 4: report and exports.
	track.set(func(s *chiTransport.Status) { s.Phase = "export" })

	summary := reportuc.Build(result.Canonical, cfg.Export.TopN)
	if err := reportuc.Write(os.Stdout, summary); err != nil {
		logger.Error("Failed to write report", zap.Error(err))
	}

	if err := writeExports(cfg.Export, runID, records, result, logger); err != nil {
		logger.Fatal("Export failed", zap.Error(err))
	}

	logger.Info("Pipeline finished",
		zap.String("run_id", runID),
		zap.Int("listings", len(records)),
		zap.Int("canonical", len(result.Canonical)),
		zap.Int("merged", result.Merged),
	)
}

// scrapeAndResolve runs the harvest and entity-resolution phases.
func scrapeAndResolve(
	ctx context.Context,
	cfg config.Config,
	seenStore *seen.Store,
	track *tracker,
	logger *zap.Logger,
) ([]record.Record, dedupe.Result) {
	track.set(func(s *chiTransport.Status) { s.Phase = "scrape" })

	searcher := placesSearcher{client: places.NewClient(&places.Config{
		APIKey:            cfg.Scraper.APIKey,
		BaseURL:           cfg.Scraper.BaseURL,
		MaxPages:          cfg.Scraper.MaxPagesPerQuery,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		JitterMax:         time.Duration(cfg.Scraper.JitterMaxMs) * time.Millisecond,
		Timeout:           time.Duration(cfg.Scraper.TimeoutSec) * time.Second,
		Logger:            logger,
	})}

	scraper, err := scrapeuc.New(searcher, seenAdapter(seenStore), plan(cfg.Search), logger)
	if err != nil {
		logger.Fatal("Failed to create scraper", zap.Error(err))
	}
	scraper.Progress = func(country string, harvested int) {
		track.set(func(s *chiTransport.Status) {
			s.Country = country
			s.Scraped = harvested
		})
	}

	records, err := scraper.Run(ctx)
	if err != nil {
		if len(records) == 0 {
			logger.Fatal("Scrape failed with no listings", zap.Error(err))
		}
		logger.Warn("Scrape ended early, continuing with partial listings",
			zap.Int("listings", len(records)), zap.Error(err))
	}

	// Phase 2: entity resolution.
	track.set(func(s *chiTransport.Status) { s.Phase = "dedupe" })

	engine, err := dedupe.New(dedupe.Config{
		NameWeight:      cfg.Dedupe.NameWeight,
		PhoneWeight:     cfg.Dedupe.PhoneWeight,
		WebsiteWeight:   cfg.Dedupe.WebsiteWeight,
		DistanceWeight:  cfg.Dedupe.DistanceWeight,
		Threshold:       cfg.Dedupe.Threshold,
		BlockPrefixLen:  cfg.Dedupe.BlockPrefixLen,
		GeoRadiusMeters: cfg.Dedupe.GeoRadiusMeters,
		Workers:         cfg.Dedupe.Workers,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create resolution engine", zap.Error(err))
	}

	start := time.Now()
	result := engine.Resolve(records)
	metrics.DedupeDuration.Observe(time.Since(start).Seconds())
	metrics.DedupeRecordsTotal.WithLabelValues("input").Set(float64(len(records)))
	metrics.DedupeRecordsTotal.WithLabelValues("canonical").Set(float64(len(result.Canonical)))
	metrics.DedupeRecordsTotal.WithLabelValues("skipped").Set(float64(len(result.Skipped)))
	metrics.DedupePairsComparedTotal.Add(float64(result.PairsCompared))

	track.set(func(s *chiTransport.Status) { s.Canonical = len(result.Canonical) })

	return records, result
}

// loadCanonical reloads a previous run's canonical export for a resumed run.
func loadCanonical(path string) ([]record.Canonical, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return export.ReadCanonicalCSV(f)
}

// writeExports writes the canonical CSV always, plus the raw listings and
// audit mapping for live runs, and XLSX and Parquet when enabled.
func writeExports(cfg config.ExportConfig, runID string, records []record.Record, result dedupe.Result, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	write := func(name string, fn func(f *os.File) error) error {
		path := filepath.Join(cfg.Dir, name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		if err := fn(f); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		logger.Info("Export written", zap.String("path", path))
		return nil
	}

	if len(records) > 0 {
		if err := write("raw_"+runID+".csv", func(f *os.File) error {
			return export.WriteRecordsCSV(f, records)
		}); err != nil {
			return err
		}
	}
	if err := write("leads_"+runID+".csv", func(f *os.File) error {
		return export.WriteCanonicalCSV(f, result.Canonical)
	}); err != nil {
		return err
	}
	if len(result.Audit) > 0 {
		if err := write("audit_"+runID+".csv", func(f *os.File) error {
			return export.WriteAuditCSV(f, result.Audit)
		}); err != nil {
			return err
		}
	}
	if cfg.XLSX {
		if err := write("leads_"+runID+".xlsx", func(f *os.File) error {
			return export.WriteXLSX(f, result.Canonical)
		}); err != nil {
			return err
		}
	}
	if cfg.Parquet {
		if err := write("leads_"+runID+".parquet", func(f *os.File) error {
			return export.WriteParquet(f, result.Canonical)
		}); err != nil {
			return err
		}
	}
	return nil
}

// plan maps the config search plan onto the scrape use case types.
func plan(search config.SearchConfig) []scrapeuc.CountryPlan {
	out := make([]scrapeuc.CountryPlan, 0, len(search.Countries))
	for _, c := range search.Countries {
		cp := scrapeuc.CountryPlan{Name: c.Name, Queries: c.Queries}
		for _, l := range c.Locations {
			cp.Locations = append(cp.Locations, scrapeuc.Location{
				Name: l.Name, Lat: l.Lat, Lng: l.Lng, RadiusKm: l.RadiusKm,
			})
		}
		out = append(out, cp)
	}
	return out
}

// placesSearcher adapts the places transport to the scrape contract.
type placesSearcher struct {
	client *places.Client
}

func (p placesSearcher) Search(ctx context.Context, q scrapeuc.Query) ([]record.Record, error) {
	return p.client.Search(ctx, places.SearchRequest{
		Query:    q.Text,
		Lat:      q.Lat,
		Lng:      q.Lng,
		RadiusKm: q.RadiusKm,
		Country:  q.Country,
	})
}

// seenAdapter keeps the nil-disables-store contract across a typed nil.
func seenAdapter(s *seen.Store) scrapeuc.SeenStore {
	if s == nil {
		return nil
	}
	return s
}

func progressAdapter(s *progress.Store) classifyuc.ProgressStore {
	if s == nil {
		return nil
	}
	return s
}

func pinger(store db.Store) db.Pinger {
	if store == nil {
		return nil
	}
	return store
}

// tracker holds the status snapshot served by the listener.
type tracker struct {
	mu sync.Mutex
	st chiTransport.Status
}

func newTracker(runID string) *tracker {
	return &tracker{st: chiTransport.Status{
		RunID:     runID,
		Phase:     "starting",
		StartedAt: time.Now().UTC(),
	}}
}

func (t *tracker) set(fn func(*chiTransport.Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.st)
}

func (t *tracker) snapshot() chiTransport.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}
