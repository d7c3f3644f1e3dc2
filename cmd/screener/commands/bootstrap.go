package commands

import (
	"fmt"

	"github.com/tradelens/screener/internal/breadth"
	"github.com/tradelens/screener/internal/marketdata"
	"github.com/tradelens/screener/internal/metrics"
	"github.com/tradelens/screener/internal/pipeline"
	"github.com/tradelens/screener/internal/sector"
	"github.com/tradelens/screener/pkg/config"
	"github.com/tradelens/screener/pkg/database"
	"github.com/tradelens/screener/pkg/logger"
	"github.com/tradelens/screener/pkg/redis"
)

// app bundles the wiring shared by the CLI commands
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	redis *redis.Client

	bars         *marketdata.BarRepository
	refs         *marketdata.ReferenceRepository
	metricsStore *metrics.Store
	sectorRepo   *sector.Repository
	breadthRepo  *breadth.Repository

	progress *pipeline.Broadcaster
	engine   *pipeline.Engine
}

// newApp loads configuration and connects the shared infrastructure
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	a := &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		redis:        redisClient,
		bars:         marketdata.NewBarRepository(db.Pool),
		refs:         marketdata.NewReferenceRepository(db.Pool),
		metricsStore: metrics.NewStore(db.Pool, cfg.Pipeline.WriteRetries, cfg.Pipeline.WriteRetryDelay, log),
		sectorRepo:   sector.NewRepository(db.Pool),
		breadthRepo:  breadth.NewRepository(db.Pool),
		progress:     pipeline.NewBroadcaster(),
	}

	a.engine = pipeline.NewEngine(
		a.bars, a.refs, a.metricsStore, a.sectorRepo, a.breadthRepo,
		a.progress,
		pipeline.Config{
			Workers:            cfg.Pipeline.Workers,
			LookbackBars:       cfg.Pipeline.LookbackBars,
			SectorLookbackDays: cfg.Pipeline.SectorLookbackDays,
		},
		log,
	)

	return a, nil
}

// Close releases the app's connections
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
