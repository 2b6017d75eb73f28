package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/cache"
	"github.com/fisatech/datasheet-harvester/internal/cache/disk"
	"github.com/fisatech/datasheet-harvester/internal/cache/memory"
	"github.com/fisatech/datasheet-harvester/internal/clock/system"
	"github.com/fisatech/datasheet-harvester/internal/config"
	"github.com/fisatech/datasheet-harvester/internal/engine"
	"github.com/fisatech/datasheet-harvester/internal/harvester"
	"github.com/fisatech/datasheet-harvester/internal/hash/sha256"
	"github.com/fisatech/datasheet-harvester/internal/logging"
	"github.com/fisatech/datasheet-harvester/internal/strategy"
	"github.com/fisatech/datasheet-harvester/internal/strategy/aidoc"
	"github.com/fisatech/datasheet-harvester/internal/strategy/rendered"
	"github.com/fisatech/datasheet-harvester/internal/strategy/static"
	"github.com/fisatech/datasheet-harvester/internal/telemetry"
)

// runtime bundles the wired service graph behind the CLI commands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	engine *engine.Engine
	cache  *cache.Tiered

	closers []func()
}

// buildRuntime loads config and wires cache tiers, strategies and engine.
func buildRuntime(cfgPath string) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	telemetry.Init()

	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() {
		_ = logger.Sync()
	})

	clk := system.New()
	hasher := sha256.New()

	mem := memory.New(memory.Config{
		Capacity: cfg.Cache.MemoryCapacity,
		TTL:      cfg.MemoryTTL(),
	}, clk)
	store, err := disk.New(disk.Config{
		Dir: cfg.Cache.Dir,
		TTL: cfg.CacheTTL(),
	}, hasher, clk, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	rt.closers = append(rt.closers, func() {
		_ = store.Close()
	})
	rt.cache = cache.NewTiered(mem, store, logger)

	// Registration order matters: the last strategy is the universal
	// fallback, so static goes last.
	var strategies []harvester.Strategy
	if cfg.Rendered.Enabled {
		rs, err := rendered.New(rendered.Config{
			MaxParallel:       cfg.Rendered.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			Hosts:             cfg.Rendered.Hosts,
		}, clk, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("init rendered strategy: %w", err)
		}
		rt.closers = append(rt.closers, rs.Close)
		strategies = append(strategies, rs)
	}
	if cfg.AI.Enabled {
		analyzer, err := aidoc.NewAnthropicAnalyzer(aidoc.AnthropicConfig{
			APIKey: cfg.AI.APIKey,
			Model:  cfg.AI.Model,
		}, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("init analyzer: %w", err)
		}
		as, err := aidoc.New(aidoc.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.HTTPTimeout(),
		}, analyzer, clk, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("init ai strategy: %w", err)
		}
		strategies = append(strategies, as)
	}
	strategies = append(strategies, static.New(static.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
		PoolSize:  cfg.HTTP.PoolSize,
	}, clk, logger))

	selector, err := strategy.NewSelector(cfg.Engine.PreferAI, strategies...)
	if err != nil {
		rt.Close()
		return nil, err
	}

	eng, err := engine.New(engine.Config{
		ConcurrentRequests: cfg.Engine.ConcurrentRequests,
		RetryAttempts:      cfg.Engine.RetryAttempts,
		RetryDelay:         cfg.RetryDelay(),
		RequestsPerSecond:  cfg.Engine.RequestsPerSecond,
		RateBurst:          cfg.Engine.RateBurst,
	}, selector, rt.cache, clk, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = eng

	return rt, nil
}

// Close tears the runtime down in reverse construction order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
