package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxel-light/internal/api"
	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/cache"
	"github.com/annel0/voxel-light/internal/config"
	"github.com/annel0/voxel-light/internal/eventbus"
	"github.com/annel0/voxel-light/internal/light"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/observability"
	"github.com/annel0/voxel-light/internal/pipeline"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/terrain"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logging.InitDefaultLogger("server", cfg.LoggingOptions()); err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logging.CloseDefaultLogger()
	logging.GetLoggerManager().Configure(cfg.LoggingOptions())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("server stopped with error: %v", err)
		os.Exit(1)
	}
	logging.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry := block.Default()
	if cfg.Blocks.Path != "" {
		if registry, err = block.LoadRegistry(cfg.Blocks.Path); err != nil {
			return err
		}
	}
	logging.Info("block registry: %d blocks", registry.Len())

	var store *storage.ChunkStore
	if cfg.Storage.InMemory {
		store, err = storage.OpenInMemory()
	} else {
		store, err = storage.OpenChunkStore(cfg.Storage.Path)
	}
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()
	exporter := eventbus.NewMetricsExporter(bus, reg, 5*time.Second)
	exporter.Start()
	defer exporter.Stop()
	eventbus.Init(bus)
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		return err
	}

	chunkCache, err := openCache(cfg, store)
	if err != nil {
		return err
	}
	defer chunkCache.Close()

	engine := light.NewEngine(registry, cfg.LightParams())
	lighter := light.NewLighter(engine, cfg.Light.Concurrency, light.NewMetrics(reg))
	defer lighter.Stop()

	manager := world.NewManager(cfg.WorldManager(), engine, terrain.NewGenerator(cfg.Terrain),
		world.WithStore(store),
		world.WithCache(chunkCache),
		world.WithEventBus(bus),
		world.WithLighter(lighter),
		world.WithMetrics(world.NewMetrics(reg)),
		world.WithPipelineMetrics(pipeline.NewMetrics(reg)),
	)
	defer manager.Close(context.Background())

	if rc, ok := chunkCache.(*cache.RedisChunkCache); ok {
		err := rc.OnInvalidate(ctx, func(coords vec.Vec2) {
			if manager.Evict(coords) {
				logging.Debug("chunk %s evicted by remote invalidation", vec.ChunkName(coords))
			}
		})
		if err != nil {
			return err
		}
	}

	if err := manager.RequestArea(ctx, vec.Vec2{}, cfg.World.SpawnRadius); err != nil {
		return err
	}

	server := api.NewRestServer(api.Config{
		Port:       fmt.Sprintf(":%d", cfg.API.GetAPIPort()),
		World:      manager,
		Registerer: reg,
		Gatherer:   reg,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.RunPipeline(gctx, cfg.Pipeline.TickInterval) })
	g.Go(func() error { return manager.RunLightUpdates(gctx, cfg.Light.FlushInterval) })
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Storage.SaveEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				manager.Save(gctx)
			}
		}
	})

	logging.Info("voxel-light node %s started: api=:%d chunk=%dx%d light radius=%d",
		cfg.World.NodeID, cfg.API.GetAPIPort(), cfg.World.ChunkSize, cfg.World.MaxHeight, cfg.LightParams().Radius())
	return g.Wait()
}

// openBus JetStream при включённых событиях, иначе шина в памяти
func openBus(cfg *config.Config) (eventbus.EventBus, error) {
	if !cfg.NATS.Events {
		return eventbus.NewMemoryBus(cfg.NATS.MemoryBufferCap), nil
	}
	js, err := eventbus.NewJetStreamBus(cfg.NATS.URL, cfg.NATS.Stream, time.Duration(cfg.NATS.RetentionHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}
	return js, nil
}

// openCache Redis при включённом кеше, иначе кеш в памяти. Инвалидации
// между узлами идут через NATS и доступны только для Redis.
func openCache(cfg *config.Config, store *storage.ChunkStore) (cache.ChunkCache, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryChunkCache(cfg.Redis.MemoryTTL, store), nil
	}

	var inv cache.CacheInvalidator
	if cfg.NATS.Invalidation {
		invCfg := cfg.NATS.Invalidator
		if invCfg.NATSURL == "" {
			invCfg.NATSURL = cfg.NATS.URL
		}
		n, err := cache.NewNATSInvalidator(&invCfg, cfg.World.NodeID)
		if err != nil {
			return nil, fmt.Errorf("invalidator: %w", err)
		}
		inv = n
	}

	rc, err := cache.NewRedisChunkCache(&cfg.Redis.Cache, store, inv)
	if err != nil {
		if inv != nil {
			_ = inv.Close()
		}
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}
