package injector

import (
	"context"
	"os"

	"github.com/google/wire"
	"github.com/pkg/errors"

	"github.com/zeusync/tilestream/internal/config"
	"github.com/zeusync/tilestream/internal/core/events/bus"
	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/producer"
	"github.com/zeusync/tilestream/internal/core/stream"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
	"github.com/zeusync/tilestream/internal/core/systems/physics/space"
	"github.com/zeusync/tilestream/internal/core/tile"
	"github.com/zeusync/tilestream/internal/persistence/tilestore"
	"github.com/zeusync/tilestream/internal/server"
	"github.com/zeusync/tilestream/internal/transport/observer"
)

// ServerSet builds a running-ready server from a loaded config.
var ServerSet = wire.NewSet(
	ProvideLogger,
	ProvideEventBus,
	ProvideBuilder,
	ProvideSource,
	ProvideSpace,
	ProvideEngine,
	ProvideHub,
	ProvideViewer,
	ProvideServer,
)

func ProvideLogger(cfg *config.Config) (log.Log, func(), error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideEventBus() bus.EventBus {
	return bus.New()
}

func ProvideBuilder(cfg *config.Config) (*tile.Builder, error) {
	return tile.NewBuilder(cfg.Stream().Tile)
}

// ProvideSource builds the configured producer, fronted by the persistent
// tile store when it is enabled.
func ProvideSource(cfg *config.Config, b *tile.Builder, logger log.Log) (producer.Producer, func(), error) {
	var (
		src producer.Producer
		err error
	)
	switch cfg.Source.Kind {
	case config.SourceFlat:
		src = producer.NewFlat(b)
	case config.SourceNoise:
		src, err = producer.NewNoise(b, cfg.Source.Noise)
	case config.SourceImage:
		src = producer.NewImage(b, os.DirFS(cfg.Source.Image.Root), producer.PathPattern(cfg.Source.Image.Pattern))
	case config.SourceScene:
		src, err = producer.LoadSceneFile(b, cfg.Source.Scene.Path)
	default:
		err = errors.Wrapf(config.ErrInvalidConfig, "unknown source kind %q", cfg.Source.Kind)
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "source %s", cfg.Source.Kind)
	}
	logger.Info("Tile source ready", log.String("kind", cfg.Source.Kind))

	if !cfg.Store.Enabled {
		return src, func() {}, nil
	}
	store, err := tilestore.Open(tilestore.Config{Path: cfg.Store.Path, Level: cfg.Store.Level}, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close tile store", log.Error(err))
		}
	}
	cached := tilestore.NewCached(store, src, b, logger)
	if cfg.Store.Prewarm > 0 {
		center := b.Quantizer().ViewerTile(vec(cfg.Viewer.Start))
		window := grid.NewWindow(center, grid.Uniform(cfg.Store.Prewarm))
		if _, err = cached.Prewarm(context.Background(), window, cfg.Stream().Workers); err != nil {
			cleanup()
			return nil, nil, errors.Wrap(err, "prewarm tile store")
		}
	}
	return cached, cleanup, nil
}

func ProvideSpace(b *tile.Builder, logger log.Log) *space.Space {
	return space.New(b.Quantizer(), logger)
}

func ProvideEngine(cfg *config.Config, p producer.Producer, sp *space.Space, eventBus bus.EventBus, logger log.Log) (*stream.Engine, func(), error) {
	engine, err := stream.New(cfg.Stream(), p,
		stream.WithSink(sp),
		stream.WithEventBus(eventBus),
		stream.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return engine, func() { _ = engine.Close() }, nil
}

func ProvideHub(cfg *config.Config, eventBus bus.EventBus, engine *stream.Engine, logger log.Log) (*observer.Hub, func(), error) {
	hcfg := observer.DefaultConfig()
	hcfg.StatsInterval = cfg.Server.StatsInterval
	hub, err := observer.New(hcfg, eventBus, func() any { return engine.Stats() }, logger)
	if err != nil {
		return nil, nil, err
	}
	return hub, func() { _ = hub.Close() }, nil
}

// ProvideViewer picks the observer hub or a scripted flyover. The hub
// starts at the configured position until an observer moves it.
func ProvideViewer(cfg *config.Config, hub *observer.Hub) server.ViewerSource {
	start := vec(cfg.Viewer.Start)
	if cfg.Viewer.Mode == config.ViewerFlyover {
		return server.NewFlyover(start, vec(cfg.Viewer.Velocity))
	}
	hub.SetViewer(start)
	return hub
}

func ProvideServer(
	cfg *config.Config,
	engine *stream.Engine,
	sp *space.Space,
	hub *observer.Hub,
	viewer server.ViewerSource,
	logger log.Log,
) (*server.Server, func(), error) {
	srv, err := server.NewServer(server.Config{
		ListenAddr:      cfg.Server.Addr,
		TickInterval:    cfg.TickInterval(),
		Clearance:       cfg.Viewer.Clearance,
		ShutdownTimeout: server.DefaultServerConfig().ShutdownTimeout,
	}, engine, sp, hub, viewer, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Server wired",
		log.Int("window_tiles", cfg.Engine.ViewDistance.Count()),
		log.String("viewer", cfg.Viewer.Mode),
		log.Bool("store", cfg.Store.Enabled))
	return srv, func() { _ = srv.Close() }, nil
}

func vec(v [3]float64) physics.Vec3 {
	return physics.Vec3{X: v[0], Y: v[1], Z: v[2]}
}
