package config

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/producer"
	"github.com/zeusync/tilestream/internal/core/stream"
	"github.com/zeusync/tilestream/internal/core/tile"
)

// Source kinds accepted in source.kind.
const (
	SourceFlat  = "flat"
	SourceNoise = "noise"
	SourceImage = "image"
	SourceScene = "scene"
)

// Viewer modes accepted in viewer.mode.
const (
	ViewerObserver = "observer"
	ViewerFlyover  = "flyover"
)

// Config is the whole server configuration document.
type Config struct {
	Log    LogConfig    `yaml:"log" json:"log"`
	Engine EngineConfig `yaml:"engine" json:"engine"`
	Source SourceConfig `yaml:"source" json:"source"`
	Store  StoreConfig  `yaml:"store" json:"store"`
	Server ServerConfig `yaml:"server" json:"server"`
	Viewer ViewerConfig `yaml:"viewer" json:"viewer"`
}

type LogConfig struct {
	Level    string `yaml:"level" json:"level"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

type EngineConfig struct {
	BlockSize       int               `yaml:"block_size" json:"block_size"`
	PatchSize       int               `yaml:"patch_size" json:"patch_size"`
	HorizontalScale float64           `yaml:"horizontal_scale" json:"horizontal_scale"`
	VerticalScale   float64           `yaml:"vertical_scale" json:"vertical_scale"`
	ViewDistance    grid.ViewDistance `yaml:"view_distance" json:"view_distance"`
	// Workers 0 means one per CPU.
	Workers int `yaml:"workers" json:"workers"`
}

type SourceConfig struct {
	Kind  string               `yaml:"kind" json:"kind"`
	Noise producer.NoiseConfig `yaml:"noise" json:"noise"`
	Image ImageSourceConfig    `yaml:"image" json:"image"`
	Scene SceneSourceConfig    `yaml:"scene" json:"scene"`
}

// ImageSourceConfig reads one heightmap per tile from Root. Pattern is a
// printf format taking x then z.
type ImageSourceConfig struct {
	Root    string `yaml:"root" json:"root"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

type SceneSourceConfig struct {
	Path string `yaml:"path" json:"path"`
}

// StoreConfig enables the persistent tile cache in front of the source.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	// Level is the zstd encoder level, 1 (fastest) to 4 (best).
	Level int `yaml:"level" json:"level"`
	// Prewarm fills the store with this many tiles around the viewer start
	// before serving. Zero disables it.
	Prewarm int `yaml:"prewarm" json:"prewarm"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr" json:"addr"`
	TickRate      int           `yaml:"tick_rate" json:"tick_rate"`
	StatsInterval time.Duration `yaml:"stats_interval" json:"stats_interval"`
}

// ViewerConfig selects what drives the viewer position. In flyover mode
// the viewer starts at Start and moves by Velocity world units per second.
type ViewerConfig struct {
	Mode      string     `yaml:"mode" json:"mode"`
	Start     [3]float64 `yaml:"start" json:"start"`
	Velocity  [3]float64 `yaml:"velocity" json:"velocity"`
	Clearance float64    `yaml:"clearance" json:"clearance"`
}

func Default() *Config {
	tc := tile.DefaultBuilderConfig()
	return &Config{
		Log: LogConfig{Level: "info", Encoding: "json"},
		Engine: EngineConfig{
			BlockSize:       tc.BlockSize,
			PatchSize:       tc.PatchSize,
			HorizontalScale: tc.HorizontalScale,
			VerticalScale:   tc.VerticalScale,
			ViewDistance:    grid.Uniform(2),
		},
		Source: SourceConfig{
			Kind:  SourceNoise,
			Noise: producer.DefaultNoiseConfig(),
			Image: ImageSourceConfig{Root: ".", Pattern: "height_%d_%d.png"},
		},
		Store: StoreConfig{Path: "data/tiles.db", Level: 2},
		Server: ServerConfig{
			Addr:          ":8080",
			TickRate:      30,
			StatsInterval: time.Second,
		},
		Viewer: ViewerConfig{Mode: ViewerObserver, Clearance: 2},
	}
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer func() { _ = f.Close() }()

	cfg, err := LoadYAML(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return cfg, nil
}

// LoadYAML checks the document against the schema, overlays it on
// Default and validates the result. An empty document yields Default.
func LoadYAML(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	if err = validateDocument(raw); err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the constraints the schema cannot express.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if err := c.Stream().Validate(); err != nil {
		return errors.Wrap(err, "engine")
	}
	switch c.Source.Kind {
	case SourceFlat:
	case SourceNoise:
		if err := c.Source.Noise.Validate(); err != nil {
			return errors.Wrap(err, "source.noise")
		}
	case SourceImage:
		if c.Source.Image.Pattern == "" {
			return errors.Wrap(ErrInvalidConfig, "source.image.pattern is empty")
		}
	case SourceScene:
		if c.Source.Scene.Path == "" {
			return errors.Wrap(ErrInvalidConfig, "source.scene.path is empty")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown source kind %q", c.Source.Kind)
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return errors.Wrap(ErrInvalidConfig, "store.path is empty")
	}
	if c.Server.TickRate <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "server.tick_rate %d", c.Server.TickRate)
	}
	if c.Viewer.Mode != ViewerObserver && c.Viewer.Mode != ViewerFlyover {
		return errors.Wrapf(ErrInvalidConfig, "unknown viewer mode %q", c.Viewer.Mode)
	}
	return nil
}

// Stream converts the engine section.
func (c *Config) Stream() stream.Config {
	workers := c.Engine.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return stream.Config{
		Tile: tile.BuilderConfig{
			BlockSize:       c.Engine.BlockSize,
			PatchSize:       c.Engine.PatchSize,
			HorizontalScale: c.Engine.HorizontalScale,
			VerticalScale:   c.Engine.VerticalScale,
		},
		View:    c.Engine.ViewDistance,
		Workers: workers,
	}
}

// Logger builds the zap-backed logger for the log section.
func (c *Config) Logger() (*log.Logger, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}
	return log.NewWithOptions(log.Options{Level: level, Encoding: c.Log.Encoding})
}

// TickInterval is the owner loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Server.TickRate)
}
