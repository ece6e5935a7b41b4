package stream

import (
	"fmt"
	"runtime"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/tile"
)

// Config is fixed at construction except for View and Workers, which can
// be changed live through SetViewDistance and SetWorkers.
type Config struct {
	Tile    tile.BuilderConfig
	View    grid.ViewDistance
	Workers int
}

func DefaultConfig() Config {
	return Config{
		Tile:    tile.DefaultBuilderConfig(),
		View:    grid.Uniform(2),
		Workers: runtime.NumCPU(),
	}
}

func (c Config) Validate() error {
	if _, err := tile.NewBuilder(c.Tile); err != nil {
		return err
	}
	if err := c.View.Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", grid.ErrInvalidConfiguration, c.Workers)
	}
	return nil
}
