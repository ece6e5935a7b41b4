package tilestore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/tile"
	"github.com/zeusync/tilestream/pkg/encoding"
)

type Config struct {
	Path string
	// Level is a zstd encoder level: 1 fastest, 4 best compression.
	Level int
}

// Stats counts store traffic since Open.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Writes  uint64 `json:"writes"`
	Corrupt uint64 `json:"corrupt"`
}

// Store keeps generated height samples in sqlite, zstd-compressed and keyed
// by coordinate and block size.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder

	logger log.Log
	closed atomic.Bool

	hits, misses, writes, corrupt atomic.Uint64
}

func Open(cfg Config, logger log.Log) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("empty tile store path")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create store directory")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err = initPragmas(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set pragmas")
	}
	if err = initSchema(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	level := zstd.EncoderLevel(cfg.Level)
	if level < zstd.SpeedFastest || level > zstd.SpeedBestCompression {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, errors.Wrap(err, "zstd decoder")
	}

	s := &Store{
		db:     db,
		enc:    enc,
		dec:    dec,
		logger: logger.With(log.String("component", "tilestore")),
	}
	s.logger.Info("Tile store opened", log.String("path", cfg.Path), log.String("level", level.String()))
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS tiles (
		x INTEGER NOT NULL,
		z INTEGER NOT NULL,
		block_size INTEGER NOT NULL,
		digest INTEGER NOT NULL,
		heights BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (x, z, block_size)
	);`)
	return err
}

// Load returns the stored samples for c, or ok=false when nothing is stored.
// A blob that fails its digest check is deleted and reported as ErrCorrupt.
func (s *Store) Load(ctx context.Context, b *tile.Builder, c grid.TileCoord) (t *tile.Tile, ok bool, err error) {
	if s.closed.Load() {
		return nil, false, ErrStoreClosed
	}
	size := b.Config().BlockSize

	var digest int64
	var blob []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT digest, heights FROM tiles WHERE x = ? AND z = ? AND block_size = ?`,
		c.X, c.Z, size,
	).Scan(&digest, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "query tile %s", c)
	}

	t, err = s.decode(b, c, blob, uint64(digest))
	if err != nil {
		s.corrupt.Add(1)
		s.logger.Warn("Dropping corrupt tile", log.Stringer("coord", c), log.Error(err))
		if derr := s.Delete(ctx, c, size); derr != nil {
			s.logger.Error("Failed to delete corrupt tile", log.Stringer("coord", c), log.Error(derr))
		}
		return nil, false, err
	}
	s.hits.Add(1)
	return t, true, nil
}

func (s *Store) decode(b *tile.Builder, c grid.TileCoord, blob []byte, digest uint64) (*tile.Tile, error) {
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	heights := make(encoding.Float32s, b.Samples())
	if err = heights.Deserialize(raw); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	t, err := b.Build(c, heights)
	if err != nil {
		return nil, err
	}
	if t.Digest() != digest {
		return nil, errors.Wrapf(ErrCorrupt, "digest mismatch at %s", c)
	}
	return t, nil
}

// Save writes t's samples, replacing any earlier version.
func (s *Store) Save(ctx context.Context, t *tile.Tile) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	raw, err := encoding.Float32s(t.Heights).Serialize()
	if err != nil {
		return errors.Wrapf(err, "encode tile %s", t.Coord)
	}
	blob := s.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tiles (x, z, block_size, digest, heights, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(x, z, block_size) DO UPDATE SET
			digest = excluded.digest, heights = excluded.heights, updated_at = excluded.updated_at`,
		t.Coord.X, t.Coord.Z, t.Size, int64(t.Digest()), blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrapf(err, "save tile %s", t.Coord)
	}
	s.writes.Add(1)
	return nil
}

func (s *Store) Delete(ctx context.Context, c grid.TileCoord, blockSize int) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tiles WHERE x = ? AND z = ? AND block_size = ?`, c.X, c.Z, blockSize)
	return errors.Wrapf(err, "delete tile %s", c)
}

// Has reports whether samples for c at blockSize are stored.
func (s *Store) Has(ctx context.Context, c grid.TileCoord, blockSize int) (bool, error) {
	if s.closed.Load() {
		return false, ErrStoreClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tiles WHERE x = ? AND z = ? AND block_size = ?`, c.X, c.Z, blockSize,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "query tile %s", c)
	}
	return n > 0, nil
}

// Count returns the number of stored tiles of all block sizes.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count tiles")
	}
	return n, nil
}

func (s *Store) Stats() Stats {
	return Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Writes:  s.writes.Load(),
		Corrupt: s.corrupt.Load(),
	}
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}
