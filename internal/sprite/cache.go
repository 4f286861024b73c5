package sprite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"sync"
	"time"

	"timeline-engine/internal/media"
	"timeline-engine/internal/platform/metrics"
)

const (
	// MaxTiles bounds the sprite sheet size. Builds that would naturally
	// exceed it are truncated with a warning.
	MaxTiles = 2000

	// DefaultMaxAge is how long an unused sprite survives before the
	// maintenance sweep removes it.
	DefaultMaxAge = 30 * 24 * time.Hour

	// sweepInterval is the minimum time between maintenance sweeps.
	sweepInterval = 24 * time.Hour

	spriteFormat = "png"
)

// generation is one in-flight sprite build shared by every concurrent caller
// for the same key.
type generation struct {
	done   chan struct{}
	sprite *Sprite
	err    error
}

// Cache produces sprite sheets and caches them in a Store. At most one
// generation per key is ever in flight; the in-flight table is owned by the
// Cache instance, not global state.
type Cache struct {
	open    StoreOpener
	dec     media.Decoder
	log     *slog.Logger
	metrics *metrics.Metrics
	maxAge  time.Duration

	mu        sync.Mutex
	inflight  map[string]*generation
	lastSweep time.Time
}

// NewCache returns a Cache that persists through open, decodes through dec,
// and evicts sprites unused for maxAge. Metrics may be nil to disable metric
// recording (e.g. in tests). If maxAge <= 0, DefaultMaxAge is used.
func NewCache(open StoreOpener, dec media.Decoder, log *slog.Logger, m *metrics.Metrics, maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{
		open:     open,
		dec:      dec,
		log:      log,
		metrics:  m,
		maxAge:   maxAge,
		inflight: make(map[string]*generation),
	}
}

// GetOrCreate returns the sprite for key, generating and persisting it on
// first request. key must be unique per combination of video, interval, and
// tile height; that contract is the caller's.
//
// Concurrent callers for an unresolved key share a single generation and
// observe the same result. If the store is unavailable the sprite is still
// generated and returned, just not persisted. Once a generation has started
// it runs to completion; ctx is honored only while fetching the source.
func (c *Cache) GetOrCreate(ctx context.Context, key, videoSource string, intervalSec float64, tileHeight int) (*Sprite, error) {
	c.mu.Lock()
	if g, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-g.done
		return g.sprite, g.err
	}
	g := &generation{done: make(chan struct{})}
	c.inflight[key] = g
	c.mu.Unlock()

	sprite, err := c.lookupOrGenerate(ctx, key, videoSource, intervalSec, tileHeight)
	g.sprite, g.err = sprite, err

	// Resolve waiters and release the key so a failed build can be retried.
	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(g.done)

	return sprite, err
}

// Get returns the persisted sprite for key without triggering a generation.
func (c *Cache) Get(ctx context.Context, key string) (*Sprite, bool, error) {
	st, err := c.open(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("open sprite store: %w", err)
	}
	defer st.Close()

	rec, ok, err := st.GetRecord(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	c.touchAsync(key)
	return &Sprite{PNG: rec.PNG, Meta: rec.Meta}, true, nil
}

// Delete removes the persisted sprite for key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	st, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("open sprite store: %w", err)
	}
	defer st.Close()
	return st.DeleteRecord(ctx, key)
}

// Prune removes every sprite unused for longer than the cache max age and
// reports how many were removed.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	st, err := c.open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open sprite store: %w", err)
	}
	defer st.Close()

	n, err := st.PruneOlderThan(ctx, time.Now().Add(-c.maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 && c.metrics != nil {
		c.metrics.AddSpritesEvicted(n)
	}
	return n, nil
}

func (c *Cache) lookupOrGenerate(ctx context.Context, key, videoSource string, intervalSec float64, tileHeight int) (*Sprite, error) {
	st, err := c.open(ctx)
	if err != nil {
		// Degrade to in-memory-only: the sprite is still built and returned.
		c.log.Warn("sprite store unavailable, generating without persistence",
			slog.String("key", key), slog.String("error", err.Error()))
		st = nil
	}
	if st != nil {
		defer st.Close()

		rec, ok, err := st.GetRecord(ctx, key)
		if err != nil {
			c.log.Warn("sprite store read failed",
				slog.String("key", key), slog.String("error", err.Error()))
		} else if ok {
			if c.metrics != nil {
				c.metrics.IncSpriteHits()
			}
			c.touchAsync(key)
			return &Sprite{PNG: rec.PNG, Meta: rec.Meta}, nil
		}
	}

	if c.metrics != nil {
		c.metrics.IncSpriteMisses()
		c.metrics.GenerationStarted()
		defer c.metrics.GenerationFinished()
	}

	sprite, err := c.generate(ctx, key, videoSource, intervalSec, tileHeight)
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncSpriteFailures()
		}
		return nil, err
	}

	if st != nil {
		now := time.Now().UTC()
		rec := Record{Key: key, PNG: sprite.PNG, Meta: sprite.Meta}
		if err := st.PutRecord(ctx, rec, Metadata{Key: key, CreatedAt: now, LastUsedAt: now}); err != nil {
			c.log.Warn("sprite store write failed",
				slog.String("key", key), slog.String("error", err.Error()))
		} else {
			c.maybeSweep()
		}
	}
	return sprite, nil
}

// generate builds the sprite sheet: localize the source, probe it, pick
// sample timestamps, decode each sample at tile resolution, and composite a
// roughly square grid.
func (c *Cache) generate(ctx context.Context, key, videoSource string, intervalSec float64, tileHeight int) (*Sprite, error) {
	if intervalSec <= 0 {
		intervalSec = 1
	}
	if tileHeight <= 0 {
		return nil, fmt.Errorf("generate sprite %s: tile height must be positive", key)
	}

	src, cleanup, err := media.Localize(ctx, videoSource)
	if err != nil {
		return nil, fmt.Errorf("generate sprite %s: %w", key, err)
	}
	defer cleanup()

	info, err := c.dec.Probe(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("generate sprite %s: %w", key, err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("generate sprite %s: invalid video dimensions %dx%d", key, info.Width, info.Height)
	}

	tileWidth := int(math.Round(float64(tileHeight) * float64(info.Width) / float64(info.Height)))
	if tileWidth < 1 {
		tileWidth = 1
	}

	keyframes, err := c.dec.Keyframes(ctx, src)
	if err != nil {
		// Keyframe alignment is an optimization; uniform sampling still works.
		c.log.Warn("keyframe probe failed, using uniform sampling",
			slog.String("key", key), slog.String("error", err.Error()))
		keyframes = nil
	}

	plan := media.BuildSamplePlan(keyframes, info.DurationSec, intervalSec, MaxTiles)
	if plan.Truncated {
		c.log.Warn("sprite tile count capped",
			slog.String("key", key),
			slog.Int("max_tiles", MaxTiles),
			slog.Float64("duration_sec", info.DurationSec),
			slog.Float64("interval_sec", intervalSec))
	}

	cols, rows := gridFor(len(plan.Timestamps))
	sheet := image.NewRGBA(image.Rect(0, 0, cols*tileWidth, rows*tileHeight))

	for i, ts := range plan.Timestamps {
		frame, err := c.dec.FrameAt(ctx, src, ts, tileWidth, tileHeight)
		if err != nil {
			return nil, fmt.Errorf("generate sprite %s: %w", key, err)
		}
		x := (i % cols) * tileWidth
		y := (i / cols) * tileHeight
		draw.Draw(sheet, image.Rect(x, y, x+tileWidth, y+tileHeight), frame, frame.Bounds().Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, sheet); err != nil {
		return nil, fmt.Errorf("generate sprite %s: encode: %w", key, err)
	}

	c.log.Info("sprite generated",
		slog.String("key", key),
		slog.String("sampling", plan.Mode.String()),
		slog.Int("tiles", len(plan.Timestamps)),
		slog.Int("cols", cols),
		slog.Int("rows", rows))

	return &Sprite{
		PNG: buf.Bytes(),
		Meta: Meta{
			TileWidth:         tileWidth,
			TileHeight:        tileHeight,
			Cols:              cols,
			Rows:              rows,
			TileCount:         len(plan.Timestamps),
			IntervalSec:       intervalSec,
			FirstTimestampSec: plan.FirstTimestampSec,
			DurationSec:       info.DurationSec,
			Format:            spriteFormat,
		},
	}, nil
}

// touchAsync bumps the record's lastUsedAt in the background. Failures are
// logged and never affect the read path. A record whose metadata has gone
// missing gets a fresh metadata entry so it stays visible to the eviction
// index.
func (c *Cache) touchAsync(key string) {
	go func() {
		ctx := context.Background()
		st, err := c.open(ctx)
		if err != nil {
			c.log.Warn("last-used update skipped, store unavailable",
				slog.String("key", key), slog.String("error", err.Error()))
			return
		}
		defer st.Close()

		now := time.Now().UTC()
		err = st.TouchMetadata(ctx, key, now)
		if errors.Is(err, ErrMetadataMissing) {
			c.log.Warn("sprite record missing metadata, recreating",
				slog.String("key", key))
			rec, ok, getErr := st.GetRecord(ctx, key)
			if getErr != nil || !ok {
				return
			}
			err = st.PutRecord(ctx, rec, Metadata{Key: key, CreatedAt: now, LastUsedAt: now})
		}
		if err != nil {
			c.log.Warn("last-used update failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}()
}

// maybeSweep runs an age-based prune at most once per sweepInterval, in the
// background, after a successful write. Best effort: failures are logged.
func (c *Cache) maybeSweep() {
	c.mu.Lock()
	if time.Since(c.lastSweep) < sweepInterval {
		c.mu.Unlock()
		return
	}
	c.lastSweep = time.Now()
	c.mu.Unlock()

	go func() {
		n, err := c.Prune(context.Background())
		if err != nil {
			c.log.Warn("sprite sweep failed", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			c.log.Info("sprite sweep removed stale records", slog.Int("removed", n))
		}
	}()
}
