// Package sprite generates, caches, and indexes thumbnail sprite sheets so a
// timeline UI can scrub a video without re-decoding it.
package sprite

import "math"

// Meta is the geometry metadata persisted alongside each sprite sheet.
// All pixel values are logical pixels, independent of any display scaling,
// so the same cache key always yields the same geometry.
type Meta struct {
	TileWidth         int     `json:"tileWidth"`
	TileHeight        int     `json:"tileHeight"`
	Cols              int     `json:"cols"`
	Rows              int     `json:"rows"`
	TileCount         int     `json:"tileCount"`
	IntervalSec       float64 `json:"intervalSec"`
	FirstTimestampSec float64 `json:"firstTimestampSec"`
	DurationSec       float64 `json:"durationSec"`
	Format            string  `json:"format"`
}

// Rect is the pixel rectangle of one tile within a sprite sheet.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Index  int `json:"index"`
}

// Sprite is one composited sheet plus its geometry.
type Sprite struct {
	PNG  []byte
	Meta Meta
}

// RectForTime maps a playback timestamp to the tile rectangle covering it.
// Pure function: timestamps before the first tile map to index 0, timestamps
// past the end clamp to the last tile. Safe to call every render frame.
func (m Meta) RectForTime(tsSec float64) Rect {
	if m.TileCount <= 0 || m.Cols <= 0 || m.IntervalSec <= 0 {
		return Rect{Width: m.TileWidth, Height: m.TileHeight}
	}

	index := int(math.Floor(tsSec / m.IntervalSec))
	if index < 0 {
		index = 0
	}
	if index > m.TileCount-1 {
		index = m.TileCount - 1
	}

	col := index % m.Cols
	row := index / m.Cols
	return Rect{
		X:      col * m.TileWidth,
		Y:      row * m.TileHeight,
		Width:  m.TileWidth,
		Height: m.TileHeight,
		Index:  index,
	}
}

// gridFor arranges n tiles into a roughly square grid.
func gridFor(n int) (cols, rows int) {
	if n <= 0 {
		return 0, 0
	}
	cols = int(math.Ceil(math.Sqrt(float64(n))))
	rows = (n + cols - 1) / cols
	return cols, rows
}
