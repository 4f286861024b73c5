// Package media adapts video probing and frame decoding for the sprite
// generator. The production implementation shells out to ffmpeg/ffprobe via
// the ffmpeg-go bindings; tests substitute a fake Decoder.
package media

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"
)

// Info describes the video stream of a probed media asset.
type Info struct {
	Width       int
	Height      int
	DurationSec float64
}

// Decoder reads video metadata and renders single frames.
// Implementations are not required to honor ctx cancellation once a decode
// has started; ctx bounds setup work such as network fetches.
type Decoder interface {
	// Probe returns dimensions and duration of the first video stream.
	Probe(ctx context.Context, src string) (Info, error)

	// Keyframes returns the presentation timestamps (seconds, ascending) of
	// the keyframes in the first video stream.
	Keyframes(ctx context.Context, src string) ([]float64, error)

	// FrameAt renders the frame at tsSec scaled to width x height.
	FrameAt(ctx context.Context, src string, tsSec float64, width, height int) (image.Image, error)
}

// Localize makes src usable for repeated seeking. Remote http(s) sources are
// downloaded once to a temporary file; local paths are returned unchanged.
// The returned cleanup func is always safe to call.
func Localize(ctx context.Context, src string) (string, func(), error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return src, func() {}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", func() {}, fmt.Errorf("fetch media: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", func() {}, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", func() {}, fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", "timeline-media-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("fetch media: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("fetch media: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("fetch media: %w", err)
	}
	return f.Name(), cleanup, nil
}
