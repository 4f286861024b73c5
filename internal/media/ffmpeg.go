package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ErrNoVideoStream is returned when the probed media has no video track.
var ErrNoVideoStream = errors.New("media has no video stream")

// FFmpegDecoder implements Decoder by shelling out to ffmpeg and ffprobe.
// The binaries are resolved from PATH.
type FFmpegDecoder struct{}

// NewFFmpegDecoder returns a Decoder backed by the system ffmpeg tools.
func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{}
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probePacket struct {
	PtsTime string `json:"pts_time"`
	Flags   string `json:"flags"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
	Packets []probePacket `json:"packets"`
}

// Probe implements Decoder.Probe.
func (d *FFmpegDecoder) Probe(ctx context.Context, src string) (Info, error) {
	out, err := ffmpeg.Probe(src)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", src, err)
	}

	var probed probeOutput
	if err := json.Unmarshal([]byte(out), &probed); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range probed.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := Info{Width: s.Width, Height: s.Height}
		info.DurationSec = parseSeconds(s.Duration)
		if info.DurationSec == 0 {
			info.DurationSec = parseSeconds(probed.Format.Duration)
		}
		if info.Width <= 0 || info.Height <= 0 {
			return Info{}, fmt.Errorf("probe %s: invalid dimensions %dx%d", src, info.Width, info.Height)
		}
		return info, nil
	}
	return Info{}, fmt.Errorf("probe %s: %w", src, ErrNoVideoStream)
}

// Keyframes implements Decoder.Keyframes. It reads packet-level flags for the
// first video stream; packets flagged K are keyframes.
func (d *FFmpegDecoder) Keyframes(ctx context.Context, src string) ([]float64, error) {
	out, err := ffmpeg.Probe(src, ffmpeg.KwArgs{
		"select_streams": "v:0",
		"show_packets":   "",
		"show_entries":   "packet=pts_time,flags",
	})
	if err != nil {
		return nil, fmt.Errorf("ffprobe packets %s: %w", src, err)
	}

	var probed probeOutput
	if err := json.Unmarshal([]byte(out), &probed); err != nil {
		return nil, fmt.Errorf("parse ffprobe packets: %w", err)
	}

	keyframes := make([]float64, 0, len(probed.Packets)/16+1)
	for _, p := range probed.Packets {
		if !strings.Contains(p.Flags, "K") || p.PtsTime == "" {
			continue
		}
		ts, err := strconv.ParseFloat(p.PtsTime, 64)
		if err != nil {
			continue
		}
		keyframes = append(keyframes, ts)
	}
	return keyframes, nil
}

// FrameAt implements Decoder.FrameAt. It seeks to tsSec, pipes a single
// scaled mjpeg frame out of ffmpeg, and decodes it.
func (d *FFmpegDecoder) FrameAt(ctx context.Context, src string, tsSec float64, width, height int) (image.Image, error) {
	buf := bytes.NewBuffer(nil)
	err := ffmpeg.Input(src, ffmpeg.KwArgs{"ss": strconv.FormatFloat(tsSec, 'f', 3, 64)}).
		Output("pipe:", ffmpeg.KwArgs{
			"vframes": 1,
			"format":  "image2",
			"vcodec":  "mjpeg",
			"s":       fmt.Sprintf("%dx%d", width, height),
		}).
		WithOutput(buf, io.Discard).
		Silent(true).
		Run()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame at %.3fs: %w", tsSec, err)
	}

	img, err := jpeg.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("decode frame at %.3fs: %w", tsSec, err)
	}
	return img, nil
}

func parseSeconds(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
