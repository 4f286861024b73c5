package timeline

import "math"

// MinSpeed is the lower bound applied to every effective playback speed.
// Clamping instead of rejecting keeps the planner total: it is re-evaluated
// on every edit and must never surface an error to the editing layer.
const MinSpeed = 0.001

// NoDurationLimit disables the output-duration cap in BuildRenderSegments.
const NoDurationLimit = -1

// SourceSegment is one contiguous slice of the original media asset, in
// absolute source frames. Segments are supplied in output order; they may
// reference overlapping or non-contiguous source ranges (cuts and reorders).
type SourceSegment struct {
	StartFrame int `json:"startFrame"`
	EndFrame   int `json:"endFrame"`
	// Speed is the per-segment playback multiplier. Zero means unset and is
	// treated as 1; negative values clamp to MinSpeed.
	Speed float64 `json:"speed,omitempty"`
}

// RenderSegment is the normalized, trimmed form used for playback and export.
// It is derived from SourceSegments on every timeline change and never
// persisted.
type RenderSegment struct {
	StartFrom     int     `json:"startFrom"`
	EndAt         int     `json:"endAt"`
	PlaybackSpeed float64 `json:"playbackSpeed"`
	OutDuration   int     `json:"outDuration"`
}

// BuildRenderSegments turns an ordered edit list into a frame-accurate
// playback plan. baseSpeed is a global multiplier applied on top of each
// segment's own speed. startTrimFrames drops that many output frames from the
// front of the concatenated timeline. durationLimitFrames caps the total
// output frames kept after the start trim; pass NoDurationLimit (or any
// negative value) for unbounded.
//
// Segments with EndFrame <= StartFrame are discarded. The sum of OutDuration
// over the result equals the total output length after trims, and every
// OutDuration is at least 1: degenerate ranges collapse to a single frame
// rather than vanishing. If the trims consume everything, the result is empty.
func BuildRenderSegments(segments []SourceSegment, baseSpeed float64, startTrimFrames, durationLimitFrames int) []RenderSegment {
	base := clampSpeed(baseSpeed)

	out := make([]RenderSegment, 0, len(segments))
	for _, s := range segments {
		if s.EndFrame <= s.StartFrame {
			continue
		}
		speed := clampSpeed(base * segmentSpeed(s))
		out = append(out, RenderSegment{
			StartFrom:     s.StartFrame,
			EndAt:         s.EndFrame,
			PlaybackSpeed: speed,
			OutDuration:   outDurationFor(s.EndFrame-s.StartFrame, speed),
		})
	}

	out = trimStart(out, startTrimFrames)
	if durationLimitFrames >= 0 {
		out = capDuration(out, durationLimitFrames)
	}
	return out
}

// TotalOutDuration returns the number of output frames the segments occupy.
func TotalOutDuration(segments []RenderSegment) int {
	total := 0
	for _, s := range segments {
		total += s.OutDuration
	}
	return total
}

// SourceFrameAtOutputFrame answers "what source frame plays at output frame
// N" against the original, untrimmed edit list. Output frames beyond the
// total duration clamp to the last valid source frame of the final segment.
// An empty edit list is the identity mapping: the output frame is returned
// unchanged.
func SourceFrameAtOutputFrame(segments []SourceSegment, outputFrame int) int {
	cursor := 0
	lastValid := -1
	for i, s := range segments {
		if s.EndFrame <= s.StartFrame {
			continue
		}
		lastValid = i

		speed := clampSpeed(segmentSpeed(s))
		inLen := s.EndFrame - s.StartFrame
		outDur := outDurationFor(inLen, speed)

		if outputFrame < cursor+outDur {
			srcOffset := roundToFrames(float64(outputFrame-cursor) * speed)
			if srcOffset > inLen-1 {
				srcOffset = inLen - 1
			}
			return s.StartFrame + srcOffset
		}
		cursor += outDur
	}

	if lastValid < 0 {
		return outputFrame
	}
	return segments[lastValid].EndFrame - 1
}

// trimStart drops startTrim output frames from the front of the plan, fully
// removing segments consumed by the trim and shortening the first segment
// that straddles the boundary.
func trimStart(segments []RenderSegment, trim int) []RenderSegment {
	if trim <= 0 {
		return segments
	}
	remaining := trim
	for i, s := range segments {
		if s.OutDuration <= remaining {
			remaining -= s.OutDuration
			continue
		}
		skip := roundToFrames(float64(remaining) * s.PlaybackSpeed)
		s.StartFrom += skip
		s.OutDuration = outDurationFor(s.EndAt-s.StartFrom, s.PlaybackSpeed)

		trimmed := make([]RenderSegment, 0, len(segments)-i)
		trimmed = append(trimmed, s)
		trimmed = append(trimmed, segments[i+1:]...)
		return trimmed
	}
	return []RenderSegment{}
}

// capDuration keeps at most limit output frames, truncating the segment that
// crosses the cap by clipping its source range and recomputing its duration.
func capDuration(segments []RenderSegment, limit int) []RenderSegment {
	kept := make([]RenderSegment, 0, len(segments))
	remaining := limit
	for _, s := range segments {
		if remaining <= 0 {
			break
		}
		if s.OutDuration <= remaining {
			remaining -= s.OutDuration
			kept = append(kept, s)
			continue
		}
		srcKeep := roundToFrames(float64(remaining) * s.PlaybackSpeed)
		s.EndAt = s.StartFrom + srcKeep
		s.OutDuration = outDurationFor(s.EndAt-s.StartFrom, s.PlaybackSpeed)
		kept = append(kept, s)
		break
	}
	return kept
}

// outDurationFor converts a source-frame length to output frames at the given
// speed. Never returns less than 1.
func outDurationFor(srcLen int, speed float64) int {
	d := roundToFrames(float64(srcLen) / speed)
	if d < 1 {
		return 1
	}
	return d
}

func segmentSpeed(s SourceSegment) float64 {
	if s.Speed == 0 {
		return 1
	}
	return s.Speed
}

func clampSpeed(speed float64) float64 {
	if speed < MinSpeed {
		return MinSpeed
	}
	return speed
}

func roundToFrames(v float64) int {
	return int(math.Round(v))
}
