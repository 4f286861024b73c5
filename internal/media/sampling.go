package media

import "math"

// SampleMode identifies how sample timestamps were chosen for a sprite build.
type SampleMode int

const (
	// UniformInterval samples at exact multiples of the requested interval.
	UniformInterval SampleMode = iota
	// KeyframeAligned snaps each sample to the nearest keyframe at or after
	// its ideal timestamp, avoiding decode artifacts from non-keyframe seeks.
	KeyframeAligned
)

// String returns the mode name for logs.
func (m SampleMode) String() string {
	if m == KeyframeAligned {
		return "keyframe"
	}
	return "uniform"
}

// SamplePlan is the list of timestamps to render into sprite tiles. One
// timestamp is produced per interval slot so that tile index i always
// corresponds to playback time FirstTimestampSec + i*interval, regardless of
// mode; in keyframe mode adjacent slots may repeat a keyframe.
type SamplePlan struct {
	Mode              SampleMode
	Timestamps        []float64
	FirstTimestampSec float64
	// Truncated reports that the natural tile count exceeded maxTiles and the
	// plan was cut short.
	Truncated bool
}

// BuildSamplePlan chooses sample timestamps for a video of durationSec
// sampled every intervalSec, holding at most maxTiles samples.
//
// Keyframe alignment is an optimization, not a requirement: it is used only
// when at least two keyframes are known and their average spacing does not
// exceed twice the requested interval. Otherwise sampling falls back to the
// uniform grid.
func BuildSamplePlan(keyframes []float64, durationSec, intervalSec float64, maxTiles int) SamplePlan {
	if intervalSec <= 0 {
		intervalSec = 1
	}
	if durationSec < 0 {
		durationSec = 0
	}

	if useKeyframes(keyframes, intervalSec) {
		return keyframePlan(keyframes, durationSec, intervalSec, maxTiles)
	}
	return uniformPlan(durationSec, intervalSec, maxTiles)
}

func useKeyframes(keyframes []float64, intervalSec float64) bool {
	if len(keyframes) < 2 {
		return false
	}
	avgSpacing := (keyframes[len(keyframes)-1] - keyframes[0]) / float64(len(keyframes)-1)
	return avgSpacing <= 2*intervalSec
}

func uniformPlan(durationSec, intervalSec float64, maxTiles int) SamplePlan {
	n := int(math.Ceil(durationSec / intervalSec))
	if n < 1 {
		n = 1
	}
	truncated := false
	if n > maxTiles {
		n = maxTiles
		truncated = true
	}

	ts := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) * intervalSec
	}
	return SamplePlan{Mode: UniformInterval, Timestamps: ts, Truncated: truncated}
}

func keyframePlan(keyframes []float64, durationSec, intervalSec float64, maxTiles int) SamplePlan {
	first := keyframes[0]
	ts := make([]float64, 0, len(keyframes))
	truncated := false

	next := 0
	for i := 0; ; i++ {
		target := first + float64(i)*intervalSec
		if durationSec > 0 && target >= durationSec {
			break
		}
		for next < len(keyframes) && keyframes[next] < target {
			next++
		}
		if next >= len(keyframes) {
			break
		}
		if len(ts) == maxTiles {
			truncated = true
			break
		}
		ts = append(ts, keyframes[next])
	}

	if len(ts) == 0 {
		ts = append(ts, first)
	}
	return SamplePlan{
		Mode:              KeyframeAligned,
		Timestamps:        ts,
		FirstTimestampSec: first,
		Truncated:         truncated,
	}
}
