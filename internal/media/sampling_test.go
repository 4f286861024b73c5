package media

import "testing"

func TestBuildSamplePlan_uniform(t *testing.T) {
	plan := BuildSamplePlan(nil, 22, 5, 2000)

	if plan.Mode != UniformInterval {
		t.Fatalf("expected uniform mode, got %v", plan.Mode)
	}
	want := []float64{0, 5, 10, 15, 20}
	if len(plan.Timestamps) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(plan.Timestamps))
	}
	for i, ts := range want {
		if plan.Timestamps[i] != ts {
			t.Errorf("sample %d: expected %v, got %v", i, ts, plan.Timestamps[i])
		}
	}
	if plan.FirstTimestampSec != 0 {
		t.Errorf("expected first timestamp 0, got %v", plan.FirstTimestampSec)
	}
}

func TestBuildSamplePlan_uniform_minimum_one_sample(t *testing.T) {
	plan := BuildSamplePlan(nil, 0, 5, 2000)
	if len(plan.Timestamps) != 1 || plan.Timestamps[0] != 0 {
		t.Errorf("expected single sample at 0, got %v", plan.Timestamps)
	}
}

func TestBuildSamplePlan_keyframe_aligned(t *testing.T) {
	// Keyframes every 2s, interval 5s: dense enough for alignment.
	kfs := []float64{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}
	plan := BuildSamplePlan(kfs, 20, 5, 2000)

	if plan.Mode != KeyframeAligned {
		t.Fatalf("expected keyframe mode, got %v", plan.Mode)
	}
	// Targets 0, 5, 10, 15 snap to the keyframe at or after each.
	want := []float64{0, 6, 10, 16}
	if len(plan.Timestamps) != len(want) {
		t.Fatalf("expected %d samples, got %v", len(want), plan.Timestamps)
	}
	for i, ts := range want {
		if plan.Timestamps[i] != ts {
			t.Errorf("sample %d: expected %v, got %v", i, ts, plan.Timestamps[i])
		}
	}
}

func TestBuildSamplePlan_keyframe_stops_after_last_keyframe(t *testing.T) {
	// Slots past the final keyframe have no at-or-after candidate and are
	// dropped; rect lookups for those times clamp to the last tile.
	kfs := []float64{0, 1}
	plan := BuildSamplePlan(kfs, 4, 1, 2000)

	if plan.Mode != KeyframeAligned {
		t.Fatalf("expected keyframe mode, got %v", plan.Mode)
	}
	want := []float64{0, 1}
	if len(plan.Timestamps) != len(want) {
		t.Fatalf("expected %d samples, got %v", len(want), plan.Timestamps)
	}
	for i, ts := range want {
		if plan.Timestamps[i] != ts {
			t.Errorf("sample %d: expected %v, got %v", i, ts, plan.Timestamps[i])
		}
	}
}

func TestBuildSamplePlan_sparse_keyframes_fall_back(t *testing.T) {
	t.Run("too_few", func(t *testing.T) {
		plan := BuildSamplePlan([]float64{0}, 30, 5, 2000)
		if plan.Mode != UniformInterval {
			t.Errorf("single keyframe should fall back to uniform, got %v", plan.Mode)
		}
	})

	t.Run("too_sparse", func(t *testing.T) {
		// Average spacing 15s > 2 * 5s interval.
		plan := BuildSamplePlan([]float64{0, 15, 30}, 30, 5, 2000)
		if plan.Mode != UniformInterval {
			t.Errorf("sparse keyframes should fall back to uniform, got %v", plan.Mode)
		}
	})
}

func TestBuildSamplePlan_truncates_at_max_tiles(t *testing.T) {
	plan := BuildSamplePlan(nil, 1000, 1, 10)
	if len(plan.Timestamps) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(plan.Timestamps))
	}
	if !plan.Truncated {
		t.Error("expected plan to report truncation")
	}
}
