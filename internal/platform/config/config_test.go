package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("CFG_STR", "value")
	if got := GetEnv("CFG_STR", "fallback"); got != "value" {
		t.Errorf("expected value, got %s", got)
	}
	if got := GetEnv("CFG_STR_UNSET", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("CFG_INT", "120")
	t.Setenv("CFG_INT_BAD", "abc")
	if got := GetEnvInt("CFG_INT", 90); got != 120 {
		t.Errorf("expected 120, got %d", got)
	}
	if got := GetEnvInt("CFG_INT_BAD", 90); got != 90 {
		t.Errorf("expected fallback on invalid value, got %d", got)
	}
	if got := GetEnvInt("CFG_INT_UNSET", 90); got != 90 {
		t.Errorf("expected fallback on unset, got %d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("CFG_FLOAT", "2.5")
	t.Setenv("CFG_FLOAT_BAD", "abc")
	if got := GetEnvFloat("CFG_FLOAT", 5); got != 2.5 {
		t.Errorf("expected 2.5, got %v", got)
	}
	if got := GetEnvFloat("CFG_FLOAT_BAD", 5); got != 5 {
		t.Errorf("expected fallback on invalid value, got %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("CFG_DUR", "48h")
	t.Setenv("CFG_DUR_BAD", "soon")
	if got := GetEnvDuration("CFG_DUR", time.Hour); got != 48*time.Hour {
		t.Errorf("expected 48h, got %v", got)
	}
	if got := GetEnvDuration("CFG_DUR_BAD", time.Hour); got != time.Hour {
		t.Errorf("expected fallback on invalid value, got %v", got)
	}
}
