package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestTriggerPeriod(t *testing.T) {
	got, err := TriggerPeriod(5)
	if err != nil {
		t.Fatalf("TriggerPeriod(5): %v", err)
	}
	if got != 200*time.Millisecond {
		t.Fatalf("expected 200ms, got %s", got)
	}

	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1), 1e-13, 2e9} {
		_, err := TriggerPeriod(rate)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("rate %v: expected ConfigError, got %v", rate, err)
		}
	}
}
