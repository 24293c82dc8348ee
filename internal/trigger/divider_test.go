package trigger

import (
	"testing"

	"github.com/ghalamif/CamFlow/internal/domain"
)

func TestParticipates(t *testing.T) {
	for d := uint64(1); d <= 7; d++ {
		for n := uint64(0); n < 50; n++ {
			if got, want := Participates(n, d), n%d == 0; got != want {
				t.Fatalf("Participates(%d, %d) = %v, want %v", n, d, got, want)
			}
		}
	}
	for n := uint64(0); n < 10; n++ {
		if !Participates(n, 0) {
			t.Fatalf("divisor 0 must behave as 1 (n=%d)", n)
		}
	}
}

func TestExpandWithoutHDR(t *testing.T) {
	p := domain.CameraProfile{Name: "Cam1", Exposure: 4000, Gain: 12}
	got := Expand(p)
	if len(got) != 1 {
		t.Fatalf("expected single exposure, got %d", len(got))
	}
	if got[0].Settings.Exposure != 4000 || got[0].Settings.Gain != 12 || got[0].Settings.HDRIndex != 0 {
		t.Fatalf("unexpected settings %+v", got[0].Settings)
	}
	if !got[0].SaveImage || !got[0].EmitSignal {
		t.Fatalf("non-HDR capture must save and emit")
	}
}

func TestExpandHDROrder(t *testing.T) {
	p := domain.CameraProfile{
		Name:       "Cam1",
		HDREnabled: true,
		HDRSettings: []domain.HDRStep{
			{Label: "Image1", Exposure: 100, Gain: 1, SaveImage: true},
			{Label: "Image2", Exposure: 200, Gain: 2, EmitSignal: true},
			{Label: "Image3", Exposure: 300, Gain: 3, SaveImage: true},
			{Label: "Image4", Exposure: 400, Gain: 4},
		},
	}
	got := Expand(p)
	if len(got) != 4 {
		t.Fatalf("expected 4 exposures, got %d", len(got))
	}
	for i, e := range got {
		step := p.HDRSettings[i]
		if e.Settings.Exposure != step.Exposure || e.Settings.Gain != step.Gain {
			t.Fatalf("step %d out of order: %+v", i, e.Settings)
		}
		if e.Settings.HDRIndex != i+1 || e.Settings.HDRLabel != step.Label {
			t.Fatalf("step %d bad index/label: %+v", i, e.Settings)
		}
		if e.SaveImage != step.SaveImage || e.EmitSignal != step.EmitSignal {
			t.Fatalf("step %d flags not carried", i)
		}
	}
}
