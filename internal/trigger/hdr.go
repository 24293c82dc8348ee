package trigger

import "github.com/ghalamif/CamFlow/internal/domain"

// Exposure is one capture of a trigger expansion.
type Exposure struct {
	Settings   domain.CaptureSettings
	EmitSignal bool
	SaveImage  bool
}

// Expand returns the ordered captures one trigger produces for a camera.
// Without HDR this is a single capture at the profile's exposure and gain.
func Expand(p domain.CameraProfile) []Exposure {
	if !p.HDREnabled || len(p.HDRSettings) == 0 {
		return []Exposure{{
			Settings:   domain.CaptureSettings{Exposure: p.Exposure, Gain: p.Gain},
			EmitSignal: true,
			SaveImage:  true,
		}}
	}

	steps := p.HDRSettings
	if len(steps) > domain.MaxHDRSteps {
		steps = steps[:domain.MaxHDRSteps]
	}
	out := make([]Exposure, len(steps))
	for i, st := range steps {
		out[i] = Exposure{
			Settings: domain.CaptureSettings{
				Exposure: st.Exposure,
				Gain:     st.Gain,
				HDRIndex: i + 1,
				HDRLabel: st.Label,
			},
			EmitSignal: st.EmitSignal,
			SaveImage:  st.SaveImage,
		}
	}
	return out
}
