package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/CamFlow/internal/adapters/camera"
	"github.com/ghalamif/CamFlow/internal/domain"
)

const defaultSection = "default"

// CameraSection is one profile block of the cameras section. Unset fields
// fall through to the default section and then to built-in values.
type CameraSection struct {
	Label             *string           `yaml:"label"`
	Exposure          *float64          `yaml:"exposure_us"`
	Gain              *float64          `yaml:"gain"`
	TriggerDivider    *int64            `yaml:"trigger_divider"`
	SaveImageDivider  *int64            `yaml:"save_image_divider"`
	StillImageDivider *int64            `yaml:"still_image_divider"`
	VideoFrameDivider *int64            `yaml:"video_frame_divider"`
	SaveStills        *bool             `yaml:"save_stills"`
	SaveVideo         *bool             `yaml:"save_video"`
	StillExtension    *string           `yaml:"still_image_extension"`
	FrameExtension    *string           `yaml:"video_frame_extension"`
	HDREnabled        *bool             `yaml:"hdr_enabled"`
	HDRSettings       []domain.HDRStep  `yaml:"hdr_settings"`
	TriggerSource     *string           `yaml:"trigger_source"`
	Driver            *string           `yaml:"driver"`
	Sim               *camera.SimConfig `yaml:"sim"`
}

// CameraConfig is a fully resolved camera.
type CameraConfig struct {
	Profile domain.CameraProfile
	Sim     camera.SimConfig
}

// CamerasConfig maps camera identities to profile sections. The installed
// list fixes dispatch order; without it every non-default section is a camera.
type CamerasConfig struct {
	Installed []string
	Default   CameraSection
	Sections  map[string]CameraSection

	Resolved []CameraConfig
}

func (c *CamerasConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.Sections = make(map[string]CameraSection, len(raw))
	for key, n := range raw {
		n := n
		switch key {
		case "installed":
			if err := n.Decode(&c.Installed); err != nil {
				return fmt.Errorf("cameras.installed: %w", err)
			}
		case defaultSection:
			if err := n.Decode(&c.Default); err != nil {
				return fmt.Errorf("cameras.default: %w", err)
			}
		default:
			var sec CameraSection
			if err := n.Decode(&sec); err != nil {
				return fmt.Errorf("cameras.%s: %w", key, err)
			}
			c.Sections[key] = sec
		}
	}
	return nil
}

func builtinProfile() domain.CameraProfile {
	return domain.CameraProfile{
		Label:             "Camera",
		Exposure:          4000,
		Gain:              18,
		TriggerDivider:    1,
		SaveImageDivider:  1,
		StillImageDivider: 1,
		VideoFrameDivider: 1,
		SaveStills:        true,
		StillExtension:    ".jpg",
		FrameExtension:    ".jpg",
		TriggerSource:     domain.TriggerSoftware,
		Driver:            "sim",
	}
}

func (c *CamerasConfig) applyDefaults() {
	if len(c.Installed) == 0 {
		c.Installed = sortedKeys(c.Sections)
	}
}

func (c *CamerasConfig) validate() error {
	if len(c.Installed) == 0 {
		return &domain.ConfigError{Field: "cameras", Msg: "no cameras configured"}
	}
	seen := make(map[string]bool, len(c.Installed))
	c.Resolved = c.Resolved[:0]
	for _, id := range c.Installed {
		if id == "" || id == defaultSection {
			return &domain.ConfigError{Field: "cameras.installed", Msg: fmt.Sprintf("invalid camera identity %q", id)}
		}
		if seen[id] {
			return &domain.ConfigError{Field: "cameras.installed", Msg: fmt.Sprintf("duplicate camera %q", id)}
		}
		seen[id] = true

		cc, err := c.resolve(id)
		if err != nil {
			return err
		}
		c.Resolved = append(c.Resolved, cc)
	}
	return nil
}

// resolve layers built-in values, the default section and the camera's
// own section field by field.
func (c *CamerasConfig) resolve(id string) (CameraConfig, error) {
	p := builtinProfile()
	p.Name = id
	var sim camera.SimConfig

	layers := []CameraSection{c.Default}
	if sec, ok := c.Sections[id]; ok {
		layers = append(layers, sec)
	}
	for _, l := range layers {
		l.apply(&p)
		if l.Sim != nil {
			sim = *l.Sim
		}
	}

	field := "cameras." + id
	src, ok := parseTriggerSource(string(p.TriggerSource))
	if !ok {
		return CameraConfig{}, &domain.ConfigError{Field: field + ".trigger_source", Msg: fmt.Sprintf("unknown source %q", p.TriggerSource)}
	}
	p.TriggerSource = src
	p.Driver = strings.ToLower(p.Driver)

	if len(p.HDRSettings) > domain.MaxHDRSteps {
		return CameraConfig{}, &domain.ConfigError{Field: field + ".hdr_settings", Msg: fmt.Sprintf("at most %d steps allowed, got %d", domain.MaxHDRSteps, len(p.HDRSettings))}
	}
	if p.HDREnabled && len(p.HDRSettings) == 0 {
		return CameraConfig{}, &domain.ConfigError{Field: field + ".hdr_settings", Msg: "hdr_enabled requires at least one step"}
	}
	for i := range p.HDRSettings {
		if p.HDRSettings[i].Label == "" {
			p.HDRSettings[i].Label = fmt.Sprintf("Image%d", i+1)
		}
	}
	p.StillExtension = dotted(p.StillExtension)
	p.FrameExtension = dotted(p.FrameExtension)

	sim.ApplyDefaults()
	return CameraConfig{Profile: p, Sim: sim}, nil
}

func (s CameraSection) apply(p *domain.CameraProfile) {
	if s.Label != nil {
		p.Label = *s.Label
	}
	if s.Exposure != nil {
		p.Exposure = *s.Exposure
	}
	if s.Gain != nil {
		p.Gain = *s.Gain
	}
	if s.TriggerDivider != nil {
		p.TriggerDivider = clampDivider(*s.TriggerDivider)
	}
	if s.SaveImageDivider != nil {
		p.SaveImageDivider = clampDivider(*s.SaveImageDivider)
	}
	if s.StillImageDivider != nil {
		p.StillImageDivider = clampDivider(*s.StillImageDivider)
	}
	if s.VideoFrameDivider != nil {
		p.VideoFrameDivider = clampDivider(*s.VideoFrameDivider)
	}
	if s.SaveStills != nil {
		p.SaveStills = *s.SaveStills
	}
	if s.SaveVideo != nil {
		p.SaveVideo = *s.SaveVideo
	}
	if s.StillExtension != nil {
		p.StillExtension = *s.StillExtension
	}
	if s.FrameExtension != nil {
		p.FrameExtension = *s.FrameExtension
	}
	if s.HDREnabled != nil {
		p.HDREnabled = *s.HDREnabled
	}
	if s.HDRSettings != nil {
		p.HDRSettings = append([]domain.HDRStep(nil), s.HDRSettings...)
	}
	if s.TriggerSource != nil {
		p.TriggerSource = domain.TriggerSource(*s.TriggerSource)
	}
	if s.Driver != nil {
		p.Driver = *s.Driver
	}
}

// clampDivider maps divisors below 1 to 1 so the tick path never checks.
func clampDivider(v int64) uint64 {
	if v < 1 {
		return 1
	}
	return uint64(v)
}

func parseTriggerSource(s string) (domain.TriggerSource, bool) {
	switch strings.ToLower(s) {
	case "software", "":
		return domain.TriggerSoftware, true
	case "hardware":
		return domain.TriggerHardware, true
	}
	return "", false
}

func dotted(ext string) string {
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
