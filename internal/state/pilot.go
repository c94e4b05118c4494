package state

import (
	"fmt"
	"math"

	"github.com/mitchellh/mapstructure"
)

// RhythmSceneID is reported by SceneID while a rhythm schedule drives the bulb
const RhythmSceneID = 1000

// PilotState is a typed view of a getPilot result or a syncPilot push.
// Every field is optional; nil means the bulb did not report it.
type PilotState struct {
	MAC        *string `mapstructure:"mac"`
	State      *bool   `mapstructure:"state"`
	Dimming    *int    `mapstructure:"dimming"`
	Temp       *int    `mapstructure:"temp"`
	R          *int    `mapstructure:"r"`
	G          *int    `mapstructure:"g"`
	B          *int    `mapstructure:"b"`
	C          *int    `mapstructure:"c"`
	W          *int    `mapstructure:"w"`
	Scene      *int    `mapstructure:"sceneId"`
	Speed      *int    `mapstructure:"speed"`
	Ratio      *int    `mapstructure:"ratio"`
	Src        *string `mapstructure:"src"`
	RSSI       *int    `mapstructure:"rssi"`
	PC         *int    `mapstructure:"pc"`
	SchdPsetID any     `mapstructure:"schdPsetId"`
	FanState   *int    `mapstructure:"fanState"`
	FanMode    *int    `mapstructure:"fanMode"`
	FanSpeed   *int    `mapstructure:"fanSpeed"`
	FanRevrs   *int    `mapstructure:"fanRevrs"`

	// Extra holds every key without a named field
	Extra map[string]any `mapstructure:",remain"`

	raw map[string]any
}

// ParsePilot decodes a result or params mapping into a PilotState.
// The mapping is kept so Get and Raw can return keys verbatim.
func ParsePilot(m map[string]any) (*PilotState, error) {
	p := &PilotState{}
	if err := decode(m, p); err != nil {
		return nil, fmt.Errorf("failed to decode pilot state: %w", err)
	}
	p.raw = copyMap(m)
	return p, nil
}

// Raw returns a copy of the mapping the state was parsed from
func (p *PilotState) Raw() map[string]any {
	return copyMap(p.raw)
}

// Get returns a raw value by key
func (p *PilotState) Get(key string) (any, bool) {
	v, ok := p.raw[key]
	return v, ok
}

// IsOn reports the on/off state. ok is false when the bulb did not report it.
func (p *PilotState) IsOn() (on bool, ok bool) {
	if p.State == nil {
		return false, false
	}
	return *p.State, true
}

// BrightnessPercent returns the dimming level (10-100 on most bulbs)
func (p *PilotState) BrightnessPercent() (int, bool) {
	return intValue(p.Dimming)
}

// Brightness returns the dimming level scaled to 0-255
func (p *PilotState) Brightness() (int, bool) {
	if p.Dimming == nil {
		return 0, false
	}
	return PercentToHex(*p.Dimming), true
}

// ColorTemp returns the white colour temperature in kelvin
func (p *PilotState) ColorTemp() (int, bool) {
	return intValue(p.Temp)
}

// RGB returns the colour channels when all three are present
func (p *PilotState) RGB() ([3]int, bool) {
	if p.R == nil || p.G == nil || p.B == nil {
		return [3]int{}, false
	}
	return [3]int{*p.R, *p.G, *p.B}, true
}

// RGBW returns red, green, blue and warm white when all are present
func (p *PilotState) RGBW() ([4]int, bool) {
	rgb, ok := p.RGB()
	if !ok || p.W == nil {
		return [4]int{}, false
	}
	return [4]int{rgb[0], rgb[1], rgb[2], *p.W}, true
}

// RGBWW returns red, green, blue, cold white and warm white when all are present
func (p *PilotState) RGBWW() ([5]int, bool) {
	rgb, ok := p.RGB()
	if !ok || p.C == nil || p.W == nil {
		return [5]int{}, false
	}
	return [5]int{rgb[0], rgb[1], rgb[2], *p.C, *p.W}, true
}

// SceneID returns the active scene. A running rhythm schedule reports RhythmSceneID.
func (p *PilotState) SceneID() (int, bool) {
	if _, ok := p.raw["schdPsetId"]; ok {
		return RhythmSceneID, true
	}
	return intValue(p.Scene)
}

// PowerWatts returns the instantaneous power draw reported in pc (milliwatts)
func (p *PilotState) PowerWatts() (float64, bool) {
	if p.PC == nil {
		return 0, false
	}
	return float64(*p.PC) / 1000, true
}

// Source returns what triggered the last state change ("udp", "pir", "wfa1", ...)
func (p *PilotState) Source() (string, bool) {
	if p.Src == nil {
		return "", false
	}
	return *p.Src, true
}

// MACAddress returns the bulb's hardware id
func (p *PilotState) MACAddress() (string, bool) {
	if p.MAC == nil {
		return "", false
	}
	return *p.MAC, true
}

// ExtendedWhiteRange returns the kelvin range from extRange, or cctRange on
// firmware 1.22 and later.
func (p *PilotState) ExtendedWhiteRange() ([]float64, bool) {
	for _, key := range []string{"extRange", "cctRange"} {
		if r, ok := floatSlice(p.raw[key]); ok {
			return r, true
		}
	}
	return nil, false
}

// PercentToHex converts a 0-100 percentage to 0-255
func PercentToHex(percent int) int {
	return int(math.RoundToEven(float64(percent) / 100 * 255))
}

// HexToPercent converts a 0-255 value to a 0-100 percentage
func HexToPercent(value int) int {
	return int(math.RoundToEven(float64(value) / 255 * 100))
}

func intValue(v *int) (int, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func floatSlice(v any) ([]float64, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
