package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/wizlight/internal/discovery"
	"github.com/muurk/wizlight/internal/state"
)

// PilotDetails lists the reported fields of a pilot state in display order.
// Fields the bulb did not report are left out.
func PilotDetails(p *state.PilotState) []Detail {
	var details []Detail
	add := func(key, value string) {
		details = append(details, Detail{Key: key, Value: value})
	}

	if on, ok := p.IsOn(); ok {
		add("Power", PowerLabel(on))
	}
	if pct, ok := p.BrightnessPercent(); ok {
		add("Brightness", fmt.Sprintf("%d%%", pct))
	}
	if k, ok := p.ColorTemp(); ok && k > 0 {
		add("Temperature", fmt.Sprintf("%dK", k))
	}
	if rgb, ok := p.RGB(); ok {
		add("Color", fmt.Sprintf("%s rgb(%d, %d, %d)", Swatch(rgb[0], rgb[1], rgb[2]), rgb[0], rgb[1], rgb[2]))
	}
	if rgbww, ok := p.RGBWW(); ok && (rgbww[3] > 0 || rgbww[4] > 0) {
		add("White", fmt.Sprintf("cold %d, warm %d", rgbww[3], rgbww[4]))
	} else if rgbw, ok := p.RGBW(); ok && rgbw[3] > 0 {
		add("White", fmt.Sprintf("%d", rgbw[3]))
	}
	if id, ok := p.SceneID(); ok && id != 0 {
		scene := fmt.Sprintf("%d", id)
		if id == state.RhythmSceneID {
			scene += " (rhythm)"
		}
		if p.Speed != nil {
			scene += fmt.Sprintf(", speed %d", *p.Speed)
		}
		add("Scene", scene)
	}
	if w, ok := p.PowerWatts(); ok {
		add("Power draw", fmt.Sprintf("%.1f W", w))
	}
	if src, ok := p.Source(); ok && src != "" {
		add("Source", src)
	}
	if p.RSSI != nil {
		add("WiFi signal", fmt.Sprintf("%d dBm", *p.RSSI))
	}
	if mac, ok := p.MACAddress(); ok {
		add("MAC", mac)
	}
	return details
}

// RenderPilot renders a pilot state as a success box titled with the host
func RenderPilot(host string, p *state.PilotState) string {
	r := NewSuccessResult("Bulb " + host)
	r.Details = PilotDetails(p)
	return r.Render()
}

// RenderSystemConfig renders the identifying fields of getSystemConfig
func RenderSystemConfig(host string, c *state.SystemConfig) string {
	r := NewSuccessResult("Bulb " + host)
	r.AddDetail("MAC", c.MAC)
	if c.ModuleName != "" {
		r.AddDetail("Module", c.ModuleName)
	}
	if c.FwVersion != "" {
		r.AddDetail("Firmware", c.FwVersion)
	}
	if c.HomeID != nil {
		r.AddDetail("Home ID", fmt.Sprintf("%d", *c.HomeID))
	}
	if c.RoomID != nil {
		r.AddDetail("Room ID", fmt.Sprintf("%d", *c.RoomID))
	}
	if c.TypeID != nil {
		r.AddDetail("Type ID", fmt.Sprintf("%d", *c.TypeID))
	}
	if ratio, channels, ok := c.WhiteChannels(); ok {
		r.AddDetail("White channels", fmt.Sprintf("%d (ratio %d)", channels, ratio))
	}
	return r.Render()
}

// RenderDevices renders discovered bulbs as a table. nicknames maps MAC to a
// user-defined name and may be nil.
func RenderDevices(devices []*discovery.Device, nicknames map[string]string) string {
	if len(devices) == 0 {
		return NewWarningResult("No bulbs found").
			AddDetail("Hint", "check that the bulbs are on and local control is enabled").
			Render()
	}

	rows := [][]string{{"IP", "PORT", "MAC", "NAME"}}
	for _, d := range devices {
		mac := d.MAC
		if mac == "" {
			mac = "-"
		}
		rows = append(rows, []string{d.IP, fmt.Sprintf("%d", d.Port), mac, nicknames[d.MAC]})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for n, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := lipgloss.NewStyle().Width(widths[i] + 2)
			if n == 0 {
				style = style.Inherit(TableHeaderStyle)
			}
			cells[i] = style.Render(cell)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%s %d bulb(s) found\n", SuccessTitleStyle.Render(SuccessMarker), len(devices))
	return b.String()
}

// RenderEvent renders one line of watch output
func RenderEvent(at time.Time, host string, p *state.PilotState) string {
	parts := []string{TimestampStyle.Render(at.Format("15:04:05")), host}
	for _, d := range PilotDetails(p) {
		if d.Key == "MAC" || d.Key == "WiFi signal" {
			continue
		}
		parts = append(parts, strings.ToLower(d.Key)+"="+d.Value)
	}
	return strings.Join(parts, "  ")
}
