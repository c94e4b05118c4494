package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/wizlight/internal/discovery"
	"github.com/muurk/wizlight/internal/state"
	"github.com/muurk/wizlight/internal/wiz"
)

func TestSplitHint(t *testing.T) {
	summary, tips := SplitHint(wiz.GetTroubleshootingHint(wiz.NewTimeoutError("no reply")))

	assert.Equal(t, "The bulb did not respond in time.", summary)
	require.Len(t, tips, 4)
	assert.Equal(t, "Check that the bulb is powered at the wall switch", tips[0])

	summary, tips = SplitHint("Just one line.")
	assert.Equal(t, "Just one line.", summary)
	assert.Empty(t, tips)
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success keeps detail order",
			result: NewSuccessResult("Bulb turned on").AddDetail("Host", "192.168.1.42").AddDetail("Brightness", "50%"),
			want:   []string{"SUCCESS", "Bulb turned on", "Host:", "192.168.1.42", "Brightness:", "50%"},
		},
		{
			name:   "failure shows short message and tips",
			result: NewErrorResult("Turn on failed", wiz.NewTimeoutError("no reply")),
			want:   []string{"FAILED", "Turn on failed", "Bulb not responding (timeout)", "Troubleshooting:", "wall switch"},
		},
		{
			name:   "failure with plain error",
			result: NewFailureResult("Load failed", errors.New("boom"), nil),
			want:   []string{"FAILED", "Error: boom"},
		},
		{
			name:   "warning",
			result: NewWarningResult("No bulbs found"),
			want:   []string{"WARNING", "No bulbs found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
		})
	}

	out := NewSuccessResult("x").AddDetail("First", "1").AddDetail("Second", "2").SetWidth(80).String()
	assert.Less(t, strings.Index(out, "First"), strings.Index(out, "Second"))
}

func TestHeaderRender(t *testing.T) {
	out := NewHeader("Watching bulbs", "wizlight watch",
		Detail{Key: "Bulbs", Value: "192.168.1.42"},
		Detail{Key: "Metrics", Value: ":9100"},
	).SetWidth(80).Render()

	assert.Contains(t, out, "WATCHING BULBS")
	assert.Contains(t, out, "wizlight watch")
	assert.Contains(t, out, "Metrics:")
	assert.Contains(t, out, "─")

	bare := NewHeader("Discover", "wizlight discover").SetWidth(80).Render()
	assert.Contains(t, bare, "DISCOVER")
}

func TestPilotDetails(t *testing.T) {
	p, err := state.ParsePilot(map[string]any{
		"mac": "a8bb5006033d", "state": true, "dimming": 13.0, "temp": 2700.0,
		"r": 255.0, "g": 0.0, "b": 0.0, "c": 0.0, "w": 0.0,
		"sceneId": 0.0, "rssi": -55.0, "src": "udp", "pc": 8500.0,
	})
	require.NoError(t, err)

	got := map[string]string{}
	var keys []string
	for _, d := range PilotDetails(p) {
		got[d.Key] = d.Value
		keys = append(keys, d.Key)
	}

	assert.Equal(t, "Power", keys[0])
	assert.Contains(t, got["Power"], "on")
	assert.Equal(t, "13%", got["Brightness"])
	assert.Equal(t, "2700K", got["Temperature"])
	assert.Contains(t, got["Color"], "rgb(255, 0, 0)")
	assert.Equal(t, "8.5 W", got["Power draw"])
	assert.Equal(t, "-55 dBm", got["WiFi signal"])
	assert.NotContains(t, got, "Scene", "scene 0 means no scene")
	assert.NotContains(t, got, "White", "zero white channels are not shown")
}

func TestPilotDetailsRhythm(t *testing.T) {
	p, err := state.ParsePilot(map[string]any{"state": false, "schdPsetId": 5.0})
	require.NoError(t, err)

	details := PilotDetails(p)
	require.Len(t, details, 2)
	assert.Contains(t, details[0].Value, "off")
	assert.Equal(t, "1000 (rhythm)", details[1].Value)
}

func TestRenderSystemConfig(t *testing.T) {
	c, err := state.ParseSystemConfig(map[string]any{
		"mac": "a8bb5006033d", "moduleName": "ESP01_SHRGB_03", "fwVersion": "1.25.0",
		"homeId": 653906.0, "drvConf": []any{20.0, 2.0},
	})
	require.NoError(t, err)

	out := RenderSystemConfig("192.168.1.42", c)
	for _, s := range []string{"ESP01_SHRGB_03", "1.25.0", "653906", "2 (ratio 20)"} {
		assert.Contains(t, out, s)
	}
}

func TestRenderDevices(t *testing.T) {
	devices := []*discovery.Device{
		{IP: "192.168.1.42", Port: 38899, MAC: "a8bb5006033d"},
		{IP: "192.168.1.43", Port: 38899},
	}

	out := RenderDevices(devices, map[string]string{"a8bb5006033d": "desk"})
	assert.Contains(t, out, "192.168.1.42")
	assert.Contains(t, out, "a8bb5006033d")
	assert.Contains(t, out, "desk")
	assert.Contains(t, out, "2 bulb(s) found")

	lines := strings.Split(out, "\n")
	assert.Contains(t, lines[0], "MAC")
	assert.Contains(t, lines[2], "-")

	assert.Contains(t, RenderDevices(nil, nil), "No bulbs found")
}

func TestRenderEvent(t *testing.T) {
	p, err := state.ParsePilot(map[string]any{"mac": "a8bb5006033d", "state": true, "dimming": 70.0, "rssi": -50.0})
	require.NoError(t, err)

	line := RenderEvent(time.Date(2026, 1, 2, 21, 4, 5, 0, time.UTC), "192.168.1.42", p)
	assert.Contains(t, line, "21:04:05")
	assert.Contains(t, line, "brightness=70%")
	assert.NotContains(t, line, "dBm")
	assert.NotContains(t, line, "a8bb5006033d")
}

func TestConfirmDangerousOperation(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"I AGREE\n", true},
		{"  I AGREE  \n", true},
		{"I AGREE", true},
		{"i agree\n", false},
		{"yes\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var out bytes.Buffer
			got := FactoryResetConfirmation(strings.NewReader(tt.input), &out, "192.168.1.42")
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "FACTORY RESET")
			if !tt.want {
				assert.Contains(t, out.String(), "Operation cancelled.")
			}
		})
	}
}

func TestSwatchClamps(t *testing.T) {
	assert.NotPanics(t, func() { _ = Swatch(-5, 300, 128) })
	assert.Equal(t, 0, clampByte(-5))
	assert.Equal(t, 255, clampByte(300))
}
