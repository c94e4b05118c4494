package bulb

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exposes the bulb's cached state as gauges. Values are NaN
// until a state has been fetched or pushed.
func RegisterMetrics(registry prometheus.Registerer, b *Bulb, mac string) {
	constLabels := prometheus.Labels{
		"bulb_host": b.Host(),
		"bulb_mac":  mac,
	}

	gauge := func(name, help string, value func() (float64, bool)) {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "wizlight",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 {
			v, ok := value()
			if !ok {
				return math.NaN()
			}
			return v
		}))
	}

	gauge("bulb_is_on", "1 when the bulb is on.", func() (float64, bool) {
		s := b.State()
		if s == nil {
			return 0, false
		}
		on, ok := s.IsOn()
		if on {
			return 1, ok
		}
		return 0, ok
	})
	gauge("bulb_brightness_percent", "Dimming level in percent.", func() (float64, bool) {
		s := b.State()
		if s == nil {
			return 0, false
		}
		v, ok := s.BrightnessPercent()
		return float64(v), ok
	})
	gauge("bulb_color_temperature_kelvin", "White colour temperature.", func() (float64, bool) {
		s := b.State()
		if s == nil {
			return 0, false
		}
		v, ok := s.ColorTemp()
		return float64(v), ok
	})
	gauge("bulb_wifi_rssi", "WiFi signal strength in dBm.", func() (float64, bool) {
		s := b.State()
		if s == nil || s.RSSI == nil {
			return 0, false
		}
		return float64(*s.RSSI), true
	})
	gauge("bulb_power_watts", "Power draw reported in pushed state.", func() (float64, bool) {
		s := b.State()
		if s == nil {
			return 0, false
		}
		return s.PowerWatts()
	})
}
