package state

import "reflect"

// PIRSource is the src value of changes triggered by a motion sensor
const PIRSource = "pir"

// WizmoteButtons maps WiZmote src values to the button pressed
var WizmoteButtons = map[string]string{
	"wfa1":  "on",
	"wfa2":  "off",
	"wfa3":  "night",
	"wfa8":  "decrease_brightness",
	"wfa9":  "increase_brightness",
	"wfa16": "1",
	"wfa17": "2",
	"wfa18": "3",
	"wfa19": "4",
}

// Keys that change on every push without a visible state change
var ignoredKeys = map[string]struct{}{
	"mqttCd": {},
	"ts":     {},
	"rssi":   {},
}

func alwaysNotify(src any) bool {
	s, ok := src.(string)
	if !ok {
		return false
	}
	if s == PIRSource {
		return true
	}
	_, button := WizmoteButtons[s]
	return button
}

// StatesMatch reports whether next carries no change worth notifying over prev.
// Keys in next are compared against prev, ignoring mqttCd, ts and rssi.
// A src change to or from a motion sensor or WiZmote button always counts.
func StatesMatch(prev, next map[string]any) bool {
	prevSrc, nextSrc := prev["src"], next["src"]
	if !reflect.DeepEqual(prevSrc, nextSrc) && (alwaysNotify(prevSrc) || alwaysNotify(nextSrc)) {
		return false
	}
	for key, value := range next {
		if key == "src" {
			continue
		}
		if _, ignored := ignoredKeys[key]; ignored {
			continue
		}
		old, ok := prev[key]
		if !ok || !reflect.DeepEqual(old, value) {
			return false
		}
	}
	return true
}
