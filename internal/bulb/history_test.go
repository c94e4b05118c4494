package bulb

import (
	"errors"
	"testing"

	"github.com/muurk/wizlight/internal/wiz"
)

func TestHistory(t *testing.T) {
	h := NewHistory()

	h.Message(HistorySend, wiz.MethodSetPilot, map[string]interface{}{"state": true})
	h.Message(HistorySend, wiz.MethodSetPilot, map[string]interface{}{"state": false})
	h.Message("bogus", wiz.MethodGetPilot, map[string]interface{}{})
	h.Error(errors.New("timeout"))
	h.Error(nil)

	snap := h.Snapshot()
	if got := snap[HistorySend]["setPilot"].(map[string]interface{})["state"]; got != false {
		t.Errorf("last setPilot state = %v, want false", got)
	}
	if _, ok := snap["bogus"]; ok {
		t.Error("unknown kind was recorded")
	}
	if got := h.LastError(); got != "timeout" {
		t.Errorf("LastError() = %q, want %q", got, "timeout")
	}

	// Snapshot must not alias internal maps
	snap[HistorySend]["getPilot"] = nil
	if _, ok := h.Snapshot()[HistorySend]["getPilot"]; ok {
		t.Error("Snapshot() aliases internal state")
	}
}
