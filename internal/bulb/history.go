package bulb

import (
	"sync"

	"github.com/muurk/wizlight/internal/wiz"
)

// History message kinds
const (
	HistorySend    = "send"
	HistoryReceive = "receive"
	HistoryPush    = "push"
)

// History keeps the last message of each method per kind, for diagnostics
type History struct {
	mu        sync.Mutex
	messages  map[string]map[string]interface{}
	lastError string
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{
		messages: map[string]map[string]interface{}{
			HistorySend:    {},
			HistoryReceive: {},
			HistoryPush:    {},
		},
	}
}

// Message records the payload of method under kind, replacing the previous one
func (h *History) Message(kind string, method wiz.Method, payload map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byMethod, ok := h.messages[kind]
	if !ok {
		return
	}
	byMethod[string(method)] = copyPayload(payload)
}

// Error records the last error
func (h *History) Error(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastError = err.Error()
}

// LastError returns the last recorded error message
func (h *History) LastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// Snapshot returns a copy of the recorded messages by kind and method
func (h *History) Snapshot() map[string]map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]map[string]interface{}, len(h.messages))
	for kind, byMethod := range h.messages {
		copied := make(map[string]interface{}, len(byMethod))
		for method, payload := range byMethod {
			copied[method] = payload
		}
		out[kind] = copied
	}
	return out
}

func copyPayload(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
