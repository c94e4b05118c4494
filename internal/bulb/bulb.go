package bulb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wizlight/internal/logging"
	"github.com/muurk/wizlight/internal/state"
	"github.com/muurk/wizlight/internal/wiz"
)

const (
	// PushKeepAliveInterval is how often a push registration is renewed
	PushKeepAliveInterval = 20 * time.Second

	// MaxTimeBetweenPush is how long a pushed state is trusted before
	// UpdateState polls the bulb again
	MaxTimeBetweenPush = PushKeepAliveInterval + wiz.DefaultCommandTimeout
)

// Bulb is a handle to one bulb. Calls on a Bulb are serialized so there is at
// most one outstanding exchange per bulb; different Bulbs run independently.
type Bulb struct {
	host   string
	client *wiz.Client
	logger *zap.Logger

	// callMu serializes exchanges
	callMu sync.Mutex

	// mu protects the cached fields below
	mu             sync.RWMutex
	mac            string
	state          *state.PilotState
	lastPush       time.Time
	powerSupported *bool
	history        *History
}

// Option configures a Bulb
type Option func(*Bulb)

// WithMAC seeds the hardware id (e.g. from discovery) so MAC needs no round trip
func WithMAC(mac string) Option {
	return func(b *Bulb) {
		b.mac = mac
	}
}

// WithLogger sets the bulb's logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Bulb) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a handle for the bulb at host (port optional)
func New(host string, client *wiz.Client, opts ...Option) *Bulb {
	b := &Bulb{
		host:    host,
		client:  client,
		logger:  logging.GetLogger().Named("bulb").With(zap.String("host", host)),
		history: NewHistory(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Host returns the address the bulb was created with
func (b *Bulb) Host() string {
	return b.host
}

// Send performs one exchange with the bulb and records it in the history
func (b *Bulb) Send(ctx context.Context, method wiz.Method, params map[string]interface{}, opts ...wiz.SendOption) (wiz.Result, error) {
	b.callMu.Lock()
	defer b.callMu.Unlock()

	b.history.Message(HistorySend, method, params)
	result, err := b.client.Send(ctx, b.host, method, params, opts...)
	if err != nil {
		b.history.Error(err)
		return nil, err
	}
	b.history.Message(HistoryReceive, method, result)
	return result, nil
}

// State returns the last known pilot state, or nil if none was fetched or pushed
func (b *Bulb) State() *state.PilotState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// UpdateState fetches the pilot state with getPilot. While push updates are
// arriving the pushed state is returned without polling.
func (b *Bulb) UpdateState(ctx context.Context) (*state.PilotState, error) {
	b.mu.RLock()
	cached, lastPush := b.state, b.lastPush
	b.mu.RUnlock()
	if cached != nil && !lastPush.IsZero() && time.Since(lastPush) < MaxTimeBetweenPush {
		return cached, nil
	}

	result, err := b.Send(ctx, wiz.MethodGetPilot, nil)
	if err != nil {
		return nil, err
	}
	pilot, err := state.ParsePilot(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse getPilot result: %w", err)
	}

	b.mu.Lock()
	b.state = pilot
	if mac, ok := pilot.MACAddress(); ok && b.mac == "" {
		b.mac = mac
	}
	b.mu.Unlock()
	return pilot, nil
}

// SetPilot sends setPilot with the given params unchanged
func (b *Bulb) SetPilot(ctx context.Context, params map[string]interface{}) error {
	_, err := b.Send(ctx, wiz.MethodSetPilot, params)
	return err
}

// TurnOn sends setPilot with state=true merged into params
func (b *Bulb) TurnOn(ctx context.Context, params map[string]interface{}) error {
	merged := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["state"] = true
	return b.SetPilot(ctx, merged)
}

// TurnOff switches the bulb off
func (b *Bulb) TurnOff(ctx context.Context) error {
	return b.SetPilot(ctx, map[string]interface{}{"state": false})
}

// Toggle reads the current state and switches to the opposite one
func (b *Bulb) Toggle(ctx context.Context) error {
	pilot, err := b.UpdateState(ctx)
	if err != nil {
		return err
	}
	if on, _ := pilot.IsOn(); on {
		return b.TurnOff(ctx)
	}
	return b.TurnOn(ctx, nil)
}

// SystemConfig fetches getSystemConfig and caches the MAC it reports
func (b *Bulb) SystemConfig(ctx context.Context) (*state.SystemConfig, error) {
	result, err := b.Send(ctx, wiz.MethodGetSystemConfig, nil)
	if err != nil {
		return nil, err
	}
	cfg, err := state.ParseSystemConfig(result)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.mac == "" && cfg.MAC != "" {
		b.mac = cfg.MAC
	}
	b.mu.Unlock()
	return cfg, nil
}

// ModelConfig fetches getModelConfig. Firmware before 1.22 does not know the
// method; then ModelConfig returns nil without error.
func (b *Bulb) ModelConfig(ctx context.Context) (wiz.Result, error) {
	result, err := b.Send(ctx, wiz.MethodGetModelConfig, nil)
	if errors.Is(err, wiz.ErrMethodNotFound) {
		return nil, nil
	}
	return result, err
}

// UserConfig fetches getUserConfig
func (b *Bulb) UserConfig(ctx context.Context) (wiz.Result, error) {
	return b.Send(ctx, wiz.MethodGetUserConfig, nil)
}

// MAC returns the bulb's hardware id, asking the bulb only when it is not cached
func (b *Bulb) MAC(ctx context.Context) (string, error) {
	b.mu.RLock()
	mac := b.mac
	b.mu.RUnlock()
	if mac != "" {
		return mac, nil
	}

	cfg, err := b.SystemConfig(ctx)
	if err != nil {
		return "", err
	}
	if cfg.MAC == "" {
		return "", fmt.Errorf("bulb %s did not report a MAC", b.host)
	}
	return cfg.MAC, nil
}

// Power returns the power draw in watts. ok is false when the bulb cannot
// measure power. Recent pushed state is used instead of polling.
func (b *Bulb) Power(ctx context.Context) (watts float64, ok bool, err error) {
	b.mu.RLock()
	cached, lastPush, supported := b.state, b.lastPush, b.powerSupported
	b.mu.RUnlock()

	pushFresh := !lastPush.IsZero() && time.Since(lastPush) < MaxTimeBetweenPush
	if !pushFresh && (supported == nil || *supported) {
		result, err := b.Send(ctx, wiz.MethodGetPower, nil)
		if errors.Is(err, wiz.ErrMethodNotFound) {
			b.setPowerSupported(false)
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		b.setPowerSupported(true)
		if mw, isNum := result["power"].(float64); isNum {
			return mw / 1000, true, nil
		}
	}

	if cached == nil {
		return 0, false, nil
	}
	watts, ok = cached.PowerWatts()
	return watts, ok, nil
}

func (b *Bulb) setPowerSupported(v bool) {
	b.mu.Lock()
	b.powerSupported = &v
	b.mu.Unlock()
}

// Reboot restarts the bulb
func (b *Bulb) Reboot(ctx context.Context) error {
	_, err := b.Send(ctx, wiz.MethodReboot, nil)
	return err
}

// Reset restores factory defaults
func (b *Bulb) Reset(ctx context.Context) error {
	_, err := b.Send(ctx, wiz.MethodReset, nil)
	return err
}

// HandlePush applies a syncPilot params mapping. It reports whether the state
// changed in a way worth notifying about.
func (b *Bulb) HandlePush(params map[string]interface{}) (bool, error) {
	b.history.Message(HistoryPush, wiz.MethodSyncPilot, params)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPush = time.Now()

	if b.state != nil && state.StatesMatch(b.state.Raw(), params) {
		return false, nil
	}
	pilot, err := state.ParsePilot(params)
	if err != nil {
		return false, err
	}
	b.state = pilot
	return true, nil
}

// Diagnostics is a snapshot of what the handle last saw
type Diagnostics struct {
	Host     string                            `json:"host"`
	MAC      string                            `json:"mac,omitempty"`
	State    map[string]interface{}            `json:"state,omitempty"`
	LastPush *time.Time                        `json:"last_push,omitempty"`
	History  map[string]map[string]interface{} `json:"history"`
	LastErr  string                            `json:"last_error,omitempty"`
}

// Diagnostics returns the last message of each kind and the last error
func (b *Bulb) Diagnostics() Diagnostics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	d := Diagnostics{
		Host:    b.host,
		MAC:     b.mac,
		History: b.history.Snapshot(),
		LastErr: b.history.LastError(),
	}
	if b.state != nil {
		d.State = b.state.Raw()
	}
	if !b.lastPush.IsZero() {
		t := b.lastPush
		d.LastPush = &t
	}
	return d
}
