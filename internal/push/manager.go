package push

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/wizlight/internal/bulb"
	"github.com/muurk/wizlight/internal/discovery"
	"github.com/muurk/wizlight/internal/logging"
	"github.com/muurk/wizlight/internal/state"
	"github.com/muurk/wizlight/internal/wiz"
)

const (
	// DefaultListenPort is where bulbs send syncPilot and firstBeat
	DefaultListenPort = 38900

	// DefaultKeepAliveInterval is how often registrations are renewed
	DefaultKeepAliveInterval = bulb.PushKeepAliveInterval
)

// probe is sent by the WiZ app to test connectivity
var probe = []byte("test")

// ErrNotStarted is returned by operations that need a running Manager
var ErrNotStarted = errors.New("push manager not started")

// Config holds the push listener settings
type Config struct {
	// ListenAddress is the local socket address (default ":38900")
	ListenAddress string

	// KeepAliveInterval is the time between registration renewals
	KeepAliveInterval time.Duration

	// PhoneMAC is sent in registrations; generated when empty
	PhoneMAC string
}

// DefaultConfig returns the default push settings
func DefaultConfig() Config {
	return Config{
		ListenAddress:     ":" + strconv.Itoa(DefaultListenPort),
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

// Handler receives the params of a syncPilot push
type Handler func(params map[string]interface{}, from *net.UDPAddr)

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager's logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDiscoveryCallback reports bulbs announcing themselves with firstBeat
func WithDiscoveryCallback(fn func(*discovery.Device)) Option {
	return func(m *Manager) {
		m.onDiscovery = fn
	}
}

// Manager receives push updates from bulbs and dispatches them by MAC
type Manager struct {
	config      Config
	client      *wiz.Client
	logger      *zap.Logger
	onDiscovery func(*discovery.Device)

	mu     sync.Mutex
	conn   *net.UDPConn
	subs   map[string]map[uint64]Handler
	nextID uint64
	wg     sync.WaitGroup
}

// NewManager creates a push manager. client is used for keep-alive registrations.
func NewManager(cfg Config, client *wiz.Client, opts ...Option) *Manager {
	if cfg.PhoneMAC == "" {
		cfg.PhoneMAC = GenerateMAC()
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	m := &Manager{
		config: cfg,
		client: client,
		logger: logging.GetLogger().Named("push"),
		subs:   make(map[string]map[uint64]Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start binds the push socket. Calling Start on a running manager is a no-op.
// If the port is taken the caller should fall back to polling.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp4", m.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve push listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("cannot listen for push updates on %s: %w", m.config.ListenAddress, err)
	}
	m.conn = conn
	m.logger.Debug("Push listener started", zap.String("local_addr", conn.LocalAddr().String()))

	m.wg.Add(1)
	go m.receiveLoop(conn)
	return nil
}

// Stop closes the push socket and waits for the receive goroutine
func (m *Manager) Stop() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	m.wg.Wait()
	return err
}

// LocalAddr returns the bound push address, or nil when stopped
func (m *Manager) LocalAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	return m.conn.LocalAddr()
}

// Subscribe registers fn for syncPilot pushes from mac.
// The returned func removes the subscription.
func (m *Manager) Subscribe(mac string, fn Handler) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	if m.subs[mac] == nil {
		m.subs[mac] = make(map[uint64]Handler)
	}
	m.subs[mac][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[mac], id)
			if len(m.subs[mac]) == 0 {
				delete(m.subs, mac)
			}
		})
	}
}

// WatchBulb feeds pushes for mac into b and calls onChange when the state
// changed in a way worth reporting (see state.StatesMatch).
func (m *Manager) WatchBulb(b *bulb.Bulb, mac string, onChange func(*state.PilotState)) (cancel func()) {
	return m.Subscribe(mac, func(params map[string]interface{}, _ *net.UDPAddr) {
		changed, err := b.HandlePush(params)
		if err != nil {
			m.logger.Warn("Invalid pushed state", zap.String("mac", mac), zap.Error(err))
			return
		}
		if changed && onChange != nil {
			onChange(b.State())
		}
	})
}

func (m *Manager) receiveLoop(conn *net.UDPConn) {
	defer m.wg.Done()
	buf := make([]byte, wiz.DefaultMaxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				m.logger.Error("Push listener failed", zap.Error(err))
			}
			return
		}
		data := append([]byte(nil), buf[:n]...)
		logging.LogDatagram(m.logger, "push", from, data)
		m.dispatch(data, from)
	}
}

func (m *Manager) dispatch(data []byte, from *net.UDPAddr) {
	if bytes.Equal(data, probe) {
		return
	}
	msg, err := wiz.DecodeResponse(data)
	if err != nil {
		m.logger.Warn("Invalid push message",
			zap.String("remote_addr", from.String()),
			zap.Error(err))
		return
	}
	mac, _ := msg.Params["mac"].(string)

	switch msg.Method {
	case wiz.MethodFirstBeat:
		if m.onDiscovery != nil {
			m.onDiscovery(&discovery.Device{
				IP:           from.IP.String(),
				Port:         wiz.DefaultPort,
				MAC:          mac,
				Method:       msg.Method,
				DiscoveredAt: time.Now(),
			})
		}
	case wiz.MethodSyncPilot:
		for _, fn := range m.handlers(mac) {
			fn(msg.Params, from)
		}
	}
}

func (m *Manager) handlers(mac string) []Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handler, 0, len(m.subs[mac]))
	for _, fn := range m.subs[mac] {
		out = append(out, fn)
	}
	return out
}

// RegistrationParams builds the registration that asks target to push to this host
func (m *Manager) RegistrationParams(target string) (map[string]interface{}, error) {
	ip, err := SourceIP(target)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"phoneIp":  ip,
		"phoneMac": m.config.PhoneMAC,
		"register": true,
	}, nil
}

// Register sends one push registration to every target concurrently.
// Failures are logged; a bulb that misses one registration gets the next.
func (m *Manager) Register(ctx context.Context, targets []string) {
	var g errgroup.Group
	for _, target := range targets {
		target := target
		g.Go(func() error {
			params, err := m.RegistrationParams(target)
			if err != nil {
				m.logger.Debug("Cannot determine source IP", zap.String("target", target), zap.Error(err))
				return nil
			}
			if _, err := m.client.Send(ctx, target, wiz.MethodRegistration, params); err != nil {
				m.logger.Debug("Registration for push updates failed", zap.String("target", target), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// KeepAlive registers with every target now and then every KeepAliveInterval
// until ctx is done. The manager must be started.
func (m *Manager) KeepAlive(ctx context.Context, targets []string) error {
	if m.LocalAddr() == nil {
		return ErrNotStarted
	}

	ticker := time.NewTicker(m.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		m.Register(ctx, targets)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SourceIP returns the local address used to reach target. No packet is sent.
func SourceIP(target string) (string, error) {
	addr, err := wiz.ResolveAddress(target, wiz.DefaultPort)
	if err != nil {
		return "", err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return "", fmt.Errorf("no route to %s: %w", target, err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

// GenerateMAC returns a random locally administered unicast MAC, formatted
// the way bulbs report theirs (12 lowercase hex digits).
func GenerateMAC() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "aaaaaaaaaaaa"
	}
	b[0] = (b[0] | 0x02) &^ 0x01
	return hex.EncodeToString(b)
}
