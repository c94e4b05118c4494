package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/wizlight/internal/logging"
	"github.com/muurk/wizlight/internal/wiz"
)

const (
	// DefaultBroadcastAddress is the limited broadcast address
	DefaultBroadcastAddress = "255.255.255.255"

	// DefaultListenAddress binds an ephemeral port on all interfaces
	DefaultListenAddress = "0.0.0.0:0"

	// DefaultAnnounceInterval is how often the registration is re-broadcast
	DefaultAnnounceInterval = 1 * time.Second

	// DefaultPhoneIP and DefaultPhoneMAC are placeholders; bulbs answer
	// discovery regardless of their value.
	DefaultPhoneIP  = "1.2.3.4"
	DefaultPhoneMAC = "AAAAAAAAAAAA"
)

var (
	// ErrConnectionLost is reported by Err when the socket failed while listening
	ErrConnectionLost = errors.New("discovery connection lost")

	// ErrAlreadyStarted is returned by Start on a listener that is not idle
	ErrAlreadyStarted = errors.New("discovery listener already started")
)

// Config holds the discovery settings
type Config struct {
	// BroadcastAddress is where registrations are sent
	BroadcastAddress string

	// Port is the bulbs' command port
	Port int

	// ListenAddress is the local socket address
	ListenAddress string

	// AnnounceInterval is the time between registration broadcasts
	AnnounceInterval time.Duration

	// PhoneIP and PhoneMAC are sent in the registration params
	PhoneIP  string
	PhoneMAC string
}

// DefaultConfig returns the default discovery settings
func DefaultConfig() Config {
	return Config{
		BroadcastAddress: DefaultBroadcastAddress,
		Port:             wiz.DefaultPort,
		ListenAddress:    DefaultListenAddress,
		AnnounceInterval: DefaultAnnounceInterval,
		PhoneIP:          DefaultPhoneIP,
		PhoneMAC:         DefaultPhoneMAC,
	}
}

// Validate checks the discovery settings
func (c Config) Validate() error {
	if c.BroadcastAddress == "" {
		return fmt.Errorf("broadcast address is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", c.Port)
	}
	if c.AnnounceInterval <= 0 {
		return fmt.Errorf("announce interval must be positive (got %s)", c.AnnounceInterval)
	}
	return nil
}

// RegistrationParams returns the params of the broadcast registration request
func (c Config) RegistrationParams() map[string]interface{} {
	return map[string]interface{}{
		"phoneIp":  c.PhoneIP,
		"phoneMac": c.PhoneMAC,
		"register": true,
	}
}

type listenerState int

const (
	stateIdle listenerState = iota
	stateListening
	stateClosed
)

// Option configures a Listener
type Option func(*Listener)

// WithLogger sets the listener's logger
func WithLogger(l *zap.Logger) Option {
	return func(ln *Listener) {
		if l != nil {
			ln.logger = l
		}
	}
}

// WithOnDevice registers a callback invoked once for every new device.
// It runs on the receive goroutine and must not block.
func WithOnDevice(fn func(*Device)) Option {
	return func(ln *Listener) {
		ln.onDevice = fn
	}
}

// Listener is one discovery session: Idle until Start, Listening until Stop
// or a socket failure, then Closed. A Listener cannot be restarted.
type Listener struct {
	config   Config
	logger   *zap.Logger
	onDevice func(*Device)

	mu       sync.Mutex
	state    listenerState
	conn     *net.UDPConn
	cancel   context.CancelFunc
	stopping bool
	err      error
	done     chan struct{}

	devMu   sync.Mutex
	devices []*Device
	seen    map[string]struct{}
}

// NewListener creates an idle discovery listener
func NewListener(cfg Config, opts ...Option) *Listener {
	l := &Listener{
		config: cfg,
		logger: logging.GetLogger().Named("discovery"),
		done:   make(chan struct{}),
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start binds the socket and begins announcing and receiving.
// Cancelling ctx has the same effect as Stop.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateIdle {
		return ErrAlreadyStarted
	}
	if err := l.config.Validate(); err != nil {
		return fmt.Errorf("invalid discovery config: %w", err)
	}

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(l.config.BroadcastAddress, strconv.Itoa(l.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to resolve broadcast address: %w", err)
	}
	local, err := net.ResolveUDPAddr("udp4", l.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve listen address: %w", err)
	}
	payload, err := wiz.EncodeRequest(wiz.MethodRegistration, l.config.RegistrationParams())
	if err != nil {
		return err
	}

	// The runtime enables SO_BROADCAST on IPv4 datagram sockets
	conn, err := net.ListenUDP("udp4", local)
	if err != nil {
		return fmt.Errorf("failed to open discovery socket: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	stopClose := context.AfterFunc(groupCtx, func() {
		_ = conn.Close()
	})

	l.conn = conn
	l.cancel = cancel
	l.state = stateListening

	l.logger.Debug("Discovery started",
		zap.String("local_addr", conn.LocalAddr().String()),
		zap.String("broadcast", target.String()))

	group.Go(func() error {
		return l.receiveLoop(groupCtx, conn)
	})
	group.Go(func() error {
		return l.announceLoop(groupCtx, conn, target, payload)
	})

	go func() {
		err := group.Wait()
		stopClose()
		_ = conn.Close()
		cancel()

		l.mu.Lock()
		if err != nil && !l.stopping {
			l.err = err
			l.logger.Warn("Discovery stopped unexpectedly", zap.Error(err))
		}
		l.state = stateClosed
		l.mu.Unlock()
		close(l.done)
	}()

	return nil
}

// Stop ends the session and waits for both goroutines to exit.
// It is safe to call more than once.
func (l *Listener) Stop() error {
	l.mu.Lock()
	switch l.state {
	case stateIdle:
		l.state = stateClosed
		close(l.done)
		l.mu.Unlock()
		return nil
	case stateListening:
		l.stopping = true
		l.cancel()
		_ = l.conn.Close()
	}
	l.mu.Unlock()

	<-l.done
	return nil
}

// Done is closed once the listener reaches the Closed state
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err returns ErrConnectionLost (wrapped) if the socket failed while
// listening, and nil after a normal Stop.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// LocalAddr returns the bound socket address, or nil before Start
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Devices returns a snapshot of the devices found so far, in first-seen order
func (l *Listener) Devices() []*Device {
	l.devMu.Lock()
	defer l.devMu.Unlock()

	out := make([]*Device, len(l.devices))
	for i, d := range l.devices {
		copied := *d
		out[i] = &copied
	}
	return out
}

func (l *Listener) announceLoop(ctx context.Context, conn *net.UDPConn, target *net.UDPAddr, payload []byte) error {
	ticker := time.NewTicker(l.config.AnnounceInterval)
	defer ticker.Stop()

	for {
		logging.LogDatagram(l.logger, "sent", target, payload)
		if _, err := conn.WriteToUDP(payload, target); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}
			// Broadcast can fail transiently (no route yet); try again next tick
			l.logger.Warn("Registration broadcast failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (l *Listener) receiveLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, wiz.DefaultMaxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		logging.LogDatagram(l.logger, "received", from, buf[:n])
		l.handleDatagram(buf[:n], from)
	}
}

func (l *Listener) handleDatagram(data []byte, from *net.UDPAddr) {
	resp, err := wiz.DecodeResponse(data)
	if err != nil {
		l.logger.Debug("Ignoring malformed datagram",
			zap.String("remote_addr", from.String()),
			zap.Error(err))
		return
	}

	if resp.Error != nil {
		l.logger.Debug("Ignoring error reply",
			zap.String("remote_addr", from.String()),
			zap.Int("code", resp.Error.Code))
		return
	}

	// Another client's registration broadcast carries params but no mac
	mac := hardwareID(resp)
	if mac == "" {
		l.logger.Debug("Ignoring reply without mac", zap.String("remote_addr", from.String()))
		return
	}

	device := &Device{
		IP:           from.IP.String(),
		Port:         from.Port,
		MAC:          mac,
		Method:       resp.Method,
		DiscoveredAt: time.Now(),
	}
	if l.add(device) {
		l.logger.Info("Discovered bulb",
			zap.String("ip", device.IP),
			zap.String("mac", device.MAC))
		if l.onDevice != nil {
			copied := *device
			l.onDevice(&copied)
		}
	}
}

// add inserts the device unless its key was already seen
func (l *Listener) add(d *Device) bool {
	l.devMu.Lock()
	defer l.devMu.Unlock()

	key := d.Key()
	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	l.devices = append(l.devices, d)
	return true
}

func hardwareID(resp *wiz.Response) string {
	if mac, ok := resp.Result["mac"].(string); ok {
		return mac
	}
	if mac, ok := resp.Params["mac"].(string); ok {
		return mac
	}
	return ""
}

// Discover runs a discovery session for wait (or until ctx ends) and returns
// the devices found. Finding nothing is not an error.
func Discover(ctx context.Context, cfg Config, wait time.Duration, opts ...Option) ([]*Device, error) {
	l := NewListener(cfg, opts...)
	if err := l.Start(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-l.Done():
	}

	_ = l.Stop()
	return l.Devices(), l.Err()
}
