package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/wizlight/internal/wiz"
)

// fakeNetwork answers registrations like a subnet of bulbs: one socket takes
// the broadcast, and each bulb replies from its own socket.
type fakeNetwork struct {
	entry   *net.UDPConn
	bulbs   []*net.UDPConn
	macs    []string
	garbage bool

	mu       sync.Mutex
	requests []*wiz.Request
	done     chan struct{}
}

func newFakeNetwork(t *testing.T, macs []string, garbage bool) *fakeNetwork {
	t.Helper()
	loopback := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}

	entry, err := net.ListenUDP("udp4", loopback)
	require.NoError(t, err)

	f := &fakeNetwork{entry: entry, macs: macs, garbage: garbage, done: make(chan struct{})}
	for range macs {
		conn, err := net.ListenUDP("udp4", loopback)
		require.NoError(t, err)
		f.bulbs = append(f.bulbs, conn)
	}

	go f.serve()
	t.Cleanup(func() {
		_ = entry.Close()
		<-f.done
		for _, c := range f.bulbs {
			_ = c.Close()
		}
	})
	return f
}

func (f *fakeNetwork) serve() {
	defer close(f.done)
	buf := make([]byte, 4096)
	for {
		n, from, err := f.entry.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := wiz.DecodeRequest(buf[:n])
		if err != nil {
			continue
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		if f.garbage {
			_, _ = f.entry.WriteToUDP([]byte("test"), from)
			_, _ = f.entry.WriteToUDP([]byte(`{"method":`), from)
		}
		for i, conn := range f.bulbs {
			reply := fmt.Sprintf(`{"method":"registration","env":"pro","result":{"mac":"%s","success":true}}`, f.macs[i])
			// Every bulb answers twice to mimic retransmissions
			_, _ = conn.WriteToUDP([]byte(reply), from)
			_, _ = conn.WriteToUDP([]byte(reply), from)
		}
	}
}

func (f *fakeNetwork) Requests() []*wiz.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wiz.Request(nil), f.requests...)
}

func (f *fakeNetwork) config() Config {
	cfg := DefaultConfig()
	cfg.BroadcastAddress = "127.0.0.1"
	cfg.Port = f.entry.LocalAddr().(*net.UDPAddr).Port
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.AnnounceInterval = 50 * time.Millisecond
	return cfg
}

func TestListener_ThreeDevicesWithDuplicates(t *testing.T) {
	network := newFakeNetwork(t, []string{"a8bb50000001", "a8bb50000002", "a8bb50000003"}, true)

	var mu sync.Mutex
	var callbacks []string
	l := NewListener(network.config(), WithOnDevice(func(d *Device) {
		mu.Lock()
		defer mu.Unlock()
		callbacks = append(callbacks, d.MAC)
	}))
	require.NoError(t, l.Start(context.Background()))

	// Wait for several announcement rounds
	require.Eventually(t, func() bool { return len(network.Requests()) >= 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, l.Stop())

	devices := l.Devices()
	require.Len(t, devices, 3)
	macs := map[string]bool{}
	for _, d := range devices {
		macs[d.MAC] = true
		assert.Equal(t, "127.0.0.1", d.IP)
		assert.Equal(t, wiz.MethodRegistration, d.Method)
		assert.False(t, d.DiscoveredAt.IsZero())
	}
	assert.Len(t, macs, 3)

	mu.Lock()
	assert.Len(t, callbacks, 3)
	mu.Unlock()

	assert.NoError(t, l.Err())
}

func TestListener_RegistrationMessage(t *testing.T) {
	network := newFakeNetwork(t, nil, false)

	l := NewListener(network.config())
	require.NoError(t, l.Start(context.Background()))
	require.Eventually(t, func() bool { return len(network.Requests()) >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, l.Stop())

	req := network.Requests()[0]
	assert.Equal(t, wiz.MethodRegistration, req.Method)
	assert.Equal(t, map[string]interface{}{
		"phoneIp":  "1.2.3.4",
		"phoneMac": "AAAAAAAAAAAA",
		"register": true,
	}, req.Params)
}

func TestListener_MalformedDoesNotStopDiscovery(t *testing.T) {
	network := newFakeNetwork(t, []string{"a8bb50000001"}, true)

	l := NewListener(network.config())
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	require.Eventually(t, func() bool { return len(l.Devices()) == 1 }, 2*time.Second, 10*time.Millisecond)

	select {
	case <-l.Done():
		t.Fatal("listener closed after malformed datagrams")
	default:
	}
}

func TestListener_StartTwice(t *testing.T) {
	network := newFakeNetwork(t, nil, false)

	l := NewListener(network.config())
	require.NoError(t, l.Start(context.Background()))
	assert.ErrorIs(t, l.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, l.Stop())
	assert.ErrorIs(t, l.Start(context.Background()), ErrAlreadyStarted)
}

func TestListener_StopIsIdempotent(t *testing.T) {
	network := newFakeNetwork(t, nil, false)

	l := NewListener(network.config())
	require.NoError(t, l.Start(context.Background()))
	assert.NoError(t, l.Stop())
	assert.NoError(t, l.Stop())

	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	assert.NoError(t, l.Err())
}

func TestListener_StopBeforeStart(t *testing.T) {
	l := NewListener(DefaultConfig())
	assert.NoError(t, l.Stop())
	assert.ErrorIs(t, l.Start(context.Background()), ErrAlreadyStarted)
}

func TestListener_ContextCancelStops(t *testing.T) {
	network := newFakeNetwork(t, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	l := NewListener(network.config())
	require.NoError(t, l.Start(ctx))
	cancel()

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not close after context cancel")
	}
	assert.NoError(t, l.Err())
}

func TestListener_ConnectionLost(t *testing.T) {
	network := newFakeNetwork(t, nil, false)

	l := NewListener(network.config())
	require.NoError(t, l.Start(context.Background()))

	// Simulate a transport failure not caused by Stop
	l.mu.Lock()
	_ = l.conn.Close()
	l.mu.Unlock()

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not close after socket failure")
	}
	assert.True(t, errors.Is(l.Err(), ErrConnectionLost), "got %v", l.Err())
	assert.NoError(t, l.Stop())
}

func TestListener_DevicesIsSnapshot(t *testing.T) {
	network := newFakeNetwork(t, []string{"a8bb50000001"}, false)

	l := NewListener(network.config())
	require.NoError(t, l.Start(context.Background()))
	require.Eventually(t, func() bool { return len(l.Devices()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, l.Stop())

	snapshot := l.Devices()
	snapshot[0].MAC = "changed"
	assert.Equal(t, "a8bb50000001", l.Devices()[0].MAC)
}

func TestHandleDatagram(t *testing.T) {
	from := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 38899}

	tests := []struct {
		name    string
		data    string
		wantMAC string
		added   bool
	}{
		{"registration result", `{"method":"registration","result":{"mac":"a8bb5006033d","success":true}}`, "a8bb5006033d", true},
		{"firstBeat params", `{"method":"firstBeat","params":{"mac":"a8bb5006033e","fwVersion":"1.25.0"}}`, "a8bb5006033e", true},
		{"no mac", `{"method":"registration","result":{"success":true}}`, "", false},
		{"error reply", `{"method":"registration","env":"pro","error":{"code":-32600,"message":"Invalid Request"}}`, "", false},
		{"syncPilot params", `{"method":"syncPilot","params":{"mac":"a8bb5006033f","state":true}}`, "a8bb5006033f", true},
		{"peer registration", `{"method":"registration","params":{"phoneIp":"1.2.3.4","phoneMac":"AAAAAAAAAAAA","register":true}}`, "", false},
		{"garbage", `test`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewListener(DefaultConfig())
			l.handleDatagram([]byte(tt.data), from)

			devices := l.Devices()
			if !tt.added {
				assert.Empty(t, devices)
				return
			}
			require.Len(t, devices, 1)
			assert.Equal(t, tt.wantMAC, devices[0].MAC)
			assert.Equal(t, "192.168.1.20:38899", devices[0].Address())
		})
	}
}

func TestHandleDatagram_ErrorThenSuccessIsOneDevice(t *testing.T) {
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 38899}
	l := NewListener(DefaultConfig())

	l.handleDatagram([]byte(`{"env":"pro","error":{"code":-32600,"message":"Invalid Request"}}`), from)
	l.handleDatagram([]byte(`{"method":"registration","env":"pro","result":{"mac":"a8bb50000abc","success":true}}`), from)
	l.handleDatagram([]byte(`{"method":"registration","env":"pro","result":{"mac":"a8bb50000abc","success":true}}`), from)

	devices := l.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, "a8bb50000abc", devices[0].MAC)
}

func TestDiscover(t *testing.T) {
	network := newFakeNetwork(t, []string{"a8bb50000001", "a8bb50000002"}, false)

	devices, err := Discover(context.Background(), network.config(), 300*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestDiscover_NothingFound(t *testing.T) {
	network := newFakeNetwork(t, nil, false)

	devices, err := Discover(context.Background(), network.config(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no broadcast address", func(c *Config) { c.BroadcastAddress = "" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"zero interval", func(c *Config) { c.AnnounceInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
			assert.Error(t, NewListener(cfg).Start(context.Background()))
		})
	}
}
