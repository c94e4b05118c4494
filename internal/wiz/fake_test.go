package wiz

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// replyFunc returns the datagrams a fake bulb sends back for the nth request (1-based)
type replyFunc func(req *Request, n int) [][]byte

// fakeBulb is a loopback UDP responder standing in for a bulb
type fakeBulb struct {
	conn    *net.UDPConn
	reply   replyFunc
	mu      sync.Mutex
	methods []Method
	done    chan struct{}
}

func newFakeBulb(t *testing.T, reply replyFunc) *fakeBulb {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	f := &fakeBulb{conn: conn, reply: reply, done: make(chan struct{})}
	go f.serve()
	t.Cleanup(func() {
		_ = conn.Close()
		<-f.done
	})
	return f
}

func (f *fakeBulb) serve() {
	defer close(f.done)
	buf := make([]byte, 4096)
	for {
		n, from, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := DecodeRequest(buf[:n])
		if err != nil {
			continue
		}
		f.mu.Lock()
		f.methods = append(f.methods, req.Method)
		count := len(f.methods)
		f.mu.Unlock()

		if f.reply == nil {
			continue
		}
		for _, out := range f.reply(req, count) {
			_, _ = f.conn.WriteToUDP(out, from)
		}
	}
}

func (f *fakeBulb) Addr() string {
	return f.conn.LocalAddr().String()
}

func (f *fakeBulb) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.methods)
}

func replyAlways(data string) replyFunc {
	return func(*Request, int) [][]byte {
		return [][]byte{[]byte(data)}
	}
}
