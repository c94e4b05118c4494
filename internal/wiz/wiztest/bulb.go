// Package wiztest provides a loopback UDP bulb simulator for tests, in the
// spirit of net/http/httptest.
package wiztest

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/muurk/wizlight/internal/wiz"
)

// ParseErrorReply is what firmware sends for a datagram it cannot parse
const ParseErrorReply = `{"env":"pro","error":{"code":-32700,"message":"Parse error"}}`

// DefaultMAC is the hardware id of a simulated bulb
const DefaultMAC = "a8bb5006033d"

// Handler produces the replies to the nth request (1-based) received by a Bulb.
// Returning nil drops the request.
type Handler func(req *wiz.Request, n int) [][]byte

// Bulb is a simulated bulb listening on 127.0.0.1
type Bulb struct {
	conn    *net.UDPConn
	handler Handler

	mu       sync.Mutex
	requests []*wiz.Request

	wg sync.WaitGroup
}

// NewBulb starts a simulated bulb served by handler
func NewBulb(handler Handler) (*Bulb, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	b := &Bulb{conn: conn, handler: handler}
	b.wg.Add(1)
	go b.serve()
	return b, nil
}

// NewSimulator starts a stateful bulb answering getPilot, setPilot,
// getSystemConfig, getUserConfig, registration, reboot and reset.
func NewSimulator(sim *Simulator) (*Bulb, error) {
	return NewBulb(sim.Handle)
}

func (b *Bulb) serve() {
	defer b.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, from, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := wiz.DecodeRequest(buf[:n])
		if err != nil {
			_, _ = b.conn.WriteToUDP([]byte(ParseErrorReply), from)
			continue
		}

		b.mu.Lock()
		b.requests = append(b.requests, req)
		count := len(b.requests)
		b.mu.Unlock()

		if b.handler == nil {
			continue
		}
		for _, out := range b.handler(req, count) {
			_, _ = b.conn.WriteToUDP(out, from)
		}
	}
}

// Addr returns host:port of the simulated bulb
func (b *Bulb) Addr() string {
	return b.conn.LocalAddr().String()
}

// Requests returns every request received so far
func (b *Bulb) Requests() []*wiz.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*wiz.Request(nil), b.requests...)
}

// Count returns how many requests were received
func (b *Bulb) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Push sends an unsolicited datagram from the bulb's socket to addr
func (b *Bulb) Push(addr string, payload []byte) error {
	to, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return err
	}
	_, err = b.conn.WriteToUDP(payload, to)
	return err
}

// Close stops the bulb and waits for its goroutine
func (b *Bulb) Close() error {
	err := b.conn.Close()
	b.wg.Wait()
	return err
}

// Simulator holds the state of a simulated bulb
type Simulator struct {
	mu           sync.Mutex
	pilot        map[string]interface{}
	systemConfig map[string]interface{}
	userConfig   map[string]interface{}
	power        *float64
}

// NewDefaultSimulator returns a simulator for an RGB bulb that is off
func NewDefaultSimulator() *Simulator {
	return &Simulator{
		pilot: map[string]interface{}{
			"mac":     DefaultMAC,
			"rssi":    -55.0,
			"src":     "",
			"state":   false,
			"sceneId": 0.0,
			"temp":    2700.0,
			"dimming": 13.0,
		},
		systemConfig: map[string]interface{}{
			"mac":        DefaultMAC,
			"homeId":     653906.0,
			"roomId":     989983.0,
			"moduleName": "ESP01_SHRGB_03",
			"fwVersion":  "1.25.0",
			"groupId":    0.0,
			"drvConf":    []interface{}{30.0, 1.0},
			"ping":       0.0,
		},
		userConfig: map[string]interface{}{
			"fadeIn":   0.0,
			"fadeOut":  0.0,
			"dftDim":   100.0,
			"extRange": []interface{}{2200.0, 6500.0},
		},
	}
}

// SetPower makes getPower supported and report milliwatts
func (s *Simulator) SetPower(milliwatts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = &milliwatts
}

// Pilot returns a copy of the current pilot state
func (s *Simulator) Pilot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.pilot))
	for k, v := range s.pilot {
		out[k] = v
	}
	return out
}

// Handle implements Handler
func (s *Simulator) Handle(req *wiz.Request, _ int) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case wiz.MethodGetPilot:
		return reply(req.Method, s.pilot)
	case wiz.MethodSetPilot:
		for k, v := range req.Params {
			s.pilot[k] = v
		}
		return reply(req.Method, map[string]interface{}{"success": true})
	case wiz.MethodGetSystemConfig:
		return reply(req.Method, s.systemConfig)
	case wiz.MethodGetUserConfig:
		return reply(req.Method, s.userConfig)
	case wiz.MethodGetPower:
		if s.power == nil {
			return errorReply(req.Method, wiz.CodeMethodNotFound, "Method not found")
		}
		return reply(req.Method, map[string]interface{}{"power": *s.power})
	case wiz.MethodRegistration:
		return reply(req.Method, map[string]interface{}{"mac": s.systemConfig["mac"], "success": true})
	case wiz.MethodReboot, wiz.MethodReset:
		return reply(req.Method, map[string]interface{}{"success": true})
	default:
		return errorReply(req.Method, wiz.CodeMethodNotFound, "Method not found")
	}
}

func reply(method wiz.Method, result map[string]interface{}) [][]byte {
	data, err := json.Marshal(wiz.Response{Method: method, Env: "pro", Result: result})
	if err != nil {
		return nil
	}
	return [][]byte{data}
}

func errorReply(method wiz.Method, code int, message string) [][]byte {
	data, err := json.Marshal(wiz.Response{Method: method, Env: "pro", Error: &wiz.ResponseError{Code: code, Message: message}})
	if err != nil {
		return nil
	}
	return [][]byte{data}
}
