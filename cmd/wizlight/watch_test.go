package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/muurk/wizlight/internal/bulb"
	"github.com/muurk/wizlight/internal/state"
	"github.com/muurk/wizlight/internal/wiz"
	"github.com/muurk/wizlight/internal/wiz/wiztest"
)

func newWatchClient(t *testing.T) *wiz.Client {
	t.Helper()
	cfg := wiz.DefaultConfig()
	cfg.QueryTimeout = 2 * time.Second
	cfg.CommandTimeout = 2 * time.Second
	cfg.SendInterval = 50 * time.Millisecond
	c, err := wiz.NewClient(cfg)
	require.NoError(t, err)
	return c
}

func (p *eventPrinter) lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := p.out.(*bytes.Buffer)
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestEventPrinter_SuppressesUnchanged(t *testing.T) {
	printer := newEventPrinter(&bytes.Buffer{})

	off, err := state.ParsePilot(map[string]interface{}{"mac": "a8bb50000001", "state": false, "dimming": 13.0, "rssi": -55.0})
	require.NoError(t, err)
	weaker, err := state.ParsePilot(map[string]interface{}{"mac": "a8bb50000001", "state": false, "dimming": 13.0, "rssi": -70.0})
	require.NoError(t, err)
	on, err := state.ParsePilot(map[string]interface{}{"mac": "a8bb50000001", "state": true, "dimming": 13.0, "rssi": -70.0})
	require.NoError(t, err)

	printer.report("192.168.1.20", off)
	printer.report("192.168.1.20", off)
	printer.report("192.168.1.20", weaker)
	printer.report("192.168.1.21", off)
	printer.report("192.168.1.20", on)

	lines := printer.lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "192.168.1.20")
	assert.Contains(t, lines[1], "192.168.1.21")
	assert.Contains(t, lines[2], "192.168.1.20")
}

func TestPollBulb_PrintsChangesOnce(t *testing.T) {
	sim := wiztest.NewDefaultSimulator()
	fake, err := wiztest.NewSimulator(sim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fake.Close() })

	client := newWatchClient(t)
	b := bulb.New(fake.Addr(), client)
	printer := newEventPrinter(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pollBulb(ctx, b, 20*time.Millisecond, func(s *state.PilotState) {
			printer.report(fake.Addr(), s)
		}, zap.NewNop())
	}()

	// Several polls of an unchanged bulb print a single line
	require.Eventually(t, func() bool { return fake.Count() >= 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, printer.lines(), 1)

	_, err = client.Send(context.Background(), fake.Addr(), wiz.MethodSetPilot, map[string]interface{}{"state": true, "dimming": 60})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(printer.lines()) == 2 }, 2*time.Second, 10*time.Millisecond)
	seen := fake.Count()
	require.Eventually(t, func() bool { return fake.Count() >= seen+3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	lines := printer.lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "60%")
}

func TestPollBulb_StopsOnCancel(t *testing.T) {
	fake, err := wiztest.NewBulb(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fake.Close() })

	b := bulb.New(fake.Addr(), newWatchClient(t))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		pollBulb(ctx, b, time.Hour, func(*state.PilotState) {
			t.Error("silent bulb should not report a state")
		}, zap.NewNop())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pollBulb did not return after cancel")
	}
}
