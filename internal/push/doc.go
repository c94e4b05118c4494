// Package push receives state updates that bulbs send on their own.
//
// A bulb that received a registration with register=true sends syncPilot
// messages to UDP port 38900 of the registering host whenever its state
// changes, plus periodic heartbeats. Registrations expire, so KeepAlive
// renews them every 20 seconds. Bulbs that power up announce themselves with
// firstBeat, which is reported to the discovery callback.
//
//	m := push.NewManager(push.DefaultConfig(), client)
//	if err := m.Start(); err != nil {
//	    // port 38900 is taken; fall back to polling
//	}
//	defer m.Stop()
//	cancel := m.WatchBulb(b, mac, func(s *state.PilotState) { ... })
//	defer cancel()
//	go m.KeepAlive(ctx, []string{b.Host()})
package push
