// Package config provides user configuration management for wizlight.
//
// This package manages a YAML-based configuration file that stores known bulbs
// (keyed by MAC address, with nickname and last seen address) and optional
// overrides for the command channel and discovery timing. The configuration
// follows OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/wizlight/config.yaml or $HOME/.config/wizlight/config.yaml
//   - macOS: $HOME/.config/wizlight/config.yaml
//   - Windows: %LOCALAPPDATA%\wizlight\config.yaml
//
// WIZLIGHT_CONFIG overrides the location.
//
// # File Format
//
//	version: 1
//	network:
//	  broadcast_address: 192.168.1.255
//	tuning:
//	  command_timeout: 5s
//	  send_interval: 250ms
//	bulbs:
//	  a8bb5006033d:
//	    nickname: desk
//	    last_ip: 192.168.1.42
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := wiz.NewClient(registry.WizConfig())
//	...
//	devices, _ := discovery.Discover(ctx, registry.DiscoveryConfig(), 5*time.Second)
//	registry.RecordDiscovery(devices)
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// File operations are protected by a mutex and writes are atomic. A Registry
// value itself is not safe for concurrent mutation.
package config
