// Package logging provides structured logging for the wizlight library and CLI.
//
// This package wraps a process-wide zap logger with convenience functions and
// a few protocol-specific helpers for logging UDP datagrams exchanged with
// bulbs.
//
// # Log Levels
//
//   - Debug: every datagram sent or received, discovery announcements
//   - Info: discovered bulbs, push subscriptions
//   - Warn: undecodable replies, failed keep-alive registrations
//   - Error: socket failures
//
// # Configuration
//
// Logging is silent unless a level is given explicitly or through the
// WIZLIGHT_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Components that accept a *zap.Logger option default to a named child of
// GetLogger(), so a single Initialize call configures the whole library.
//
// # Datagram Logging
//
//	logging.LogDatagram(l, "sent", addr, payload)
//	logging.LogDatagram(l, "received", addr, payload)
//
// Payloads are rendered as printable ASCII and truncated to 256 bytes.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize has
// returned. Initialize and SetLogger themselves are meant to be called during
// startup.
package logging
