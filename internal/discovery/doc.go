// Package discovery finds WiZ bulbs on the local network with UDP broadcast.
//
// # Discovery Process
//
// The discovery process works as follows:
//  1. Binds a UDP socket (ephemeral port by default)
//  2. Broadcasts a registration request to port 38899 immediately and then
//     every AnnounceInterval
//  3. Decodes every datagram that comes back; malformed ones are logged and
//     skipped
//  4. Records each distinct (sender IP, MAC) pair once, in first-seen order
//  5. Stops when the caller calls Stop or cancels the context
//
// The registration request looks like:
//
//	{"method":"registration","params":{"phoneIp":"1.2.3.4","phoneMac":"AAAAAAAAAAAA","register":true}}
//
// # Usage Example
//
//	devices, err := discovery.Discover(ctx, discovery.DefaultConfig(), 5*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, device := range devices {
//	    fmt.Printf("Found: %s\n", device)
//	}
//
// For long-running sessions use a Listener directly and poll Devices or pass
// WithOnDevice. If the socket fails while listening, Done is closed and Err
// reports ErrConnectionLost.
//
// # Network Requirements
//
// - Bulbs must be on the same broadcast domain
// - Firewall must allow outbound UDP to port 38899 and the replies
//
// # Thread Safety
//
// A Listener is safe for concurrent use. Multiple sessions can run at the
// same time on different sockets.
package discovery
