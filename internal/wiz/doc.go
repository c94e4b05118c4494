// Package wiz implements the command channel to WiZ bulbs: one JSON request
// sent over UDP and retried until the bulb's reply arrives.
//
// Bulbs listen on UDP port 38899 and speak a JSON-RPC-like dialect without
// request ids:
//
//	-> {"method":"getPilot","params":{}}
//	<- {"method":"getPilot","env":"pro","result":{"mac":"a8bb5006033d","state":true,"dimming":13}}
//
// # Retry Model
//
// UDP drops datagrams, so every call retransmits the identical payload every
// send interval until one of the following happens:
//
//   - a reply with a "result" object arrives (success)
//   - a reply with an "error" object arrives (protocol error, never retried)
//   - the overall deadline passes (timeout, or decode error when replies came
//     back but none could be parsed)
//   - the caller's context is cancelled
//
// Replies are matched by the connected socket's peer address and by method:
// a datagram whose method differs from the request (a late answer to an
// earlier call, a syncPilot heartbeat) is ignored.
//
// After MaxAttempts datagrams the call stops transmitting but keeps listening
// until the deadline.
//
// # Usage Example
//
//	client, err := wiz.NewClient(wiz.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	result, err := client.Send(ctx, "192.168.1.20", wiz.MethodGetPilot, nil)
//	if wiz.IsTimeoutError(err) {
//	    fmt.Println(wiz.GetTroubleshootingHint(err))
//	}
//
// # Thread Safety
//
// Client is safe for concurrent use. Each call opens its own socket and owns
// its retry state, so calls to different bulbs never delay each other.
package wiz
