package wiz

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wizlight/internal/logging"
)

type exchangeState int

const (
	stateSending exchangeState = iota
	stateAwaitingReply
	stateSucceeded
	stateTimedOut
	stateFailed
)

func (s exchangeState) String() string {
	switch s {
	case stateSending:
		return "sending"
	case stateAwaitingReply:
		return "awaiting_reply"
	case stateSucceeded:
		return "succeeded"
	case stateTimedOut:
		return "timed_out"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// exchange is the retry state of one call. It is never shared between calls.
type exchange struct {
	client *Client
	conn   *net.UDPConn
	dest   *net.UDPAddr
	logger *zap.Logger

	method      Method
	payload     []byte
	interval    time.Duration
	maxAttempts int

	state         exchangeState
	attempts      int
	waitUntil     time.Time
	lastDecodeErr error

	result Result
	err    error
}

// run drives the exchange until it reaches a terminal state.
// ctx must carry the overall deadline of the call.
func (ex *exchange) run(ctx context.Context) {
	deadline, _ := ctx.Deadline()
	buf := make([]byte, ex.client.config.MaxDatagramSize)

	// Cancellation unblocks a pending read immediately
	stop := context.AfterFunc(ctx, func() {
		_ = ex.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		switch ex.state {
		case stateSending:
			ex.transmit(ctx, deadline)
		case stateAwaitingReply:
			ex.await(ctx, deadline, buf)
		default:
			ex.logger.Debug("Exchange finished",
				zap.Stringer("state", ex.state),
				zap.Int("attempts", ex.attempts))
			return
		}
	}
}

func (ex *exchange) transmit(ctx context.Context, deadline time.Time) {
	if ctx.Err() != nil {
		ex.state = stateTimedOut
		return
	}

	// Once the attempt budget is spent keep listening until the deadline
	if ex.attempts < ex.maxAttempts {
		logging.LogDatagram(ex.logger, "sent", ex.dest, ex.payload)
		if _, err := ex.conn.Write(ex.payload); err != nil {
			if !isConnRefused(err) {
				ex.fail(ClassifyNetworkError(err, ex.dest.String()))
				return
			}
			ex.logger.Debug("Bulb port unreachable, retrying", zap.Error(err))
		}
		ex.attempts++
		ex.client.metrics.datagramSent(ex.method)
	}

	ex.waitUntil = time.Now().Add(ex.interval)
	if ex.waitUntil.After(deadline) {
		ex.waitUntil = deadline
	}
	ex.interval = ex.client.config.nextInterval(ex.interval)
	ex.state = stateAwaitingReply
}

func (ex *exchange) await(ctx context.Context, deadline time.Time, buf []byte) {
	if err := ex.conn.SetReadDeadline(ex.waitUntil); err != nil {
		ex.fail(ClassifyNetworkError(err, ex.dest.String()))
		return
	}
	// The AfterFunc may have fired before the deadline above replaced its own
	if ctx.Err() != nil {
		ex.state = stateTimedOut
		return
	}

	n, err := ex.conn.Read(buf)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			ex.state = stateTimedOut
		case errors.Is(err, os.ErrDeadlineExceeded):
			ex.afterInterval(deadline)
		case isConnRefused(err):
			// Nothing listens on the port yet; wait out the interval before resending
			ex.logger.Debug("Bulb port unreachable, waiting", zap.Error(err))
			timer := time.NewTimer(time.Until(ex.waitUntil))
			select {
			case <-ctx.Done():
				timer.Stop()
				ex.state = stateTimedOut
			case <-timer.C:
				ex.afterInterval(deadline)
			}
		default:
			ex.fail(ClassifyNetworkError(err, ex.dest.String()))
		}
		return
	}

	data := buf[:n]
	logging.LogDatagram(ex.logger, "received", ex.dest, data)
	ex.handle(data)
}

// afterInterval moves to the next transmission or times out
func (ex *exchange) afterInterval(deadline time.Time) {
	if !time.Now().Before(deadline) {
		ex.state = stateTimedOut
		return
	}
	ex.state = stateSending
}

// handle classifies one received datagram
func (ex *exchange) handle(data []byte) {
	resp, err := DecodeResponse(data)
	if err != nil {
		ex.lastDecodeErr = err
		ex.logger.Warn("Undecodable reply", zap.Error(err))
		logging.LogRawBytes("Undecodable reply", data)
		return
	}

	// A late answer to an earlier request or a syncPilot heartbeat
	if resp.Method != "" && resp.Method != ex.method {
		ex.logger.Debug("Ignoring reply for another method", zap.String("reply_method", string(resp.Method)))
		return
	}

	switch {
	case resp.Error != nil:
		ex.fail(NewProtocolError(resp.Error.Code, resp.Error.Message))
	case resp.Result != nil:
		ex.result = resp.Result
		ex.state = stateSucceeded
	default:
		ex.lastDecodeErr = NewDecodeError("reply has neither result nor error", ErrEmptyResponse)
		ex.logger.Warn("Reply without result", zap.Error(ex.lastDecodeErr))
	}
}

func (ex *exchange) fail(err *DeviceError) {
	ex.err = err
	ex.state = stateFailed
}
