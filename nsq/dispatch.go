package nsq

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"
)

// drainTimeout bounds how long termination waits for nsqd to finish
// pushing frames after CLS before giving up and closing the socket.
const drainTimeout = 2 * time.Second

// dispatchLoop is the consumer path's per-connection frame loop. It runs
// on a single goroutine; the only other goroutine it spawns watches for
// context cancellation and unblocks the blocking read by closing the
// transport.
type dispatchLoop struct {
	conn      *conn
	handler   HandlerFunc
	inflight  *inflightTracker
	log       *zap.SugaredLogger
	metrics   *Metrics
	heartbeat time.Duration
}

func (d *dispatchLoop) run(ctx context.Context) error {
	stopWatching := d.watchCancellation(ctx)
	defer stopWatching()

	for {
		if d.heartbeat > 0 {
			// a frame must arrive within 2x the requested heartbeat
			// interval, else the connection is treated as dead.
			_ = d.conn.activeTransport().SetReadDeadline(time.Now().Add(2 * d.heartbeat))
		}

		frame, err := d.conn.nextFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ioErr(ctx.Err())
			}
			return err
		}

		switch frame.Type {
		case FrameTypeResponse:
			if err := d.handleResponse(frame.Response); err != nil {
				d.drain()
				return err
			}

		case FrameTypeError:
			nerr := protocolErr(frame.ErrorKind)
			if frame.ErrorKind.Fatal() {
				d.drain()
				return nerr
			}
			d.log.Warnw("non-fatal protocol error", "conn", d.conn.String(), "error", nerr)

		case FrameTypeMessage:
			if err := d.dispatchMessage(frame.Message); err != nil {
				d.drain()
				return err
			}
		}
	}
}

// handleResponse reacts to a Response frame outside the message-handling
// path. A heartbeat is answered with NOP and never surfaced to the
// handler. An OK or CLOSE_WAIT response is accepted without being matched
// against a command the loop issued; any other (JSON) response is a
// protocol violation.
func (d *dispatchLoop) handleResponse(resp Response) error {
	if resp.Kind == ResponseHeartbeat {
		return d.conn.sendCommand(Nop())
	}
	if resp.Ok() {
		return nil
	}
	return decodeErr("unexpected JSON response frame during dispatch")
}

func (d *dispatchLoop) dispatchMessage(msg *Message) error {
	d.inflight.insert(msg.ID)
	d.metrics.recordMessageReceived()

	cmd, err := d.handler(msg)
	if err != nil {
		d.log.Warnw("handler error, requeueing message", "conn", d.conn.String(), "id", msg.ID, "error", err)
		cmd = Req(msg.ID, 0)
	}

	outcome := ackOutcome(cmd)
	var ackedID MessageID
	if outcome == "fin" || outcome == "req" {
		if len(cmd.Params) > 0 {
			copy(ackedID[:], cmd.Params[0])
		}
		if !d.inflight.contains(ackedID) {
			return decodeErr("acked an id never seen on this connection")
		}
	}

	if err := d.conn.sendCommand(cmd); err != nil {
		return err
	}

	if outcome == "fin" || outcome == "req" {
		d.inflight.remove(ackedID)
	}
	d.metrics.recordAck(outcome)
	return nil
}

var (
	nameFIN   = []byte("FIN")
	nameREQ   = []byte("REQ")
	nameTOUCH = []byte("TOUCH")
)

func ackOutcome(cmd *Command) string {
	switch {
	case bytes.Equal(cmd.Name, nameFIN):
		return "fin"
	case bytes.Equal(cmd.Name, nameREQ):
		return "req"
	case bytes.Equal(cmd.Name, nameTOUCH):
		return "touch"
	default:
		return "unknown"
	}
}

// watchCancellation spawns the goroutine that turns ctx cancellation into
// a best-effort CLS write followed by closing the transport, which
// unblocks whatever blocking read the dispatch loop is currently
// suspended on. The returned func stops the watcher on normal loop exit.
func (d *dispatchLoop) watchCancellation(ctx context.Context) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = d.conn.sendCommand(Cls())
			d.conn.close()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// drain implements graceful termination: on exit, emit CLS (if the
// transport is still writable) and drain remaining frames until the peer
// closes or drainTimeout elapses.
func (d *dispatchLoop) drain() {
	_ = d.conn.sendCommand(Cls())

	transport := d.conn.activeTransport()
	_ = transport.SetReadDeadline(time.Now().Add(drainTimeout))

	for {
		if _, err := d.conn.nextFrame(); err != nil {
			return
		}
	}
}
