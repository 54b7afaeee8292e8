package nsq

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

var byteSpace = []byte(" ")
var byteNewLine = []byte("\n")

// MagicV2 is the 4-byte preamble written once, before IDENTIFY, to select
// the V2 wire protocol. It carries no response.
var MagicV2 = []byte("  V2")

// Command represents a single outbound command in the NSQ TCP protocol: a
// name, zero or more space-separated parameters, and an optional
// length-prefixed body.
//
// Each command kind built by the constructors below has exactly one
// canonical WriteTo encoding.
type Command struct {
	Name   []byte
	Params [][]byte
	Body   []byte
}

// String returns the command's name and parameters, for logging.
func (c *Command) String() string {
	if len(c.Params) > 0 {
		return fmt.Sprintf("%s %s", c.Name, bytes.Join(c.Params, byteSpace))
	}
	return string(c.Name)
}

// WriteTo serializes the command to w: name, space-separated params, a
// newline, then (if Body is non-nil) a big-endian u32 length and the body.
//
// Reserve capacity on w before calling this so the command is never split
// across two underlying writes.
func (c *Command) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var lenBuf [4]byte

	n, err := w.Write(c.Name)
	total += int64(n)
	if err != nil {
		return total, err
	}

	for _, param := range c.Params {
		n, err = w.Write(byteSpace)
		total += int64(n)
		if err != nil {
			return total, err
		}
		n, err = w.Write(param)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	n, err = w.Write(byteNewLine)
	total += int64(n)
	if err != nil {
		return total, err
	}

	if c.Body != nil {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c.Body)))
		n, err = w.Write(lenBuf[:])
		total += int64(n)
		if err != nil {
			return total, err
		}
		n, err = w.Write(c.Body)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// Identify builds the IDENTIFY command, carrying the caller's requested
// ClientConfig serialized to JSON as the command body. It is always the
// first command sent after MagicV2.
func Identify(cfg ClientConfig) (*Command, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return &Command{Name: []byte("IDENTIFY"), Body: body}, nil
}

// Auth builds the AUTH command carrying the caller's token. Sent only when
// the negotiated config reports auth_required.
func Auth(token string) *Command {
	return &Command{Name: []byte("AUTH"), Body: []byte(token)}
}

// Sub builds the SUB command to subscribe a connection to a topic/channel
// pair.
func Sub(topic, channel string) *Command {
	return &Command{
		Name:   []byte("SUB"),
		Params: [][]byte{[]byte(topic), []byte(channel)},
	}
}

// Rdy builds the RDY command, setting the number of in-flight messages this
// connection is willing to receive.
func Rdy(count int64) *Command {
	return &Command{
		Name:   []byte("RDY"),
		Params: [][]byte{[]byte(strconv.FormatInt(count, 10))},
	}
}

// Pub builds the PUB command publishing a single message body to topic.
func Pub(topic string, body []byte) *Command {
	return &Command{
		Name:   []byte("PUB"),
		Params: [][]byte{[]byte(topic)},
		Body:   body,
	}
}

// Dpub builds the DPUB command: publish a single message that nsqd queues
// at the channel level until delay elapses.
func Dpub(topic string, delay time.Duration, body []byte) *Command {
	delayMs := strconv.FormatInt(int64(delay/time.Millisecond), 10)
	return &Command{
		Name:   []byte("DPUB"),
		Params: [][]byte{[]byte(topic), []byte(delayMs)},
		Body:   body,
	}
}

// Mpub builds the MPUB command publishing several message bodies to topic
// in a single round trip. The body is: u32 count, then (u32 len, body) per
// message.
func Mpub(topic string, bodies [][]byte) (*Command, error) {
	if len(bodies) == 0 {
		return nil, decodeErr("mpub requires at least one body")
	}

	bodySize := 4
	for _, b := range bodies {
		bodySize += 4 + len(b)
	}

	buf := bytes.NewBuffer(make([]byte, 0, bodySize))

	if err := binary.Write(buf, binary.BigEndian, uint32(len(bodies))); err != nil {
		return nil, err
	}
	for _, b := range bodies {
		if err := binary.Write(buf, binary.BigEndian, uint32(len(b))); err != nil {
			return nil, err
		}
		if _, err := buf.Write(b); err != nil {
			return nil, err
		}
	}

	return &Command{
		Name:   []byte("MPUB"),
		Params: [][]byte{[]byte(topic)},
		Body:   buf.Bytes(),
	}, nil
}

// Fin builds the FIN command, acknowledging successful processing of id.
func Fin(id MessageID) *Command {
	return &Command{Name: []byte("FIN"), Params: [][]byte{id[:]}}
}

// Req builds the REQ command, requeueing id for redelivery after delay. A
// delay of 0 requests immediate requeue.
func Req(id MessageID, delay time.Duration) *Command {
	delayMs := strconv.FormatInt(int64(delay/time.Millisecond), 10)
	return &Command{Name: []byte("REQ"), Params: [][]byte{id[:], []byte(delayMs)}}
}

// Touch builds the TOUCH command, resetting the server-side processing
// timeout for id.
func Touch(id MessageID) *Command {
	return &Command{Name: []byte("TOUCH"), Params: [][]byte{id[:]}}
}

// Cls builds the CLS command, beginning a graceful close: nsqd stops
// delivering new messages and expects outstanding ones to be finished.
func Cls() *Command {
	return &Command{Name: []byte("CLS")}
}

// Nop builds the NOP command, used to acknowledge a heartbeat.
func Nop() *Command {
	return &Command{Name: []byte("NOP")}
}
