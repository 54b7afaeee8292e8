package nsq

import (
	"encoding/binary"
	"fmt"
)

// MsgIDLength is the number of bytes for a Message.ID.
const MsgIDLength = 16

// MessageID is the fixed-width ASCII identifier nsqd assigns to a message.
type MessageID [MsgIDLength]byte

func (id MessageID) String() string {
	return string(id[:])
}

// Message is the fundamental data type decoded from a FrameTypeMessage
// frame. It is created only by the frame decoder, handed to the handler,
// and never mutated after construction.
type Message struct {
	ID        MessageID
	Body      []byte
	Timestamp int64 // nanoseconds since epoch
	Attempts  uint16
}

// decodeMessage deserializes a FrameTypeMessage payload into a Message.
//
// Layout: [0:8) i64 BE timestamp, [8:10) u16 BE attempts, [10:26) 16-byte
// ASCII id, [26:) body. A payload shorter than MsgIDLength+10 bytes is
// malformed.
func decodeMessage(payload []byte) (*Message, error) {
	const headerLen = 8 + 2 + MsgIDLength
	if len(payload) < headerLen {
		return nil, decodeErr(fmt.Sprintf("message frame too short: %d bytes", len(payload)))
	}

	msg := &Message{
		Timestamp: int64(binary.BigEndian.Uint64(payload[0:8])),
		Attempts:  binary.BigEndian.Uint16(payload[8:10]),
	}
	copy(msg.ID[:], payload[10:headerLen])

	body := payload[headerLen:]
	msg.Body = make([]byte, len(body))
	copy(msg.Body, body)

	return msg, nil
}
