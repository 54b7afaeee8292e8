package nsq

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FrameType is the wire frame_type field.
type FrameType int32

const (
	FrameTypeResponse FrameType = 0
	FrameTypeError    FrameType = 1
	FrameTypeMessage  FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeResponse:
		return "response"
	case FrameTypeError:
		return "error"
	case FrameTypeMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// ResponseKind further classifies a Response frame's UTF-8 payload.
type ResponseKind int

const (
	ResponseOK ResponseKind = iota
	ResponseCloseWait
	ResponseHeartbeat
	ResponseJSON
)

const (
	respOK         = "OK"
	respCloseWait  = "CLOSE_WAIT"
	respHeartbeat  = "_heartbeat_"
)

func classifyResponse(payload []byte) ResponseKind {
	switch string(payload) {
	case respOK:
		return ResponseOK
	case respCloseWait:
		return ResponseCloseWait
	case respHeartbeat:
		return ResponseHeartbeat
	default:
		return ResponseJSON
	}
}

// Response carries a decoded Response frame's payload and classification.
// It is also the success value returned from Client.Publish.
type Response struct {
	Kind ResponseKind
	Data []byte
}

// Ok reports whether this response frame signals success: a plain OK, or
// the CLOSE_WAIT synonym nsqd sends when acknowledging a graceful close,
// which is treated as OK everywhere in this module.
func (r Response) Ok() bool {
	return r.Kind == ResponseOK || r.Kind == ResponseCloseWait
}

// Frame is a decoded inbound frame: exactly one of Response, Message, or
// ErrorKind is meaningful, selected by Type.
type Frame struct {
	Type      FrameType
	Response  Response
	Message   *Message
	ErrorKind ErrorKind
}

const frameHeaderSize = 8 // u32 size + u32 frame_type; the reader strips the size before decodeFrame

// decodeFrame parses the frame_type + payload that remain once the framed
// reader has stripped the leading u32 size. raw must be at least 4 bytes
// (the frame_type field).
func decodeFrame(raw []byte) (Frame, error) {
	if len(raw) < 4 {
		return Frame{}, decodeErr(fmt.Sprintf("frame too short to contain a type: %d bytes", len(raw)))
	}

	frameType := FrameType(binary.BigEndian.Uint32(raw[0:4]))
	payload := raw[4:]

	switch frameType {
	case FrameTypeResponse:
		return Frame{Type: FrameTypeResponse, Response: Response{
			Kind: classifyResponse(payload),
			Data: payload,
		}}, nil

	case FrameTypeError:
		reason := strings.TrimSpace(string(payload))
		kind, ok := parseErrorKind(reason)
		if !ok {
			return Frame{}, decodeErr(fmt.Sprintf("unknown protocol error: %q", reason))
		}
		return Frame{Type: FrameTypeError, ErrorKind: kind}, nil

	case FrameTypeMessage:
		msg, err := decodeMessage(payload)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Type: FrameTypeMessage, Message: msg}, nil

	default:
		return Frame{}, decodeErr(fmt.Sprintf("unknown frame type: %d", frameType))
	}
}
