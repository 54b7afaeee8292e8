package nsq

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawResponsePayload(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(FrameTypeResponse))
	copy(out[4:], body)
	return out
}

func TestDecodeFrame_ResponseOK(t *testing.T) {
	frame, err := decodeFrame(rawResponsePayload([]byte("OK")))
	require.NoError(t, err)
	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.Equal(t, ResponseOK, frame.Response.Kind)
	assert.True(t, frame.Response.Ok())
}

func TestDecodeFrame_ResponseCloseWaitIsOk(t *testing.T) {
	frame, err := decodeFrame(rawResponsePayload([]byte("CLOSE_WAIT")))
	require.NoError(t, err)
	assert.Equal(t, ResponseCloseWait, frame.Response.Kind)
	assert.True(t, frame.Response.Ok())
}

func TestDecodeFrame_ResponseHeartbeat(t *testing.T) {
	frame, err := decodeFrame(rawResponsePayload([]byte("_heartbeat_")))
	require.NoError(t, err)
	assert.Equal(t, ResponseHeartbeat, frame.Response.Kind)
}

func TestDecodeFrame_ResponseJSON(t *testing.T) {
	frame, err := decodeFrame(rawResponsePayload([]byte(`{"max_rdy_count":10}`)))
	require.NoError(t, err)
	assert.Equal(t, ResponseJSON, frame.Response.Kind)
	assert.False(t, frame.Response.Ok())
}

func TestDecodeFrame_Error(t *testing.T) {
	payload := make([]byte, 4+len("E_BAD_TOPIC"))
	binary.BigEndian.PutUint32(payload[0:4], uint32(FrameTypeError))
	copy(payload[4:], "E_BAD_TOPIC")

	frame, err := decodeFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeError, frame.Type)
	assert.Equal(t, ErrBadTopic, frame.ErrorKind)
}

func TestDecodeFrame_UnknownErrorIsDecodeErrorNotPanic(t *testing.T) {
	payload := make([]byte, 4+len("E_MADE_UP"))
	binary.BigEndian.PutUint32(payload[0:4], uint32(FrameTypeError))
	copy(payload[4:], "E_MADE_UP")

	_, err := decodeFrame(payload)
	require.Error(t, err)
	nerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ClassDecode, nerr.Class)
}

func TestDecodeFrame_UnknownFrameType(t *testing.T) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload[0:4], 99)

	_, err := decodeFrame(payload)
	require.Error(t, err)
}

func TestDecodeFrame_Message(t *testing.T) {
	var id MessageID
	copy(id[:], "abcdefghijklmnop")

	payload := make([]byte, 4+8+2+MsgIDLength+4)
	binary.BigEndian.PutUint32(payload[0:4], uint32(FrameTypeMessage))
	binary.BigEndian.PutUint64(payload[4:12], 123456789)
	binary.BigEndian.PutUint16(payload[12:14], 1)
	copy(payload[14:14+MsgIDLength], id[:])
	copy(payload[14+MsgIDLength:], "body")

	frame, err := decodeFrame(payload)
	require.NoError(t, err)
	require.NotNil(t, frame.Message)
	assert.Equal(t, int64(123456789), frame.Message.Timestamp)
	assert.Equal(t, uint16(1), frame.Message.Attempts)
	assert.Equal(t, id, frame.Message.ID)
	assert.Equal(t, []byte("body"), frame.Message.Body)
}

func TestDecodeFrame_MessageEmptyBodyIsValid(t *testing.T) {
	var id MessageID
	copy(id[:], "0000000000000000")

	payload := make([]byte, 4+8+2+MsgIDLength)
	binary.BigEndian.PutUint32(payload[0:4], uint32(FrameTypeMessage))
	copy(payload[14:14+MsgIDLength], id[:])

	frame, err := decodeFrame(payload)
	require.NoError(t, err)
	assert.Empty(t, frame.Message.Body)
}

func TestDecodeFrame_MessageTooShortIsMalformed(t *testing.T) {
	payload := make([]byte, 4+10)
	binary.BigEndian.PutUint32(payload[0:4], uint32(FrameTypeMessage))

	_, err := decodeFrame(payload)
	require.Error(t, err)
}
