package nsq

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"io"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// readWireCommand parses one outbound command off r the way a fake nsqd
// test double needs to: a header line (name [+ space-separated params]),
// then, for commands that carry one, a u32 length and body.
func readWireCommand(r io.Reader) (name string, paramsLine string, body []byte, err error) {
	line, err := readHeaderLine(r)
	if err != nil {
		return "", "", nil, err
	}
	parts := strings.SplitN(line, " ", 2)
	name = parts[0]
	if len(parts) > 1 {
		paramsLine = parts[1]
	}

	switch name {
	case "IDENTIFY", "AUTH", "PUB", "MPUB", "DPUB":
		lenBuf, err2 := readExactly(r, 4)
		if err2 != nil {
			return name, paramsLine, nil, err2
		}
		bodyLen := binary.BigEndian.Uint32(lenBuf)
		body, err = readExactly(r, int(bodyLen))
	}
	return name, paramsLine, body, err
}

func readHeaderLine(r io.Reader) (string, error) {
	var buf []byte
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if n > 0 {
			if b[0] == '\n' {
				return string(buf), nil
			}
			buf = append(buf, b[0])
		}
		if err != nil {
			return "", err
		}
	}
}

func readExactly(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	return buf, err
}

func encodeRawFrame(frameType FrameType, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(4+len(payload)))
	binary.BigEndian.PutUint32(out[4:8], uint32(frameType))
	copy(out[8:], payload)
	return out
}

func encodeResponseFrame(payload string) []byte {
	return encodeRawFrame(FrameTypeResponse, []byte(payload))
}

func encodeErrorFrame(reason string) []byte {
	return encodeRawFrame(FrameTypeError, []byte(reason))
}

func encodeMessageFrame(id MessageID, body []byte) []byte {
	payload := make([]byte, 8+2+MsgIDLength+len(body))
	binary.BigEndian.PutUint64(payload[0:8], 1)
	binary.BigEndian.PutUint16(payload[8:10], 0)
	copy(payload[10:10+MsgIDLength], id[:])
	copy(payload[10+MsgIDLength:], body)
	return encodeRawFrame(FrameTypeMessage, payload)
}

// newTestConn builds a *conn directly around an already-established net.Conn,
// bypassing dial's TCP-dialing and magic-preamble write so unit tests can
// drive the handshake/dispatch logic over a net.Pipe.
func newTestConn(nc net.Conn) *conn {
	return &conn{
		addr:        "test",
		netConn:     nc,
		w:           nc,
		fr:          newFrameReader(nc),
		log:         zap.NewNop().Sugar(),
		maxRdyCount: 2500,
	}
}

func testMessageID(s string) MessageID {
	var id MessageID
	copy(id[:], s)
	return id
}

// selfSignedTLSPair generates a throwaway self-signed certificate and
// returns a server-side tls.Config presenting it plus a client-side
// tls.Config that trusts it, for exercising a real tls.Client/tls.Server
// handshake in tests without a filesystem cert.
func selfSignedTLSPair(t *testing.T, serverName string) (serverCfg, clientCfg *tls.Config) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: serverName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{serverName},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	serverCfg = &tls.Config{Certificates: []tls.Certificate{cert}}
	clientCfg = &tls.Config{RootCAs: pool, ServerName: serverName}
	return serverCfg, clientCfg
}
