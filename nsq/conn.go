package nsq

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mreiferson/go-snappystream"
	"go.uber.org/zap"
)

// conn is the duplex framed I/O layer plus handshake state machine for a
// single nsqd connection. It is driven synchronously from a single
// goroutine: every method that touches the transport blocks the calling
// goroutine until the operation (or ctx) completes, rather than handing
// off to internal reader/writer goroutines.
type conn struct {
	addr    string
	topic   string
	channel string

	netConn net.Conn
	tlsConn *tls.Conn

	fr *frameReader
	w  writerFlusher

	flateWriter *flate.Writer

	cmdBuf bytes.Buffer

	log *zap.SugaredLogger

	maxRdyCount int64
}

// writerFlusher is satisfied by every transport this connection can write
// through: the raw socket, the TLS-wrapped socket, the flate.Writer, and
// the snappystream.Writer.
type writerFlusher interface {
	Write(p []byte) (int, error)
}

func (c *conn) String() string {
	if c.channel != "" {
		return fmt.Sprintf("%s/%s/%s", c.addr, c.topic, c.channel)
	}
	return c.addr
}

// dial opens the TCP connection and writes the magic preamble. It does
// not run IDENTIFY; call handshake for that.
func dial(ctx context.Context, addr, topic, channel string, log *zap.SugaredLogger) (*conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ioErr(err)
	}
	applyDeadline(nc, ctx)

	c := &conn{
		addr:        addr,
		topic:       topic,
		channel:     channel,
		netConn:     nc,
		w:           nc,
		fr:          newFrameReader(nc),
		log:         log,
		maxRdyCount: 2500,
	}

	if _, err := nc.Write(MagicV2); err != nil {
		nc.Close()
		return nil, ioErr(fmt.Errorf("[%s] failed to write magic: %w", c, err))
	}

	return c, nil
}

// sendCommand encodes and writes cmd, never splitting it across two
// underlying writes: it is fully buffered in cmdBuf before a single write
// to the transport.
func (c *conn) sendCommand(cmd *Command) error {
	c.cmdBuf.Reset()
	if _, err := cmd.WriteTo(&c.cmdBuf); err != nil {
		return ioErr(err)
	}
	if _, err := c.cmdBuf.WriteTo(c.w); err != nil {
		return ioErr(err)
	}
	if c.flateWriter != nil {
		if err := c.flateWriter.Flush(); err != nil {
			return ioErr(err)
		}
	}
	return nil
}

// nextFrame reads and decodes the next frame from the transport.
func (c *conn) nextFrame() (Frame, error) {
	return c.fr.Next()
}

// handshakeResult carries what the handshake engine learned about the
// server, for the caller to thread into the producer/consumer path.
type handshakeResult struct {
	negotiated NegotiatedConfig
}

// handshakeOpts bundles the caller-supplied inputs to the handshake
// engine: the requested feature set plus optional TLS/AUTH material.
type handshakeOpts struct {
	config    ClientConfig
	authToken string
	caFile    string
	tlsConfig *tls.Config // overrides caFile-derived config when non-nil
}

// handshake drives IDENTIFY → optional TLS upgrade → optional
// Deflate/Snappy upgrade → optional AUTH. MagicV2 must already have been
// written by dial.
func (c *conn) handshake(opts handshakeOpts) (*handshakeResult, error) {
	identifyCmd, err := Identify(opts.config)
	if err != nil {
		return nil, jsonErr(err)
	}
	if err := c.sendCommand(identifyCmd); err != nil {
		return nil, err
	}

	frame, err := c.nextFrame()
	if err != nil {
		return nil, err
	}
	negotiated, err := c.parseIdentifyResponse(frame)
	if err != nil {
		return nil, err
	}

	if negotiated.MaxRdyCount > 0 {
		c.maxRdyCount = negotiated.MaxRdyCount
	}

	switch {
	case opts.config.TLSv1 && negotiated.TLSv1:
		if err := c.upgradeTLS(opts); err != nil {
			return nil, err
		}
	case negotiated.TLSv1 && !opts.config.TLSv1:
		return nil, configErr("nsqd requires TLS but it was not requested")
	}

	switch {
	case negotiated.Deflate:
		if err := c.upgradeDeflate(negotiated.DeflateLevel); err != nil {
			return nil, err
		}
	case negotiated.Snappy:
		if err := c.upgradeSnappy(); err != nil {
			return nil, err
		}
	}

	if negotiated.AuthRequired {
		if opts.authToken == "" {
			return nil, configErr("auth token required")
		}
		if err := c.authenticate(opts.authToken); err != nil {
			return nil, err
		}
	}

	return &handshakeResult{negotiated: negotiated}, nil
}

func (c *conn) parseIdentifyResponse(frame Frame) (NegotiatedConfig, error) {
	if frame.Type == FrameTypeError {
		return NegotiatedConfig{}, protocolErr(frame.ErrorKind)
	}
	if frame.Type != FrameTypeResponse || frame.Response.Kind != ResponseJSON {
		return NegotiatedConfig{}, decodeErr("expected JSON response to IDENTIFY")
	}

	var negotiated NegotiatedConfig
	if err := json.Unmarshal(frame.Response.Data, &negotiated); err != nil {
		return NegotiatedConfig{}, jsonErr(err)
	}
	return negotiated, nil
}

func (c *conn) upgradeTLS(opts handshakeOpts) error {
	tlsConfig := opts.tlsConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = tlsConfigFromCAFile(opts.caFile, hostFromAddr(c.addr))
		if err != nil {
			return configErr(err.Error())
		}
	}

	c.tlsConn = tls.Client(c.netConn, tlsConfig)
	if err := c.tlsConn.Handshake(); err != nil {
		return ioErr(fmt.Errorf("[%s] TLS handshake: %w", c, err))
	}
	c.w = c.tlsConn
	c.fr.reset(c.tlsConn)

	return c.expectOK("TLS upgrade")
}

func (c *conn) upgradeDeflate(level int) error {
	base := c.activeTransport()
	c.fr.reset(flate.NewReader(base))
	fw, err := flate.NewWriter(base, level)
	if err != nil {
		return ioErr(err)
	}
	c.flateWriter = fw
	c.w = fw

	return c.expectOK("Deflate upgrade")
}

func (c *conn) upgradeSnappy() error {
	base := c.activeTransport()
	c.fr.reset(snappystream.NewReader(base, snappystream.SkipVerifyChecksum))
	c.w = snappystream.NewWriter(base)

	return c.expectOK("Snappy upgrade")
}

func (c *conn) activeTransport() net.Conn {
	if c.tlsConn != nil {
		return c.tlsConn
	}
	return c.netConn
}

func (c *conn) expectOK(step string) error {
	frame, err := c.nextFrame()
	if err != nil {
		return err
	}
	if frame.Type == FrameTypeError {
		return protocolErr(frame.ErrorKind)
	}
	if frame.Type != FrameTypeResponse || !frame.Response.Ok() {
		return decodeErr(fmt.Sprintf("invalid response from %s", step))
	}
	return nil
}

func (c *conn) authenticate(token string) error {
	if err := c.sendCommand(Auth(token)); err != nil {
		return err
	}
	frame, err := c.nextFrame()
	if err != nil {
		return err
	}
	if frame.Type == FrameTypeError {
		return protocolErr(frame.ErrorKind)
	}
	if frame.Type != FrameTypeResponse || frame.Response.Kind != ResponseJSON {
		return decodeErr("expected JSON response to AUTH")
	}
	// the identity/permission_count payload is not decoded here and is
	// not returned from the handshake; this layer only confirms AUTH
	// succeeded.
	return nil
}

// AuthResponse is the JSON payload nsqd returns in response to AUTH.
type AuthResponse struct {
	Identity        string `json:"identity"`
	IdentityURL     string `json:"identity_url,omitempty"`
	PermissionCount int    `json:"permission_count"`
}

// DecodeAuthResponse parses the raw JSON payload of an AUTH response.
func DecodeAuthResponse(data []byte) (AuthResponse, error) {
	var resp AuthResponse
	err := json.Unmarshal(data, &resp)
	return resp, err
}

func (c *conn) close() error {
	if c.tlsConn != nil {
		return c.tlsConn.Close()
	}
	return c.netConn.Close()
}

func tlsConfigFromCAFile(path, serverName string) (*tls.Config, error) {
	cfg := &tls.Config{ServerName: serverName}
	if path == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cafile %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in cafile %s", path)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func hostFromAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// applyDeadline mirrors ctx's deadline (if any) onto nc: the client
// imposes no timeout of its own beyond what the transport and the
// caller's context specify.
func applyDeadline(nc net.Conn, ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		nc.SetDeadline(dl)
	} else {
		nc.SetDeadline(time.Time{})
	}
}
