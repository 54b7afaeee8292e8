package nsq

import (
	"context"
	"crypto/tls"
	"time"

	"go.uber.org/zap"
)

// ProducerFunc is invoked exactly once per Publish call and must return
// one of Pub, Mpub, or Dpub. Application state lives in the closure
// itself, not threaded through the API.
type ProducerFunc func() (*Command, error)

// HandlerFunc is invoked once per received message, in receive order, and
// must return one of Fin, Req, or Touch.
type HandlerFunc func(*Message) (*Command, error)

// Builder collects the address, requested configuration, optional
// auth/TLS material, and starting RDY count for a connection, and
// produces a consumable Client.
type Builder struct {
	addr      string
	config    ClientConfig
	authToken string
	caFile    string
	tlsConfig *tls.Config
	rdy       int64
	log       *zap.SugaredLogger
	metrics   *Metrics
}

// NewBuilder starts a Builder for the nsqd at addr, with DefaultClientConfig
// and a starting RDY of 1.
func NewBuilder(addr string) *Builder {
	return &Builder{
		addr:   addr,
		config: DefaultClientConfig(),
		rdy:    1,
	}
}

// Config overrides the requested ClientConfig entirely. Use ConfigBuilder
// to construct cfg.
func (b *Builder) Config(cfg ClientConfig) *Builder {
	b.config = cfg
	return b
}

// Auth sets the token sent via AUTH if nsqd negotiates auth_required.
func (b *Builder) Auth(token string) *Builder {
	b.authToken = token
	return b
}

// CAFile sets the PEM CA bundle used to verify nsqd's certificate during
// the TLS upgrade. Leave unset to use the system root store.
func (b *Builder) CAFile(path string) *Builder {
	b.caFile = path
	return b
}

// TLSConfig overrides CAFile entirely with a caller-constructed
// *tls.Config, for callers that need client certificates or other custom
// verification.
func (b *Builder) TLSConfig(cfg *tls.Config) *Builder {
	b.tlsConfig = cfg
	return b
}

// RDY sets the starting RDY count for Consumer. Ignored by Publish.
func (b *Builder) RDY(n int64) *Builder {
	b.rdy = n
	return b
}

// Logger overrides the default no-op logger.
func (b *Builder) Logger(log *zap.SugaredLogger) *Builder {
	b.log = log
	return b
}

// Metrics attaches a *Metrics instance; nil (the default) disables metrics
// entirely.
func (b *Builder) Metrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// Build produces a Client from the builder's current state.
func (b *Builder) Build() *Client {
	log := b.log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		addr:      b.addr,
		config:    b.config,
		authToken: b.authToken,
		caFile:    b.caFile,
		tlsConfig: b.tlsConfig,
		rdy:       b.rdy,
		log:       log,
		metrics:   b.metrics,
	}
}

// Client is an immutable configuration handle for a single nsqd
// connection. It is consumed once per Publish or Consumer call;
// connections are not pooled.
type Client struct {
	addr      string
	config    ClientConfig
	authToken string
	caFile    string
	tlsConfig *tls.Config
	rdy       int64
	log       *zap.SugaredLogger
	metrics   *Metrics
}

func (c *Client) handshakeOpts() handshakeOpts {
	return handshakeOpts{
		config:    c.config,
		authToken: c.authToken,
		caFile:    c.caFile,
		tlsConfig: c.tlsConfig,
	}
}

// Publish dials, runs the handshake, invokes fn exactly once to obtain the
// command to send, writes it, and returns the single response frame. The
// connection is closed before Publish returns, success or failure.
func (c *Client) Publish(ctx context.Context, fn ProducerFunc) (*Response, error) {
	nc, err := dial(ctx, c.addr, "", "", c.log)
	if err != nil {
		return nil, err
	}
	defer nc.close()

	if _, err := nc.handshake(c.handshakeOpts()); err != nil {
		c.metrics.recordPublish(false)
		return nil, err
	}

	cmd, err := fn()
	if err != nil {
		c.metrics.recordPublish(false)
		return nil, err
	}

	if err := nc.sendCommand(cmd); err != nil {
		c.metrics.recordPublish(false)
		return nil, err
	}

	frame, err := nc.nextFrame()
	if err != nil {
		c.metrics.recordPublish(false)
		return nil, err
	}

	switch frame.Type {
	case FrameTypeResponse:
		c.metrics.recordPublish(true)
		resp := frame.Response
		return &resp, nil
	case FrameTypeError:
		c.metrics.recordPublish(false)
		return nil, protocolErr(frame.ErrorKind)
	default:
		// a Message frame here would be a protocol violation: the
		// producer path never SUBs, so nsqd has nothing to push.
		c.metrics.recordPublish(false)
		return nil, decodeErr("unexpected message frame on producer connection")
	}
}

// Consumer dials, runs the handshake, subscribes to topic/channel, sends
// the starting RDY, and enters the dispatch loop until ctx is canceled,
// the transport is closed, or a fatal error occurs.
func (c *Client) Consumer(ctx context.Context, topic, channel string, fn HandlerFunc) error {
	nc, err := dial(ctx, c.addr, topic, channel, c.log)
	if err != nil {
		return err
	}
	defer nc.close()

	hs, err := nc.handshake(c.handshakeOpts())
	if err != nil {
		return err
	}

	if err := nc.sendCommand(Sub(topic, channel)); err != nil {
		return err
	}
	frame, err := nc.nextFrame()
	if err != nil {
		return err
	}
	if frame.Type == FrameTypeError {
		return protocolErr(frame.ErrorKind)
	}
	if frame.Type != FrameTypeResponse || !frame.Response.Ok() {
		return decodeErr("expected OK response to SUB")
	}

	rdy := c.rdy
	if hs.negotiated.MaxRdyCount > 0 && rdy > hs.negotiated.MaxRdyCount {
		rdy = hs.negotiated.MaxRdyCount
	}
	if err := nc.sendCommand(Rdy(rdy)); err != nil {
		return err
	}

	loop := &dispatchLoop{
		conn:      nc,
		handler:   fn,
		inflight:  newInflightTracker(),
		log:       c.log,
		metrics:   c.metrics,
		heartbeat: time.Duration(c.config.HeartbeatInterval) * time.Millisecond,
	}
	return loop.run(ctx)
}
