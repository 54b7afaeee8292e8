package nsq

import "os"

// Disable is the sentinel value accepted by several duration/size fields to
// turn the corresponding nsqd behavior off entirely.
const Disable = -1

// ClientConfig is the set of features offered to nsqd during IDENTIFY. It
// serializes to JSON with every field present, in declaration order, and
// with Disable sentinels encoded as the numeral -1 rather than null — the
// zero value of every field here is a meaningful wire value, so none of
// them carry `omitempty`.
//
// TLS/auth material (CAFile, AuthToken) is caller-side only and is never
// part of this struct: it must not leak into the IDENTIFY body.
type ClientConfig struct {
	ClientID            string `json:"client_id"`
	Hostname            string `json:"hostname"`
	UserAgent           string `json:"user_agent"`
	FeatureNegotiation  bool   `json:"feature_negotiation"`
	HeartbeatInterval   int64  `json:"heartbeat_interval"`
	OutputBufferSize    int64  `json:"output_buffer_size"`
	OutputBufferTimeout int64  `json:"output_buffer_timeout"`
	TLSv1               bool   `json:"tls_v1"`
	Snappy              bool   `json:"snappy"`
	Deflate             bool   `json:"deflate"`
	DeflateLevel        int    `json:"deflate_level"`
	SampleRate          int    `json:"sample_rate"`
	MsgTimeout          int64  `json:"msg_timeout"`
}

// DefaultClientConfig returns the documented defaults, with ClientID and
// Hostname seeded from the local machine's hostname.
func DefaultClientConfig() ClientConfig {
	host, err := os.Hostname()
	if err != nil {
		host = ""
	}
	return ClientConfig{
		ClientID:            host,
		Hostname:            host,
		UserAgent:           "gonsq/" + Version,
		FeatureNegotiation:  true,
		HeartbeatInterval:   30000,
		OutputBufferSize:    16384,
		OutputBufferTimeout: 250,
		DeflateLevel:        6,
		SampleRate:          0,
		MsgTimeout:          0,
	}
}

// NegotiatedConfig mirrors nsqd's IDENTIFY response: authoritative for
// whether TLS/compression/auth actually apply to this connection,
// regardless of what was requested.
type NegotiatedConfig struct {
	MaxRdyCount      int64  `json:"max_rdy_count"`
	Version          string `json:"version"`
	MaxMsgTimeout    int64  `json:"max_msg_timeout"`
	MsgTimeout       int64  `json:"msg_timeout"`
	TLSv1            bool   `json:"tls_v1"`
	Deflate          bool   `json:"deflate"`
	DeflateLevel     int    `json:"deflate_level"`
	MaxDeflateLevel  int    `json:"max_deflate_level"`
	Snappy           bool   `json:"snappy"`
	SampleRate       int    `json:"sample_rate"`
	AuthRequired     bool   `json:"auth_required"`
	OutputBufferSize int64  `json:"output_buffer_size"`
	OutputBufferTimeout int64 `json:"output_buffer_timeout"`
}

// ConfigBuilder incrementally constructs a ClientConfig. It is the
// recommended construction path; direct field assignment on ClientConfig
// remains valid for deserialization or internal use.
type ConfigBuilder struct {
	cfg ClientConfig
}

// NewConfigBuilder starts a builder from DefaultClientConfig.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: DefaultClientConfig()}
}

func (b *ConfigBuilder) ClientID(id string) *ConfigBuilder {
	b.cfg.ClientID = id
	return b
}

func (b *ConfigBuilder) Hostname(hostname string) *ConfigBuilder {
	b.cfg.Hostname = hostname
	return b
}

func (b *ConfigBuilder) UserAgent(ua string) *ConfigBuilder {
	b.cfg.UserAgent = ua
	return b
}

func (b *ConfigBuilder) FeatureNegotiation(on bool) *ConfigBuilder {
	b.cfg.FeatureNegotiation = on
	return b
}

// HeartbeatInterval sets the interval in milliseconds between heartbeats;
// Disable turns heartbeats off.
func (b *ConfigBuilder) HeartbeatInterval(ms int64) *ConfigBuilder {
	b.cfg.HeartbeatInterval = ms
	return b
}

// OutputBufferSize sets nsqd's write-buffering size in bytes for this
// connection; Disable turns output buffering off.
func (b *ConfigBuilder) OutputBufferSize(bytes int64) *ConfigBuilder {
	b.cfg.OutputBufferSize = bytes
	return b
}

// OutputBufferTimeout sets the flush timeout in milliseconds for buffered
// writes; Disable turns the timeout off.
func (b *ConfigBuilder) OutputBufferTimeout(ms int64) *ConfigBuilder {
	b.cfg.OutputBufferTimeout = ms
	return b
}

func (b *ConfigBuilder) TLSv1(on bool) *ConfigBuilder {
	b.cfg.TLSv1 = on
	return b
}

func (b *ConfigBuilder) Snappy(on bool) *ConfigBuilder {
	b.cfg.Snappy = on
	return b
}

func (b *ConfigBuilder) Deflate(on bool) *ConfigBuilder {
	b.cfg.Deflate = on
	return b
}

func (b *ConfigBuilder) DeflateLevel(level int) *ConfigBuilder {
	b.cfg.DeflateLevel = level
	return b
}

func (b *ConfigBuilder) SampleRate(rate int) *ConfigBuilder {
	b.cfg.SampleRate = rate
	return b
}

func (b *ConfigBuilder) MsgTimeout(ms int64) *ConfigBuilder {
	b.cfg.MsgTimeout = ms
	return b
}

func (b *ConfigBuilder) Build() ClientConfig {
	return b.cfg
}
