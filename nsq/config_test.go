package nsq

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig_SerializesDisableAsNumericNegativeOne(t *testing.T) {
	cfg := NewConfigBuilder().
		HeartbeatInterval(Disable).
		OutputBufferSize(Disable).
		OutputBufferTimeout(Disable).
		Build()

	body, err := json.Marshal(cfg)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"heartbeat_interval":-1`)
	assert.Contains(t, string(body), `"output_buffer_size":-1`)
	assert.Contains(t, string(body), `"output_buffer_timeout":-1`)
	assert.NotContains(t, string(body), "null")
}

func TestClientConfig_OmitsNothing(t *testing.T) {
	cfg := DefaultClientConfig()
	body, err := json.Marshal(cfg)
	require.NoError(t, err)

	for _, field := range []string{
		"client_id", "hostname", "user_agent", "feature_negotiation",
		"heartbeat_interval", "output_buffer_size", "output_buffer_timeout",
		"tls_v1", "snappy", "deflate", "deflate_level", "sample_rate", "msg_timeout",
	} {
		assert.Contains(t, string(body), `"`+field+`"`, "missing field %s", field)
	}
}

func TestClientConfig_StableFieldOrder(t *testing.T) {
	cfg := DefaultClientConfig()
	body, err := json.Marshal(cfg)
	require.NoError(t, err)

	idx := func(field string) int {
		return strings.Index(string(body), `"`+field+`"`)
	}

	assert.Less(t, idx("client_id"), idx("hostname"))
	assert.Less(t, idx("hostname"), idx("user_agent"))
	assert.Less(t, idx("tls_v1"), idx("snappy"))
	assert.Less(t, idx("snappy"), idx("deflate"))
}

func TestConfigBuilder_Defaults(t *testing.T) {
	cfg := NewConfigBuilder().Build()
	assert.True(t, cfg.FeatureNegotiation)
	assert.Equal(t, int64(30000), cfg.HeartbeatInterval)
	assert.Equal(t, int64(16384), cfg.OutputBufferSize)
	assert.Equal(t, int64(250), cfg.OutputBufferTimeout)
	assert.Equal(t, 6, cfg.DeflateLevel)
}

func TestNegotiatedConfig_Deserializes(t *testing.T) {
	raw := `{"max_rdy_count":2500,"tls_v1":true,"auth_required":true,"snappy":false,"deflate":false}`
	var cfg NegotiatedConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, int64(2500), cfg.MaxRdyCount)
	assert.True(t, cfg.TLSv1)
	assert.True(t, cfg.AuthRequired)
}
