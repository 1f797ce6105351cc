package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggoodman/tdsession-go/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
api_id: 12345
api_hash: abcdef
database_dir: /var/lib/tdsession/db
files_dir: /var/lib/tdsession/files
query_timeout: 5s
rate_limit: 20
rate_burst: 5
parameters:
  device_model: build-box
  use_message_database: false
log:
  level: debug
  format: json
input:
  mode: filedrop
  dir: /run/tdsession/input
  credentials:
    credential_type: user
    credential_value: "+15550123"
broker:
  kind: redis
  namespace: updates
  types: [updateNewMessage]
  redis:
    addr: redis:6379
    max_len: 5000
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, int32(12345), cfg.APIID)
	assert.Equal(t, "abcdef", cfg.APIHash)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval, "unset values keep defaults")
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, "build-box", cfg.Parameters["device_model"])
	assert.Equal(t, InputFileDrop, cfg.Input.Mode)
	assert.Equal(t, "redis:6379", cfg.Broker.Redis.Addr)
	assert.Equal(t, int64(5000), cfg.Broker.Redis.MaxLen)
	assert.Equal(t, []string{"updateNewMessage"}, cfg.Broker.Types)
	require.NoError(t, cfg.Validate())
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("api_id: 1\napi_hsh: typo\n"))
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tdsession.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv("TDSESSION_API_HASH", "from-env")
	t.Setenv("TDSESSION_QUERY_TIMEOUT", "45s")
	t.Setenv("TDSESSION_LOG_LEVEL", "warn")
	t.Setenv("TDSESSION_REDIS_ADDR", "cache:6380")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIHash)
	assert.Equal(t, int32(12345), cfg.APIID, "file values survive when the env is unset")
	assert.Equal(t, 45*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "cache:6380", cfg.Broker.Redis.Addr)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("TDSESSION_API_ID", "99")
	t.Setenv("TDSESSION_API_HASH", "hash")
	t.Setenv("TDSESSION_BOT_TOKEN", "1:abc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int32(99), cfg.APIID)
	assert.Equal(t, "tdlib/db", cfg.DatabaseDir)

	seed := cfg.SeededInput()
	assert.Equal(t, input.CredentialBot, seed[input.KindCredentialType])
	assert.Equal(t, "1:abc", seed[input.KindCredentialValue])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.APIID, valid.APIHash = 1, "h"
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"missing api id":     func(c *Config) { c.APIID = 0 },
		"missing files dir":  func(c *Config) { c.FilesDir = "" },
		"negative rate":      func(c *Config) { c.RateLimit = -1 },
		"filedrop needs dir": func(c *Config) { c.Input.Mode, c.Input.Dir = InputFileDrop, "" },
		"unknown input":      func(c *Config) { c.Input.Mode = "carrier-pigeon" },
		"unknown broker":     func(c *Config) { c.Broker.Kind = "kafka" },
		"bad log level":      func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestAuthParametersAndClientOptions(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	p := cfg.AuthParameters()
	assert.Equal(t, "/var/lib/tdsession/db", p.DatabaseDir)
	assert.Equal(t, "/var/lib/tdsession/files", p.FilesDir)
	assert.Equal(t, false, p.Options["use_message_database"])

	assert.Len(t, cfg.ClientOptions(), 5, "rate limit adds an option")
	cfg.RateLimit = 0
	assert.Len(t, cfg.ClientOptions(), 4)
}

func TestLogger(t *testing.T) {
	cfg := Defaults()
	cfg.Log = LogConfig{Level: "debug", Format: "json"}
	var buf bytes.Buffer
	cfg.Logger(&buf).Debug("config.test", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"config.test"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
