package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerFlagDefaults(t *testing.T) {
	cmd := NewServerCommand()
	flags := cmd.PersistentFlags()

	assert.Equal(t, "8099", flags.Lookup("port").DefValue)
	assert.Equal(t, "5m0s", flags.Lookup("hot-ttl").DefValue)
	assert.Equal(t, "25m0s", flags.Lookup("warm-ttl").DefValue)
	assert.Equal(t, "0.1", flags.Lookup("warm-rate").DefValue)
	assert.Equal(t, "0", flags.Lookup("default-rate").DefValue)
	assert.Equal(t, "10s", flags.Lookup("tick").DefValue)
	assert.Equal(t, "5m0s", flags.Lookup("dedup-window").DefValue)
	assert.Equal(t, "24h0m0s", flags.Lookup("retention").DefValue)
	assert.Equal(t, "30s", flags.Lookup("poll-base").DefValue)
}

func TestServerFlagEnvFallbacks(t *testing.T) {
	t.Setenv("TRACEHUB_PORT", "9100")
	t.Setenv("TRACEHUB_DB_URI", "postgres://postgres@db:5432/th")
	t.Setenv("TRACEHUB_SECRET", "hunter2")
	t.Setenv("TRACEHUB_HOT_TTL", "2m")
	t.Setenv("TRACEHUB_WARM_TTL", "10m")
	t.Setenv("TRACEHUB_WARM_RATE", "0.25")
	t.Setenv("TRACEHUB_DEFAULT_RATE", "0.01")
	t.Setenv("TRACEHUB_TICK", "5s")
	t.Setenv("TRACEHUB_DEDUP_WINDOW", "1m")
	t.Setenv("TRACEHUB_RETENTION", "48h")
	t.Setenv("TRACEHUB_POLL_BASE", "15s")

	cmd := NewServerCommand()
	flags := cmd.PersistentFlags()

	assert.Equal(t, "9100", flags.Lookup("port").DefValue)
	assert.Equal(t, "postgres://postgres@db:5432/th", flags.Lookup("dburi").DefValue)
	assert.Equal(t, "hunter2", flags.Lookup("secret").DefValue)
	assert.Equal(t, "2m0s", flags.Lookup("hot-ttl").DefValue)
	assert.Equal(t, "10m0s", flags.Lookup("warm-ttl").DefValue)
	assert.Equal(t, "0.25", flags.Lookup("warm-rate").DefValue)
	assert.Equal(t, "0.01", flags.Lookup("default-rate").DefValue)
	assert.Equal(t, "5s", flags.Lookup("tick").DefValue)
	assert.Equal(t, "1m0s", flags.Lookup("dedup-window").DefValue)
	assert.Equal(t, "48h0m0s", flags.Lookup("retention").DefValue)
	assert.Equal(t, "15s", flags.Lookup("poll-base").DefValue)
}

func TestServerFlagEnvFallbackIgnoresGarbage(t *testing.T) {
	t.Setenv("TRACEHUB_HOT_TTL", "not-a-duration")
	t.Setenv("TRACEHUB_PORT", "not-a-port")
	t.Setenv("TRACEHUB_WARM_RATE", "lots")

	cmd := NewServerCommand()
	flags := cmd.PersistentFlags()

	require.NotNil(t, flags.Lookup("hot-ttl"))
	assert.Equal(t, "5m0s", flags.Lookup("hot-ttl").DefValue)
	assert.Equal(t, "8099", flags.Lookup("port").DefValue)
	assert.Equal(t, "0.1", flags.Lookup("warm-rate").DefValue)
}
