package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, cnf Configuration) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "tally*.json")
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(f).Encode(cnf))
	require.NoError(t, f.Close())
	return f.Name()
}

func TestInitConfigFromFile(t *testing.T) {
	file := writeConfigFile(t, Configuration{
		ProjectName: "tally test",
		DataSource:  DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/tally?sslmode=disable"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
	})

	require.NoError(t, InitConfig(file))

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "tally test", cnf.ProjectName)
	assert.Equal(t, DEFAULT_SETTLEMENT_QUEUE, cnf.Queue.SettlementQueue)
	assert.Equal(t, DEFAULT_WEBHOOK_QUEUE, cnf.Queue.WebhookQueue)
	assert.Equal(t, 3, cnf.Queue.MaxRetryAttempts)
	assert.Equal(t, 60, cnf.Queue.RetryBackoffSec)
	assert.Equal(t, 3600, cnf.Queue.SweepIntervalSec)
	assert.Equal(t, 30, cnf.Gateway.TimeoutSec)
}

func TestInitConfigMissingDataSource(t *testing.T) {
	file := writeConfigFile(t, Configuration{
		Redis: RedisConfig{Dns: "localhost:6379"},
	})
	assert.Error(t, InitConfig(file))
}

func TestInitConfigEnvOverride(t *testing.T) {
	file := writeConfigFile(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/tally?sslmode=disable"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Queue:      QueueConfig{SweepIntervalSec: 600},
	})

	t.Setenv("TALLY_QUEUE_SETTLEMENT", "settle_env")
	require.NoError(t, InitConfig(file))

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "settle_env", cnf.Queue.SettlementQueue)
	assert.Equal(t, 600, cnf.Queue.SweepIntervalSec)
}
