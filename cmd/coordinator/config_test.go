package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

const sampleConfig = `
listen: ":9090"
shards:
  - element: user
    op: event
    hash_range_start: 0
    description: "UserEventShard0"
    client:
      base_url: "http://localhost:9001"
      retry_count: 5
      retry_interval_seconds: 2
  - element: user
    op: query
    hash_range_start: 0
    description: "UserQueryShard0"
    client:
      base_url: "http://localhost:9002"
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	listen, set, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", listen)
	assert.Equal(t, 2, set.Len())

	userEvent := set.ForRole(identity.ElementUser, identity.OpEvent)
	require.Len(t, userEvent, 1)
	assert.Equal(t, "http://localhost:9001", userEvent[0].ClientConfig.BaseURL)
	assert.Equal(t, 5, userEvent[0].ClientConfig.RetryCount)
}

func TestLoadConfigRejectsPartitioningViolation(t *testing.T) {
	path := writeTempConfig(t, `
shards:
  - element: user
    op: event
    hash_range_start: 1
    client:
      base_url: "http://localhost:9001"
`)

	_, _, err := loadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownElement(t *testing.T) {
	path := writeTempConfig(t, `
shards:
  - element: nonsense
    op: event
    hash_range_start: 0
    client:
      base_url: "http://localhost:9001"
`)

	_, _, err := loadConfig(path)
	assert.Error(t, err)
}
