package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadChannelRegistry_MissingFileIsEmpty(t *testing.T) {
	reg, err := LoadChannelRegistry(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, reg.Resolve("demo"))
}

func TestLoadChannelRegistry_GlobalAndPerStack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")
	contents := `{
		"global": {"webhook": {"URL": "http://global"}},
		"stacks": {"demo": {"webhook": {"URL": "http://demo"}}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	reg, err := LoadChannelRegistry(path)
	require.NoError(t, err)

	demo := reg.Resolve("demo")
	require.NotNil(t, demo)
	assert.Equal(t, "http://demo", demo.Webhook.URL)

	other := reg.Resolve("other")
	require.NotNil(t, other)
	assert.Equal(t, "http://global", other.Webhook.URL)
}
