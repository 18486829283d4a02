package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchAndLastUsed(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	inv := filepath.Join(t.TempDir(), "hosts.ini")

	require.NoError(t, Touch(inv, "api"))
	require.NoError(t, Touch("", "db"))

	got, err := LastUsed(inv)
	require.NoError(t, err)
	assert.Greater(t, got["api"], int64(0))
	assert.NotContains(t, got, "db", "history is scoped per inventory")

	def, err := LastUsed("")
	require.NoError(t, err)
	assert.Contains(t, def, "db")
}

func TestLastUsed_CorruptFileIsIgnored(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "ansible-ssh")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.json"), []byte("{not json"), 0o600))

	got, err := LastUsed("")
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, Touch("", "api"))
}

func TestSortRecent(t *testing.T) {
	now := time.Now().Unix()
	sorted := SortRecent([]string{"db", "api", "cache", "bastion"}, map[string]int64{
		"cache": now,
		"db":    now - 60,
	})
	assert.Equal(t, []string{"cache", "db", "api", "bastion"}, sorted)
}
