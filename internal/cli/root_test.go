package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/ansible-ssh/internal/history"
	"github.com/treykane/ansible-ssh/internal/security"
)

const fakeInventoryScript = `echo "$@" >> '%LOG%'
case "$*" in
  *"--host myhost"*) echo '{"ansible_host": "10.0.0.5", "ansible_port": 2222}' ;;
  *"--host secure"*) echo '{"ansible_host": "10.0.0.9", "ansible_user": "admin", "ansible_password": "s3cret"}' ;;
  *"--host extra"*) echo '{"ansible_host": "10.0.0.7", "ansible_ssh_common_args": "-o StrictHostKeyChecking=no"}' ;;
  *--list*) echo '{"_meta": {"hostvars": {"myhost": {"ansible_host": "10.0.0.5", "ansible_port": 2222}, "secure": {"ansible_user": "admin"}}}}' ;;
  *) echo "[WARNING]: Could not match supplied host pattern" >&2; echo "ERROR! You must pass a single valid host to --host parameter" >&2; exit 1 ;;
esac`

type cliEnv struct {
	inventory string
	invLog    string
	sshLog    string
}

// setupCLI isolates HOME and the config dir and points the tool at fake
// ansible-inventory and ssh scripts. ssh is spawned, not exec'd, so the test
// process survives.
func setupCLI(t *testing.T) cliEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dir := t.TempDir()
	env := cliEnv{
		inventory: filepath.Join(dir, "hosts.ini"),
		invLog:    filepath.Join(dir, "inventory.log"),
		sshLog:    filepath.Join(dir, "ssh.log"),
	}
	require.NoError(t, os.WriteFile(env.inventory, []byte("myhost\nsecure\n"), 0o600))

	invBin := filepath.Join(dir, "ansible-inventory")
	script := strings.ReplaceAll(fakeInventoryScript, "%LOG%", env.invLog)
	require.NoError(t, os.WriteFile(invBin, []byte("#!/bin/sh\n"+script+"\n"), 0o755))

	sshBin := filepath.Join(dir, "ssh")
	sshScript := "#!/bin/sh\necho \"$@\" > '" + env.sshLog + "'\nexit ${FAKE_SSH_EXIT:-0}\n"
	require.NoError(t, os.WriteFile(sshBin, []byte(sshScript), 0o755))

	t.Setenv("ANSIBLE_SSH_INVENTORY_BINARY", invBin)
	t.Setenv("ANSIBLE_SSH_SSH_BINARY", sshBin)
	t.Setenv("ANSIBLE_SSH_EXEC_MODE", "spawn")
	t.Setenv("ANSIBLE_SSH_BANNER", "false")
	return env
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand("ansible-ssh")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return strings.TrimSpace(string(b))
}

func TestConnect_MapsPortAndAddress(t *testing.T) {
	env := setupCLI(t)

	_, _, err := execute(t, "-i", env.inventory, "myhost")
	require.NoError(t, err)
	assert.Equal(t, "-p 2222 10.0.0.5", readFile(t, env.sshLog))
	assert.Equal(t, "-i "+env.inventory+" --host myhost", readFile(t, env.invLog))
}

func TestConnect_RemoteCommandAfterDash(t *testing.T) {
	env := setupCLI(t)

	_, _, err := execute(t, "-i", env.inventory, "myhost", "--", "uptime", "-p")
	require.NoError(t, err)
	assert.Equal(t, "-p 2222 10.0.0.5 uptime -p", readFile(t, env.sshLog))
}

func TestConnect_RecordsHistory(t *testing.T) {
	env := setupCLI(t)

	_, _, err := execute(t, "-i", env.inventory, "myhost")
	require.NoError(t, err)
	last, err := history.LastUsed(env.inventory)
	require.NoError(t, err)
	assert.Contains(t, last, "myhost")
}

func TestConnect_UnknownHostNeverInvokesSSH(t *testing.T) {
	env := setupCLI(t)

	_, _, err := execute(t, "-i", env.inventory, "nosuchhost")
	require.Error(t, err)
	assert.Equal(t, security.KindConfig, security.KindOf(err))
	assert.NoFileExists(t, env.sshLog)

	var stderr bytes.Buffer
	code := HandleError(&stderr, "ansible-ssh", err)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr.String(), "single valid host")
}

func TestConnect_MissingInventoryFile(t *testing.T) {
	env := setupCLI(t)
	missing := filepath.Join(t.TempDir(), "nope.ini")

	_, _, err := execute(t, "-i", missing, "myhost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.NoFileExists(t, env.invLog)
	assert.NoFileExists(t, env.sshLog)
}

func TestConnect_SSHExitCodePassesThrough(t *testing.T) {
	env := setupCLI(t)
	t.Setenv("FAKE_SSH_EXIT", "3")

	_, _, err := execute(t, "-i", env.inventory, "myhost")
	require.Error(t, err)

	var stderr bytes.Buffer
	assert.Equal(t, 3, HandleError(&stderr, "ansible-ssh", err))
	assert.Empty(t, stderr.String())
}

func TestConnect_MissingHostIsUsageError(t *testing.T) {
	setupCLI(t)

	_, _, err := execute(t)
	require.Error(t, err)

	var stderr bytes.Buffer
	assert.Equal(t, 2, HandleError(&stderr, "ansible-ssh", err))
	assert.Contains(t, stderr.String(), "the following arguments are required: host")
	assert.Contains(t, stderr.String(), "ansible-ssh --help")
}

func TestConnect_UnknownFlagIsUsageError(t *testing.T) {
	setupCLI(t)

	_, _, err := execute(t, "--bogus")
	require.Error(t, err)
	assert.Equal(t, 2, security.ExitCode(err))
}

func TestConnect_InventoryFromEnvExpandsHome(t *testing.T) {
	env := setupCLI(t)
	home := os.Getenv("HOME")
	require.NoError(t, os.WriteFile(filepath.Join(home, "hosts.ini"), []byte("myhost\n"), 0o600))
	t.Setenv("ANSIBLE_SSH_INVENTORY", "~/hosts.ini")

	_, _, err := execute(t, "myhost")
	require.NoError(t, err)
	assert.Equal(t, "-p 2222 10.0.0.5", readFile(t, env.sshLog))
	assert.Equal(t, "-i "+filepath.Join(home, "hosts.ini")+" --host myhost", readFile(t, env.invLog))
}

func TestConnect_UnusableConfigDirFallsBackToDefaults(t *testing.T) {
	env := setupCLI(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(blocker, "cfg"))

	out, _, err := execute(t, "-C", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "complete -F _ansible_ssh_completion ansible-ssh")

	out, _, err = execute(t, "-n", "-i", env.inventory, "myhost")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(env.sshLog), "ssh")+" -p 2222 10.0.0.5", strings.TrimSpace(out))
}

func TestComplete_NeverTouchesInventory(t *testing.T) {
	env := setupCLI(t)
	t.Setenv("ANSIBLE_SSH_INVENTORY_BINARY", filepath.Join(t.TempDir(), "does-not-exist"))

	out, _, err := execute(t, "-C", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "complete -F _ansible_ssh_completion ansible-ssh")
	assert.Contains(t, out, "--inventory")
	assert.NoFileExists(t, env.invLog)
	assert.Equal(t, 0, HandleError(&bytes.Buffer{}, "ansible-ssh", err))
}

func TestComplete_UnsupportedShell(t *testing.T) {
	setupCLI(t)

	_, _, err := execute(t, "-C", "fish")
	require.Error(t, err)
	assert.Equal(t, 2, security.ExitCode(err))
}

func TestDryRun_RedactsPassword(t *testing.T) {
	env := setupCLI(t)

	out, _, err := execute(t, "-n", "-i", env.inventory, "secure")
	require.NoError(t, err)
	assert.Equal(t, "SSHPASS=**** sshpass -e "+filepath.Join(filepath.Dir(env.sshLog), "ssh")+" admin@10.0.0.9", strings.TrimSpace(out))
	assert.NotContains(t, out, "s3cret")
	assert.NoFileExists(t, env.sshLog)
}

func TestExtraArgs_OffByDefault(t *testing.T) {
	env := setupCLI(t)

	_, _, err := execute(t, "-i", env.inventory, "extra")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", readFile(t, env.sshLog))

	_, _, err = execute(t, "--extra-ssh-args", "-i", env.inventory, "extra")
	require.NoError(t, err)
	assert.Equal(t, "-o StrictHostKeyChecking=no 10.0.0.7", readFile(t, env.sshLog))
}

func TestList_TextAndJSON(t *testing.T) {
	env := setupCLI(t)

	out, _, err := execute(t, "-l", "-i", env.inventory)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "HOST"))
	assert.Contains(t, lines[1], "10.0.0.5")
	assert.Contains(t, lines[1], "2222")
	assert.Contains(t, lines[2], "admin")

	out, _, err = execute(t, "--list", "--json", "-i", env.inventory)
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "myhost", entries[0]["host"])
	assert.Equal(t, "secure", entries[1]["address"])
}

func TestExplain_ShowsSources(t *testing.T) {
	env := setupCLI(t)

	out, _, err := execute(t, "--explain", "-i", env.inventory, "secure")
	require.NoError(t, err)
	assert.Contains(t, out, "ansible_host")
	assert.Contains(t, out, "ansible_user")
	assert.Contains(t, out, "ansible_password")
	assert.Contains(t, out, "ssh default")
	assert.NotContains(t, out, "s3cret")
	assert.NoFileExists(t, env.sshLog)
}

func TestPick_RejectsHostArgument(t *testing.T) {
	setupCLI(t)

	_, _, err := execute(t, "--pick", "myhost")
	require.Error(t, err)
	assert.Equal(t, security.KindUsage, security.KindOf(err))
}

func TestPick_NeedsTerminal(t *testing.T) {
	setupCLI(t)

	_, _, err := execute(t, "--pick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive terminal")
}

func TestPick_EmptyInventoryIsConfigError(t *testing.T) {
	setupCLI(t)
	dir := t.TempDir()
	empty := filepath.Join(dir, "hosts.ini")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	invBin := filepath.Join(dir, "ansible-inventory")
	require.NoError(t, os.WriteFile(invBin, []byte("#!/bin/sh\necho '{\"_meta\": {\"hostvars\": {}}}'\n"), 0o755))
	t.Setenv("ANSIBLE_SSH_INVENTORY_BINARY", invBin)

	_, _, err := execute(t, "--pick", "-i", empty)
	require.Error(t, err)
	assert.Equal(t, security.KindConfig, security.KindOf(err))
	assert.Contains(t, err.Error(), "no hosts")
	assert.Equal(t, 1, security.ExitCode(err))
}

func TestRecent_ShowsJournaledLaunches(t *testing.T) {
	env := setupCLI(t)
	t.Setenv("FAKE_SSH_EXIT", "3")

	_, _, err := execute(t, "-i", env.inventory, "myhost")
	require.Error(t, err)

	out, _, err := execute(t, "--recent", "--json", "-i", env.inventory, "myhost")
	require.NoError(t, err)
	var evts []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &evts))
	require.Len(t, evts, 2)
	assert.Equal(t, "connect", evts[0]["event_type"])
	assert.Equal(t, "spawn", evts[0]["mode"])
	assert.Equal(t, "exit", evts[1]["event_type"])
	assert.EqualValues(t, 3, evts[1]["exit_code"])
	assert.Equal(t, "10.0.0.5", evts[1]["target"])

	out, _, err = execute(t, "--recent", "-i", env.inventory)
	require.NoError(t, err)
	assert.Contains(t, out, "exit 3")
}
