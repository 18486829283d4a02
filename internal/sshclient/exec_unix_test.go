//go:build unix

package sshclient

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/ansible-ssh/internal/appconfig"
	"github.com/treykane/ansible-ssh/internal/sshargs"
)

// Replace mode swaps the process image, so it runs in a re-exec'd copy of the
// test binary. TestReplaceHelperProcess is that copy's entry point.
const (
	replaceHelperEnv   = "ANSIBLE_SSH_REPLACE_HELPER"
	replaceSSHEnv      = "ANSIBLE_SSH_REPLACE_SSH"
	replacePasswordEnv = "ANSIBLE_SSH_REPLACE_PASSWORD"
)

func TestReplaceHelperProcess(t *testing.T) {
	if os.Getenv(replaceHelperEnv) != "1" {
		return
	}
	l := &Launcher{
		SSHBinary:      os.Getenv(replaceSSHEnv),
		PasswordHelper: appconfig.PasswordHelperSSHPass,
		Mode:           appconfig.ExecModeReplace,
	}
	err := l.Launch(context.Background(), sshargs.Command{
		Args:     []string{"-p", "2222"},
		Target:   "admin@10.0.0.9",
		Remote:   []string{"uptime"},
		Password: os.Getenv(replacePasswordEnv),
	})
	os.Stderr.WriteString("launch returned: " + errString(err) + "\n")
	os.Exit(99)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

type replaceRun struct {
	code   int
	sshLog string
	pwLog  string
}

func runReplace(t *testing.T, password string) replaceRun {
	t.Helper()
	dir := t.TempDir()
	run := replaceRun{sshLog: filepath.Join(dir, "ssh.log"), pwLog: filepath.Join(dir, "sshpass.log")}
	ssh := fakeBin(t, dir, "ssh", `echo "$@" > '`+run.sshLog+`'; exit 7`)
	fakeBin(t, dir, "sshpass", `echo "$SSHPASS" > '`+run.pwLog+`'; shift; exec "$@"`)

	c := exec.Command(os.Args[0], "-test.run=^TestReplaceHelperProcess$")
	c.Env = append(os.Environ(),
		replaceHelperEnv+"=1",
		replaceSSHEnv+"="+ssh,
		replacePasswordEnv+"="+password,
		"PATH="+dir+string(os.PathListSeparator)+os.Getenv("PATH"),
	)
	out, err := c.CombinedOutput()
	var ee *exec.ExitError
	require.True(t, errors.As(err, &ee), "helper exited cleanly: %s", out)
	run.code = ee.ExitCode()
	require.NotEqual(t, 99, run.code, "launch returned instead of replacing the process: %s", out)
	return run
}

func TestLaunch_ReplaceModeExecsSSH(t *testing.T) {
	run := runReplace(t, "")
	assert.Equal(t, 7, run.code)
	assert.Equal(t, "-p 2222 admin@10.0.0.9 uptime", readLog(t, run.sshLog))
	assert.NoFileExists(t, run.pwLog)
}

func TestLaunch_ReplaceModeHandsPasswordToSSHPass(t *testing.T) {
	run := runReplace(t, "s3cret")
	assert.Equal(t, 7, run.code)
	assert.Equal(t, "-p 2222 admin@10.0.0.9 uptime", readLog(t, run.sshLog))
	assert.Equal(t, "s3cret", readLog(t, run.pwLog))
}
