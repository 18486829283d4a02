// Package sshclient hands a built ssh command over to the system ssh binary.
//
// This package does NOT implement the SSH protocol. It runs the system "ssh"
// binary, which picks up the user's full SSH configuration (keys, agents,
// ProxyJump chains, ~/.ssh/config) for anything the inventory did not set.
//
// There are two ways to start ssh:
//
//   - Replace mode: the process image is swapped for ssh (unix.Exec). Stdio,
//     signals and the exit status belong to ssh from then on, exactly as if
//     the user had typed the command by hand.
//
//   - Spawn mode: ssh runs as a child with inherited stdio and the launcher
//     waits for it. A non-zero exit is reported as *ExitError so the caller
//     can pass the status through.
//
// Passwords never appear in argv. The sshpass helper reads the password from
// the SSHPASS environment variable (sshpass -e). The builtin helper answers
// the prompt itself through a pseudo-terminal.
//
// All arguments are passed as argv (never through a shell), so host names and
// inventory values containing shell metacharacters cannot inject commands.
package sshclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"

	"github.com/treykane/ansible-ssh/internal/appconfig"
	"github.com/treykane/ansible-ssh/internal/security"
	"github.com/treykane/ansible-ssh/internal/sshargs"
	"github.com/treykane/ansible-ssh/internal/util"
)

// SSHPassBinary is the external password helper.
const SSHPassBinary = "sshpass"

// ExitError carries a non-zero ssh exit status in spawn mode.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ssh exited with status %d", e.Code)
}

// Invocation is the fully resolved process to start.
type Invocation struct {
	// Argv[0] is the program to look up on PATH.
	Argv []string
	// Env holds entries appended to the inherited environment.
	Env []string
	// Builtin is set when the pseudo-terminal helper must answer the
	// password prompt.
	Builtin bool
}

// Launcher starts ssh for a built command.
//
// The zero value uses "ssh", the sshpass helper and replace mode, with the
// process's own stdio.
type Launcher struct {
	SSHBinary      string
	PasswordHelper appconfig.PasswordHelper
	Mode           appconfig.ExecMode

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a launcher from application config.
func New(cfg appconfig.Config) *Launcher {
	return &Launcher{
		SSHBinary:      cfg.SSHBinary,
		PasswordHelper: cfg.PasswordHelper,
		Mode:           cfg.ExecMode,
	}
}

func (l *Launcher) sshBinary() string {
	return util.DefaultString(l.SSHBinary, "ssh")
}

func (l *Launcher) stdin() io.Reader {
	if l.Stdin == nil {
		return os.Stdin
	}
	return l.Stdin
}

func (l *Launcher) stdout() io.Writer {
	if l.Stdout == nil {
		return os.Stdout
	}
	return l.Stdout
}

func (l *Launcher) stderr() io.Writer {
	if l.Stderr == nil {
		return os.Stderr
	}
	return l.Stderr
}

// EnsureBinary checks that name resolves on PATH.
func EnsureBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s binary not found in PATH", name)
	}
	return nil
}

// BuildArgv resolves the password helper and returns the process to start,
// without starting it.
func (l *Launcher) BuildArgv(cmd sshargs.Command) (Invocation, error) {
	argv := cmd.Argv(l.sshBinary())
	if cmd.Password == "" {
		return Invocation{Argv: argv}, nil
	}
	switch l.resolveHelper() {
	case appconfig.PasswordHelperBuiltin:
		if !ptySupported {
			return Invocation{}, security.ExternalTool("the builtin password helper is not supported on this platform; install sshpass", "", nil)
		}
		return Invocation{Argv: argv, Builtin: true}, nil
	default:
		wrapped := append([]string{SSHPassBinary, "-e"}, argv...)
		return Invocation{Argv: wrapped, Env: []string{sshargs.PasswordEnv + "=" + cmd.Password}}, nil
	}
}

func (l *Launcher) resolveHelper() appconfig.PasswordHelper {
	switch l.PasswordHelper {
	case appconfig.PasswordHelperBuiltin:
		return appconfig.PasswordHelperBuiltin
	case appconfig.PasswordHelperAuto:
		if EnsureBinary(SSHPassBinary) == nil || !ptySupported {
			return appconfig.PasswordHelperSSHPass
		}
		return appconfig.PasswordHelperBuiltin
	default:
		return appconfig.PasswordHelperSSHPass
	}
}

// Launch starts ssh for cmd. In replace mode a successful call never
// returns.
func (l *Launcher) Launch(ctx context.Context, cmd sshargs.Command) error {
	inv, err := l.BuildArgv(cmd)
	if err != nil {
		return err
	}
	if err := EnsureBinary(l.sshBinary()); err != nil {
		return security.ExternalTool(err.Error(), "", err)
	}
	path, err := exec.LookPath(inv.Argv[0])
	if err != nil {
		if inv.Argv[0] == SSHPassBinary {
			return security.ExternalTool("sshpass is required for password-based SSH. Please install sshpass.", err.Error(), err)
		}
		return security.ExternalTool(fmt.Sprintf("%s binary not found in PATH", inv.Argv[0]), err.Error(), err)
	}
	env := append(os.Environ(), inv.Env...)
	slog.Debug("launching ssh", "path", path, "argv", sshargs.Redacted(inv.Env, inv.Argv), "mode", l.Mode, "builtin_password", inv.Builtin)

	if inv.Builtin {
		return exitStatus(runWithPassword(ctx, path, inv.Argv, env, cmd.Password, l.stdin(), l.stdout()))
	}
	if l.Mode != appconfig.ExecModeSpawn && replaceSupported {
		if err := replaceProcess(path, inv.Argv, env); err != nil {
			return security.ExternalTool(fmt.Sprintf("failed to exec %s", inv.Argv[0]), err.Error(), err)
		}
		return nil
	}
	return exitStatus(l.spawn(ctx, path, inv.Argv, env))
}

func (l *Launcher) spawn(ctx context.Context, path string, argv, env []string) error {
	c := exec.CommandContext(ctx, path, argv[1:]...)
	c.Env = env
	c.Stdin = l.stdin()
	c.Stdout = l.stdout()
	c.Stderr = l.stderr()

	// The terminal delivers SIGINT to the whole foreground group; ssh decides
	// what it means, the launcher just keeps waiting.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	return c.Run()
}

func exitStatus(err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code := ee.ExitCode()
		if code < 0 {
			code = 255
		}
		return &ExitError{Code: code}
	}
	var ce *security.ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	return security.ExternalTool("failed to run ssh", err.Error(), err)
}
