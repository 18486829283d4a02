//go:build unix

package sshclient

import (
	"context"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/treykane/ansible-ssh/internal/security"
)

const ptySupported = true

// runWithPassword runs ssh inside a pseudo-terminal, answers its password
// prompt, then proxies the session until ssh exits.
func runWithPassword(ctx context.Context, path string, argv, env []string, password string, stdin io.Reader, stdout io.Writer) error {
	c := exec.CommandContext(ctx, path, argv[1:]...)
	c.Env = env

	f, err := pty.Start(c)
	if err != nil {
		return security.ExternalTool("failed to start ssh in a pseudo-terminal", err.Error(), err)
	}
	defer f.Close()

	if in, ok := stdin.(*os.File); ok && term.IsTerminal(int(in.Fd())) {
		_ = pty.InheritSize(in, f)
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		defer func() {
			signal.Stop(winch)
			close(winch)
		}()
		go func() {
			for range winch {
				_ = pty.InheritSize(in, f)
			}
		}()

		if state, err := term.MakeRaw(int(in.Fd())); err == nil {
			defer func() { _ = term.Restore(int(in.Fd()), state) }()
		}
	}

	go func() {
		_, _ = io.Copy(f, stdin)
	}()

	// Returns once ssh exits and the pty master reports EOF/EIO.
	_, _ = io.Copy(newPromptResponder(stdout, f, password), f)

	return c.Wait()
}
