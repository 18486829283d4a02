//go:build !unix

package sshclient

import (
	"context"
	"io"

	"github.com/treykane/ansible-ssh/internal/security"
)

const ptySupported = false

func runWithPassword(ctx context.Context, path string, argv, env []string, password string, stdin io.Reader, stdout io.Writer) error {
	return security.ExternalTool("the builtin password helper is not supported on this platform; install sshpass", "", nil)
}
