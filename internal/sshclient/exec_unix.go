//go:build unix

package sshclient

import "golang.org/x/sys/unix"

const replaceSupported = true

func replaceProcess(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}
