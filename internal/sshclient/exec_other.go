//go:build !unix

package sshclient

import "errors"

const replaceSupported = false

func replaceProcess(path string, argv, env []string) error {
	return errors.New("process replacement is not supported on this platform")
}
