package util

const (
	// AppName names the config directory and the default program name.
	AppName = "ansible-ssh"

	// MaxIncludeDepth bounds nested Include directives in ssh config files.
	// Used by: internal/sshconfig (parseRecursive).
	MaxIncludeDepth = 16

	// PasswordMask replaces passwords anywhere a command line is displayed.
	PasswordMask = "****"
)
