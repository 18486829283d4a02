// Package sshargs maps Ansible connection variables onto ssh command-line
// arguments.
//
// Only a fixed set of variables is recognized. Anything the inventory leaves
// unset produces no flag at all, so ssh falls back to ~/.ssh/config and its
// own defaults for that setting.
package sshargs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/treykane/ansible-ssh/internal/inventory"
	"github.com/treykane/ansible-ssh/internal/security"
	"github.com/treykane/ansible-ssh/internal/util"
)

// Field names one connection setting and the inventory variables that can
// supply it, in priority order.
type Field struct {
	Name string
	Keys []string
}

var (
	FieldAddress  = Field{Name: "address", Keys: []string{"ansible_host", "ansible_ssh_host"}}
	FieldPort     = Field{Name: "port", Keys: []string{"ansible_port", "ansible_ssh_port"}}
	FieldUser     = Field{Name: "user", Keys: []string{"ansible_ssh_user", "ansible_user"}}
	FieldIdentity = Field{Name: "identity", Keys: []string{"ansible_ssh_private_key_file", "ansible_private_key_file"}}
	FieldPassword = Field{Name: "password", Keys: []string{"ansible_ssh_pass", "ansible_password"}}
	FieldExtra    = Field{Name: "extra", Keys: []string{"ansible_ssh_common_args", "ansible_ssh_extra_args"}}
)

// Fields lists every recognized setting in emission order.
var Fields = []Field{FieldAddress, FieldPort, FieldUser, FieldIdentity, FieldPassword, FieldExtra}

// Lookup returns the value for f and the variable it came from.
func (f Field) Lookup(vars inventory.Vars) (value, key string) {
	for _, k := range f.Keys {
		if v := strings.TrimSpace(vars[k]); v != "" {
			return v, k
		}
	}
	return "", ""
}

// Options tune Build.
type Options struct {
	// ExtraArgs enables the experimental ansible_ssh_common_args and
	// ansible_ssh_extra_args mapping.
	ExtraArgs bool
	// Remote is an optional command to run on the host.
	Remote []string
}

// Command is the ssh invocation built from one host's variables.
type Command struct {
	// Args holds the option flags, without the binary and without Target.
	Args []string
	// Target is "address" or "user@address".
	Target string
	// Remote is appended after Target.
	Remote []string
	// Password, when set, must be handed to a password helper; it never
	// appears in Args.
	Password string
}

// Build maps vars for host onto a Command.
func Build(host string, vars inventory.Vars, opts Options) (Command, error) {
	address, _ := FieldAddress.Lookup(vars)
	address = util.DefaultString(address, host)

	var args []string
	if port, key := FieldPort.Lookup(vars); port != "" {
		n, err := util.ParsePort(port)
		if err != nil {
			return Command{}, security.Config(fmt.Sprintf("invalid %s for host '%s': %v", key, host, err), err)
		}
		args = append(args, "-p", strconv.Itoa(n))
	}
	if identity, _ := FieldIdentity.Lookup(vars); identity != "" {
		args = append(args, "-i", identity)
	}
	if opts.ExtraArgs {
		for _, key := range FieldExtra.Keys {
			raw := strings.TrimSpace(vars[key])
			if raw == "" {
				continue
			}
			extra, err := shlex.Split(raw)
			if err != nil {
				return Command{}, security.Config(fmt.Sprintf("error parsing %s: %v", key, err), err)
			}
			args = append(args, extra...)
		}
	}

	target := address
	if user, _ := FieldUser.Lookup(vars); user != "" {
		target = user + "@" + address
	}
	password, _ := FieldPassword.Lookup(vars)

	return Command{
		Args:     args,
		Target:   target,
		Remote:   append([]string(nil), opts.Remote...),
		Password: password,
	}, nil
}

// Argv returns binary, flags, target and remote command in order.
func (c Command) Argv(binary string) []string {
	argv := make([]string, 0, len(c.Args)+len(c.Remote)+2)
	argv = append(argv, binary)
	argv = append(argv, c.Args...)
	argv = append(argv, c.Target)
	argv = append(argv, c.Remote...)
	return argv
}

// Options renders the flags for display.
func (c Command) Options() string {
	return strings.Join(c.Args, " ")
}

// PasswordEnv is the variable sshpass -e reads the password from.
const PasswordEnv = "SSHPASS"

// Redacted renders an invocation as a shell line: env entries first, then the
// quoted argv. The PasswordEnv value is masked; argv never carries a password,
// so it is printed unchanged. It is the only form of a command that may be
// printed or logged.
func Redacted(env, argv []string) string {
	parts := make([]string, 0, len(env)+len(argv))
	for _, e := range env {
		k, v, _ := strings.Cut(e, "=")
		if k == PasswordEnv {
			v = util.PasswordMask
		}
		parts = append(parts, k+"="+quote(v))
	}
	for _, a := range argv {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>*?()[]{}#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
