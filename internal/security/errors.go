package security

import (
	"errors"
	"os"
	"strings"

	"github.com/treykane/ansible-ssh/internal/util"
)

// Kind classifies a failure by who has to fix it.
type Kind string

const (
	// KindUsage is a bad command line.
	KindUsage Kind = "usage"
	// KindConfig is a bad or missing inventory path, or an unknown host.
	KindConfig Kind = "config"
	// KindExternalTool is a missing or failing ansible-inventory, ssh or sshpass.
	KindExternalTool Kind = "external-tool"
)

// ClassifiedError separates a user-safe message from verbose debug details.
type ClassifiedError struct {
	Kind        Kind
	UserSafe    string
	DebugDetail string
	Err         error
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.UserSafe) == "" {
		return "operation failed"
	}
	return e.UserSafe
}

func (e *ClassifiedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewClassifiedError creates a new error with separated user-safe and debug details.
func NewClassifiedError(kind Kind, userSafe, debugDetail string, err error) error {
	return &ClassifiedError{Kind: kind, UserSafe: userSafe, DebugDetail: debugDetail, Err: err}
}

// Usage reports a command-line mistake.
func Usage(msg string) error {
	return NewClassifiedError(KindUsage, msg, "", nil)
}

// Config reports a problem with the inventory or the requested host.
func Config(msg string, err error) error {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return NewClassifiedError(KindConfig, msg, detail, err)
}

// ExternalTool reports a dependency that is missing or failed before handoff.
func ExternalTool(msg, detail string, err error) error {
	return NewClassifiedError(KindExternalTool, msg, detail, err)
}

// KindOf returns the classification of err, or "" when it is unclassified.
func KindOf(err error) Kind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if KindOf(err) == KindUsage {
		return 2
	}
	return 1
}

// UserMessage returns a message safe to show in CLI contexts.
func UserMessage(err error, redact bool, secrets ...string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		msg = ce.UserSafe
		if msg == "" {
			msg = "operation failed"
		}
	}
	if redact {
		return RedactMessage(msg, secrets...)
	}
	return msg
}

// DebugMessage returns detailed error text for logs.
func DebugMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		if strings.TrimSpace(ce.DebugDetail) != "" {
			return ce.DebugDetail
		}
	}
	return err.Error()
}

// RedactMessage replaces the home directory with "~" and masks every
// non-empty secret.
func RedactMessage(msg string, secrets ...string) string {
	if msg == "" {
		return msg
	}
	out := msg
	for _, s := range secrets {
		if s == "" {
			continue
		}
		out = strings.ReplaceAll(out, s, util.PasswordMask)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		out = strings.ReplaceAll(out, home, "~")
	}
	return out
}
