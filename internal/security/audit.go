package security

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treykane/ansible-ssh/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Finding struct {
	Severity       Severity `json:"severity"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type AuditReport struct {
	Findings []Finding `json:"findings"`
}

func (r AuditReport) HasHigh() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// AuditInput names the files to inspect.
type AuditInput struct {
	// ConfigDir is the ansible-ssh config directory.
	ConfigDir string
	// KeyFiles maps a private key path to the hosts that reference it.
	KeyFiles map[string][]string
	// PasswordHosts lists hosts whose inventory carries a plain password.
	PasswordHosts []string
}

// RunLocalAudit inspects ansible-ssh, OpenSSH and inventory key file posture.
func RunLocalAudit(in AuditInput) AuditReport {
	var findings []Finding

	home, _ := os.UserHomeDir()
	if home != "" {
		checkPathPerm(&findings, filepath.Join(home, ".ssh"), 0o700, false)
		checkPathPerm(&findings, filepath.Join(home, ".ssh", "config"), 0o600, true)
	}
	if in.ConfigDir != "" {
		checkPathPerm(&findings, in.ConfigDir, 0o700, false)
		checkPathPerm(&findings, filepath.Join(in.ConfigDir, "config.yaml"), 0o600, true)
		checkPathPerm(&findings, filepath.Join(in.ConfigDir, "history.json"), 0o600, true)
	}

	keys := make([]string, 0, len(in.KeyFiles))
	for k := range in.KeyFiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		path := util.ExpandHome(key, home)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			findings = append(findings, Finding{
				Severity:       SeverityMedium,
				Target:         key,
				Message:        fmt.Sprintf("private key referenced by %s does not exist", strings.Join(in.KeyFiles[key], ", ")),
				Recommendation: "fix ansible_ssh_private_key_file or create the key",
			})
			continue
		}
		checkPathPerm(&findings, path, 0o600, true)
	}

	if len(in.PasswordHosts) > 0 {
		hosts := append([]string(nil), in.PasswordHosts...)
		sort.Strings(hosts)
		findings = append(findings, Finding{
			Severity:       SeverityLow,
			Target:         "inventory",
			Message:        fmt.Sprintf("plain ansible_password set for %d host(s): %s", len(hosts), strings.Join(hosts, ", ")),
			Recommendation: "prefer key authentication or ansible-vault encrypted passwords",
		})
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
		}
		if findings[i].Target != findings[j].Target {
			return findings[i].Target < findings[j].Target
		}
		return findings[i].Message < findings[j].Message
	})
	return AuditReport{Findings: findings}
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

func checkPathPerm(findings *[]Finding, path string, max os.FileMode, isFile bool) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		*findings = append(*findings, Finding{
			Severity:       SeverityLow,
			Target:         path,
			Message:        fmt.Sprintf("unable to inspect permissions: %v", err),
			Recommendation: "verify path and permissions manually",
		})
		return
	}
	mode := st.Mode().Perm()
	if mode&^max != 0 {
		kind := "directory"
		if isFile {
			kind = "file"
		}
		*findings = append(*findings, Finding{
			Severity:       SeverityMedium,
			Target:         path,
			Message:        fmt.Sprintf("%s permissions are too broad (%#o)", kind, mode),
			Recommendation: fmt.Sprintf("restrict permissions to %#o or tighter", max),
		})
	}
}
