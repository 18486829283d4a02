// Package doctor diagnoses the local setup ansible-ssh depends on: the
// external binaries, the inventory, and file permissions.
package doctor

import (
	"context"
	"sort"

	"github.com/treykane/ansible-ssh/internal/appconfig"
	"github.com/treykane/ansible-ssh/internal/inventory"
	"github.com/treykane/ansible-ssh/internal/security"
	"github.com/treykane/ansible-ssh/internal/sshargs"
	"github.com/treykane/ansible-ssh/internal/sshclient"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Options select what Run inspects.
type Options struct {
	Config    appconfig.Config
	ConfigDir string
	Inventory string
}

type binaryCheck struct {
	name           string
	severity       Severity
	recommendation string
}

// Run executes local diagnostics. It never fails; problems become issues.
func Run(ctx context.Context, opts Options) Report {
	var issues []Issue

	checks := []binaryCheck{
		{opts.Config.SSHBinary, SeverityHigh, "install the OpenSSH client and ensure `ssh` is on PATH"},
		{opts.Config.InventoryBinary, SeverityHigh, "install ansible-core (provides ansible-inventory)"},
		{sshclient.SSHPassBinary, SeverityMedium, "install sshpass or set password_helper: builtin for hosts with ansible_password"},
		{"jq", SeverityLow, "install jq; the bash completion script uses it to list hosts"},
	}
	for _, c := range checks {
		if err := sshclient.EnsureBinary(c.name); err != nil {
			issues = append(issues, Issue{
				Severity:       c.severity,
				Check:          "binary",
				Target:         c.name,
				Message:        err.Error(),
				Recommendation: c.recommendation,
			})
		}
	}

	audit := security.AuditInput{ConfigDir: opts.ConfigDir}
	if err := inventory.CheckPath(opts.Inventory); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "inventory",
			Target:         opts.Inventory,
			Message:        security.UserMessage(err, false),
			Recommendation: "pass an existing inventory with -i or set inventory in config.yaml",
		})
	} else if sshclient.EnsureBinary(opts.Config.InventoryBinary) == nil {
		listing, err := inventory.New(opts.Config.InventoryBinary).List(ctx, opts.Inventory)
		if err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "inventory",
				Target:         displayInventory(opts.Inventory),
				Message:        security.UserMessage(err, false),
				Recommendation: "run ansible-inventory --list manually to inspect the error",
			})
		} else {
			if len(listing) == 0 {
				issues = append(issues, Issue{
					Severity:       SeverityMedium,
					Check:          "inventory",
					Target:         displayInventory(opts.Inventory),
					Message:        "inventory has no hosts",
					Recommendation: "check the inventory path and group definitions",
				})
			}
			audit.KeyFiles, audit.PasswordHosts = credentialRefs(listing)
		}
	}

	for _, f := range security.RunLocalAudit(audit).Findings {
		issues = append(issues, Issue{
			Severity:       Severity(f.Severity),
			Check:          "security-audit",
			Target:         f.Target,
			Message:        f.Message,
			Recommendation: f.Recommendation,
		})
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}
}

func credentialRefs(listing inventory.Listing) (map[string][]string, []string) {
	keys := map[string][]string{}
	var passwords []string
	for _, host := range listing.Hosts() {
		vars := listing[host]
		if key, _ := sshargs.FieldIdentity.Lookup(vars); key != "" {
			keys[key] = append(keys[key], host)
		}
		if pw, _ := sshargs.FieldPassword.Lookup(vars); pw != "" {
			passwords = append(passwords, host)
		}
	}
	return keys, passwords
}

func displayInventory(p string) string {
	if p == "" {
		return "(default inventory)"
	}
	return p
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
