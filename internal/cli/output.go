package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/user"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/treykane/ansible-ssh/internal/doctor"
	"github.com/treykane/ansible-ssh/internal/events"
	"github.com/treykane/ansible-ssh/internal/inventory"
	"github.com/treykane/ansible-ssh/internal/security"
	"github.com/treykane/ansible-ssh/internal/sshargs"
	"github.com/treykane/ansible-ssh/internal/sshclient"
	"github.com/treykane/ansible-ssh/internal/sshconfig"
	"github.com/treykane/ansible-ssh/internal/util"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func setupLogging(w io.Writer, level string, verbose bool) {
	var lvl slog.Level
	if verbose {
		lvl = slog.LevelDebug
	} else if err := lvl.UnmarshalText([]byte(util.DefaultString(level, "warn"))); err != nil {
		lvl = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

type listEntry struct {
	Host    string `json:"host"`
	Address string `json:"address"`
	Port    string `json:"port,omitempty"`
	User    string `json:"user,omitempty"`
}

func printList(w io.Writer, listing inventory.Listing, asJSON bool) error {
	entries := make([]listEntry, 0, len(listing))
	for _, h := range listing.Hosts() {
		vars := listing[h]
		address, _ := sshargs.FieldAddress.Lookup(vars)
		port, _ := sshargs.FieldPort.Lookup(vars)
		u, _ := sshargs.FieldUser.Lookup(vars)
		entries = append(entries, listEntry{Host: h, Address: util.DefaultString(address, h), Port: port, User: u})
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	fmt.Fprintf(w, "%-24s %-24s %-8s %s\n", "HOST", "ADDRESS", "PORT", "USER")
	for _, e := range entries {
		fmt.Fprintf(w, "%-24s %-24s %-8s %s\n", e.Host, e.Address, util.EmptyDash(e.Port), util.EmptyDash(e.User))
	}
	return nil
}

func printRecent(w io.Writer, evts []events.Event, asJSON bool) error {
	if asJSON {
		if evts == nil {
			evts = []events.Event{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(evts)
	}
	fmt.Fprintf(w, "%-20s %-8s %-24s %-28s %s\n", "TIME", "EVENT", "HOST", "TARGET", "DETAIL")
	for _, e := range evts {
		detail := e.Message
		switch e.EventType {
		case events.TypeExit:
			detail = fmt.Sprintf("exit %d", e.ExitCode)
		case events.TypeConnect:
			detail = e.Mode
		}
		fmt.Fprintf(w, "%-20s %-8s %-24s %-28s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.EventType, e.Host, util.EmptyDash(e.Target), util.EmptyDash(detail))
	}
	return nil
}

func printDoctor(w io.Writer, report doctor.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else if len(report.Issues) == 0 {
		color.New(color.FgGreen).Fprintln(w, "[PASS] no issues found")
	} else {
		for _, issue := range report.Issues {
			label := color.New(severityColor(issue.Severity)).Sprintf("[%s]", strings.ToUpper(string(issue.Severity)))
			fmt.Fprintf(w, "%s %s %s: %s\n", label, issue.Check, issue.Target, issue.Message)
			if issue.Recommendation != "" {
				fmt.Fprintf(w, "  -> %s\n", issue.Recommendation)
			}
		}
	}
	high := 0
	for _, issue := range report.Issues {
		if issue.Severity == doctor.SeverityHigh {
			high++
		}
	}
	if high > 0 {
		return security.Config(fmt.Sprintf("doctor found %d high-severity issue(s)", high), nil)
	}
	return nil
}

func severityColor(s doctor.Severity) color.Attribute {
	switch s {
	case doctor.SeverityHigh:
		return color.FgRed
	case doctor.SeverityMedium:
		return color.FgYellow
	default:
		return color.FgBlue
	}
}

// explainRows reports each connection setting, its effective value and where
// that value comes from: an inventory variable, ~/.ssh/config, or ssh itself.
func explainRows(host string, vars inventory.Vars, built sshargs.Command, sshCfg sshconfig.Config, extraEnabled bool) [][]string {
	address, addressKey := sshargs.FieldAddress.Lookup(vars)
	if address == "" {
		address, addressKey = host, "inventory hostname"
	}
	fromSSH := sshCfg.Lookup(address)

	rows := [][]string{{"host", host, "command line"}, {"address", address, addressKey}}
	if fromSSH.HostName != "" {
		rows = append(rows, []string{"hostname", fromSSH.HostName, fromSSH.Sources["hostname"]})
	}

	resolve := func(f sshargs.Field, sshKey, sshValue, fallback, fallbackSource string) []string {
		if v, key := f.Lookup(vars); v != "" {
			return []string{f.Name, v, key}
		}
		if sshValue != "" {
			return []string{f.Name, sshValue, fromSSH.Sources[sshKey]}
		}
		return []string{f.Name, util.EmptyDash(fallback), fallbackSource}
	}

	localUser := ""
	if u, err := user.Current(); err == nil {
		localUser = u.Username
	}
	rows = append(rows,
		resolve(sshargs.FieldPort, "port", fromSSH.Port, "22", "ssh default"),
		resolve(sshargs.FieldUser, "user", fromSSH.User, localUser, "ssh default (local user)"),
		resolve(sshargs.FieldIdentity, "identityfile", fromSSH.IdentityFile, "", "ssh default identities"),
	)

	if _, key := sshargs.FieldPassword.Lookup(vars); key != "" {
		rows = append(rows, []string{sshargs.FieldPassword.Name, util.PasswordMask, key})
	} else {
		rows = append(rows, []string{sshargs.FieldPassword.Name, "-", "not set (key or agent authentication)"})
	}

	for _, key := range sshargs.FieldExtra.Keys {
		v := strings.TrimSpace(vars[key])
		if v == "" {
			continue
		}
		source := key
		if !extraEnabled {
			source += " (ignored; enable with --extra-ssh-args)"
		}
		rows = append(rows, []string{sshargs.FieldExtra.Name, v, source})
	}

	rows = append(rows, []string{"command", sshargs.Redacted(nil, built.Argv("ssh")), "resolved"})
	return rows
}

func printExplain(w io.Writer, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("FIELD", "VALUE", "SOURCE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// HandleError reports err on w and returns the process exit code. An ssh exit
// status passes through silently since ssh has already reported it.
func HandleError(w io.Writer, prog string, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *sshclient.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	msg := security.UserMessage(err, false)
	if !strings.HasPrefix(msg, "Error") {
		color.New(color.FgRed).Fprint(w, "Error: ")
	}
	fmt.Fprintln(w, msg)
	if detail := security.DebugMessage(err); detail != "" {
		slog.Debug("error detail", "detail", detail)
	}
	if security.KindOf(err) == security.KindUsage {
		fmt.Fprintf(w, "Run '%s --help' for usage.\n", prog)
	}
	return security.ExitCode(err)
}
