// Package cli provides the command-line interface for ansible-ssh.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/treykane/ansible-ssh/internal/appconfig"
	"github.com/treykane/ansible-ssh/internal/completion"
	"github.com/treykane/ansible-ssh/internal/doctor"
	"github.com/treykane/ansible-ssh/internal/events"
	"github.com/treykane/ansible-ssh/internal/history"
	"github.com/treykane/ansible-ssh/internal/inventory"
	"github.com/treykane/ansible-ssh/internal/picker"
	"github.com/treykane/ansible-ssh/internal/security"
	"github.com/treykane/ansible-ssh/internal/sshargs"
	"github.com/treykane/ansible-ssh/internal/sshclient"
	"github.com/treykane/ansible-ssh/internal/sshconfig"
	"github.com/treykane/ansible-ssh/internal/util"
)

// Version is stamped at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type options struct {
	inventory  string
	complete   string
	configPath string
	dryRun     bool
	explain    bool
	list       bool
	pick       bool
	doctor     bool
	recent     bool
	jsonOut    bool
	extraArgs  bool
	verbose    bool
}

// NewRootCommand creates the root cobra command. prog is the name the
// binary was invoked as; it names the completion registration.
func NewRootCommand(prog string) *cobra.Command {
	prog = util.DefaultString(prog, util.AppName)
	var opts options

	root := &cobra.Command{
		Use:   prog + " [flags] [host] [-- command...]",
		Short: "Connect to a host using connection variables from an Ansible inventory",
		Long: "Connect to a host using connection variables from an Ansible inventory.\n\n" +
			"ansible_host, ansible_port, ansible_user, ansible_ssh_private_key_file and\n" +
			"ansible_password are mapped to ssh flags; anything the inventory does not set\n" +
			"falls back to ~/.ssh/config.",
		Example: fmt.Sprintf("  Connect to a host:\n    %[1]s -i inventory myhost\n\n"+
			"  Run a command:\n    %[1]s -i inventory myhost -- uptime\n\n"+
			"  Generate and install bash completion script:\n    %[1]s -C bash | sudo tee /etc/bash_completion.d/%[1]s", prog),
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, prog, opts, args)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return security.Usage(err.Error())
	})

	f := root.Flags()
	f.StringVarP(&opts.inventory, "inventory", "i", "", "path to the Ansible inventory (default: config inventory, then ansible's own default)")
	f.StringVarP(&opts.complete, "complete", "C", "", "print completion script for {"+strings.Join(completion.Shells, ",")+"} and exit")
	f.StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/ansible-ssh/config.yaml)")
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "print the ssh command instead of running it")
	f.BoolVar(&opts.explain, "explain", false, "show where each connection setting comes from")
	f.BoolVarP(&opts.list, "list", "l", false, "list inventory hosts")
	f.BoolVar(&opts.pick, "pick", false, "pick a host interactively")
	f.BoolVar(&opts.doctor, "doctor", false, "check dependencies, inventory and file permissions")
	f.BoolVar(&opts.recent, "recent", false, "show recent connections, optionally for one host")
	f.BoolVar(&opts.jsonOut, "json", false, "JSON output for --list, --doctor and --recent")
	f.BoolVar(&opts.extraArgs, "extra-ssh-args", false, "map ansible_ssh_common_args/ansible_ssh_extra_args (experimental)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")
	return root
}

func run(cmd *cobra.Command, prog string, opts options, args []string) error {
	setupLogging(cmd.ErrOrStderr(), "", opts.verbose)

	// The completion script needs no config and no inventory.
	if opts.complete != "" {
		return completion.Write(cmd.OutOrStdout(), opts.complete, completion.Options{
			Prog:  prog,
			Flags: flagWords(cmd.Flags()),
		})
	}

	cfg, cfgDir, err := loadConfig(opts.configPath)
	if err != nil {
		return security.Config(err.Error(), err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, opts.verbose)

	inv := util.FirstNonEmpty(opts.inventory, cfg.Inventory)
	ctx := cmd.Context()
	resolver := inventory.New(cfg.InventoryBinary)

	switch {
	case opts.doctor:
		report := doctor.Run(ctx, doctor.Options{Config: cfg, ConfigDir: cfgDir, Inventory: inv})
		return printDoctor(cmd.OutOrStdout(), report, opts.jsonOut)
	case opts.list:
		listing, err := resolver.List(ctx, inv)
		if err != nil {
			return err
		}
		return printList(cmd.OutOrStdout(), listing, opts.jsonOut)
	case opts.recent:
		q := events.Query{Inventory: inv, Limit: recentLimit}
		if len(args) > 0 {
			q.Host = args[0]
		}
		evts, err := events.NewStore().Read(q)
		if err != nil {
			return security.Config("failed to read connection journal", err)
		}
		return printRecent(cmd.OutOrStdout(), evts, opts.jsonOut)
	}

	var (
		host   string
		remote []string
		vars   inventory.Vars
	)
	if opts.pick {
		dash := cmd.ArgsLenAtDash()
		if dash < 0 && len(args) > 0 || dash > 0 {
			return security.Usage("--pick cannot be combined with a host argument; pass the remote command after --")
		}
		remote = args
		host, vars, err = pickHost(cmd, resolver, inv)
		if err != nil || host == "" {
			return err
		}
	} else {
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return security.Usage("the following arguments are required: host")
		}
		host, remote = args[0], args[1:]
		vars, err = resolver.HostVars(ctx, inv, host)
		if err != nil {
			return err
		}
	}

	extraEnabled := cfg.ExperimentalSSHArgs || opts.extraArgs
	built, err := sshargs.Build(host, vars, sshargs.Options{
		ExtraArgs: extraEnabled,
		Remote:    remote,
	})
	if err != nil {
		return err
	}

	if opts.explain {
		sshCfg, err := sshconfig.ParseDefault()
		if err != nil {
			slog.Warn("failed to parse ssh config", "error", err)
		}
		for _, w := range sshCfg.Warnings {
			slog.Debug("ssh config warning", "warning", w)
		}
		return printExplain(cmd.OutOrStdout(), explainRows(host, vars, built, sshCfg, extraEnabled))
	}

	launcher := sshclient.New(cfg)
	launcher.Stdin = cmd.InOrStdin()
	launcher.Stdout = cmd.OutOrStdout()
	launcher.Stderr = cmd.ErrOrStderr()

	if opts.dryRun {
		plan, err := launcher.BuildArgv(built)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), sshargs.Redacted(plan.Env, plan.Argv))
		return err
	}

	if cfg.Banner {
		color.New(color.FgCyan).Fprintf(cmd.ErrOrStderr(), "Connecting to %s with options: %s\n", built.Target, built.Options())
	}
	if err := history.Touch(inv, host); err != nil {
		slog.Warn("failed to record host history", "error", err)
	}
	journal := events.NewStore()
	record(journal, events.Event{Inventory: inv, Host: host, Target: built.Target, EventType: events.TypeConnect, Mode: string(launcher.Mode)})
	err = launcher.Launch(ctx, built)
	record(journal, outcome(inv, host, built.Target, err))
	return err
}

const recentLimit = 20

// outcome turns the result of a spawned ssh into a journal entry. A replaced
// process never gets here.
func outcome(inv, host, target string, err error) events.Event {
	evt := events.Event{Inventory: inv, Host: host, Target: target, EventType: events.TypeExit}
	var exitErr *sshclient.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		evt.ExitCode = exitErr.Code
	default:
		evt.EventType = events.TypeFailed
		evt.Message = security.UserMessage(err, true)
	}
	return evt
}

func record(store *events.Store, evt events.Event) {
	if err := store.Append(evt); err != nil {
		slog.Warn("failed to append connection event", "error", err)
	}
}

func loadConfig(path string) (appconfig.Config, string, error) {
	if path != "" {
		cfg, err := appconfig.LoadFrom(path)
		return cfg, "", err
	}
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return appconfig.Config{}, "", err
	}
	cfg, err := appconfig.Load()
	return cfg, dir, err
}

func pickHost(cmd *cobra.Command, resolver *inventory.Resolver, inv string) (string, inventory.Vars, error) {
	listing, err := resolver.List(cmd.Context(), inv)
	if err != nil {
		return "", nil, err
	}
	if len(listing) == 0 {
		return "", nil, security.Config(fmt.Sprintf("inventory '%s' has no hosts to pick from", util.DefaultString(inv, "(default)")), nil)
	}
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return "", nil, security.Usage("--pick needs an interactive terminal")
	}
	lastUsed, err := history.LastUsed(inv)
	if err != nil {
		slog.Warn("failed to read host history", "error", err)
	}
	hosts := history.SortRecent(listing.Hosts(), lastUsed)
	title := "Ansible hosts"
	if inv != "" {
		title += " · " + inv
	}
	host, err := picker.Run(title, hosts, listing, lastUsed, in, cmd.ErrOrStderr())
	if err != nil {
		return "", nil, security.ExternalTool("interactive picker failed", err.Error(), err)
	}
	return host, listing[host], nil
}

// flagWords lists every long and short flag spelling for completion.
func flagWords(fs *pflag.FlagSet) []string {
	var words []string
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		words = append(words, "--"+f.Name)
		if f.Shorthand != "" {
			words = append(words, "-"+f.Shorthand)
		}
	})
	sort.Strings(words)
	return words
}
